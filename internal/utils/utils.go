package utils

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sqlbootstrap/internal/config"
	"github.com/vitebski/sqlbootstrap/internal/schema"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// LogLevelEnv names the environment variable holding the default log level
const LogLevelEnv = config.EnvPrefix + "_LOG_LEVEL"

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv(LogLevelEnv)
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stderr)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file.
// It reports whether a file was loaded.
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		} else {
			logger.Debugf("No %s file found, using existing environment variables", envFile)
		}
		return false
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warningf("Error loading %s file: %v", envFile, err)
		return false
	}
	logger.Infof("Loaded environment variables from %s", envFile)

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		prefix := config.EnvPrefix + "_"
		for _, env := range os.Environ() {
			name, value, ok := strings.Cut(env, "=")
			if !ok || !strings.HasPrefix(name, prefix) {
				continue
			}
			if name == prefix+strings.ToUpper(config.KeyPassword) {
				value = "********"
			}
			logger.Debugf("%s=%s", name, value)
		}
	}

	return true
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// PrintProperties prints the loaded connection properties, password masked
func PrintProperties(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Set the following properties:")
	if cfg.Source != "" {
		fmt.Fprintf(w, "  %-14s %s\n", "source:", cfg.Source)
	}
	for _, kv := range cfg.Properties() {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(w, "  %-14s %s\n", kv[0]+":", kv[1])
	}
}

// PrintPlan prints the create and drop order of a schema plan
func PrintPlan(w io.Writer, plan *schema.Plan) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(w, "SCHEMA PLAN")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	fmt.Fprintln(w, "Create order:")
	for i, table := range plan.CreateOrder {
		deps := plan.Specs[table].DependsOn
		if len(deps) == 0 {
			fmt.Fprintf(w, "  %3d. %s\n", i+1, table)
		} else {
			fmt.Fprintf(w, "  %3d. %s (after %s)\n", i+1, table, strings.Join(deps, ", "))
		}
	}

	fmt.Fprintln(w, "Drop order:")
	for i, table := range plan.DropOrder {
		fmt.Fprintf(w, "  %3d. %s\n", i+1, table)
	}

	if len(plan.SkippedEdges) > 0 {
		fmt.Fprintln(w, "Ignored dependencies on tables outside the schema:")
		for _, edge := range plan.SkippedEdges {
			fmt.Fprintf(w, "  - %s\n", edge)
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintOutcome prints a summary of an operation outcome, with at most
// warningLimit warnings (all of them when warningLimit <= 0)
func PrintOutcome(w io.Writer, outcome *models.OperationOutcome, warningLimit int) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 50))
	fmt.Fprintf(w, "%s SUMMARY (%s)\n", strings.ToUpper(outcome.Operation), outcome.Dialect)
	fmt.Fprintln(w, strings.Repeat("=", 50))

	status := "succeeded"
	if !outcome.Succeeded {
		status = "FAILED"
	}
	fmt.Fprintf(w, "Status: %s\n", status)
	fmt.Fprintf(w, "Statements executed: %d\n", len(outcome.Steps))
	fmt.Fprintf(w, "Ignored errors: %d\n", len(outcome.IgnoredErrors))
	fmt.Fprintf(w, "Warnings: %d\n", len(outcome.Warnings))
	if outcome.RolledBack {
		fmt.Fprintln(w, "Transaction rolled back")
	}

	if len(outcome.IgnoredErrors) > 0 {
		fmt.Fprintln(w, "\nIgnored errors:")
		for _, ignored := range outcome.IgnoredErrors {
			fmt.Fprintf(w, "  - %s %s [%s]: %s\n", ignored.Phase, ignored.Table, ignored.Code, ignored.Message)
		}
	}

	if len(outcome.Warnings) > 0 {
		fmt.Fprintln(w)
		PrintWarnings(w, outcome.Warnings, warningLimit)
	}

	if outcome.BatchFailure != nil {
		fmt.Fprintln(w)
		PrintBatchFailure(w, outcome.BatchFailure)
	}

	if err := outcome.Err(); err != nil {
		fmt.Fprintf(w, "\nFatal error: %v\n", err)
	}

	fmt.Fprintln(w, strings.Repeat("=", 50))
}

// PrintWarnings prints warning records; limit <= 0 prints all of them
func PrintWarnings(w io.Writer, records []models.WarningRecord, limit int) {
	fmt.Fprintln(w, "Warnings:")
	for i, record := range records {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(records)-limit)
			return
		}
		level := record.Level
		if level == "" {
			level = "Warning"
		}
		fmt.Fprintf(w, "  - %s: %s\n", level, record.Message)
		fmt.Fprintf(w, "    SQLState: %s, vendor code: %d\n", orNone(record.Code), record.VendorCode)
	}
}

// PrintBatchFailure prints the per-statement outcome of a failed batch
func PrintBatchFailure(w io.Writer, report *models.BatchFailureReport) {
	fmt.Fprintf(w, "Batch failed at statement %d\n", report.FailedIndex)
	fmt.Fprintf(w, "  Message: %s\n", report.Message)
	fmt.Fprintf(w, "  SQLState: %s, vendor code: %d\n", orNone(report.Code), report.VendorCode)

	counts := make([]string, 0, len(report.UpdateCounts))
	for _, count := range report.UpdateCounts {
		switch count {
		case models.UpdateCountNoInfo:
			counts = append(counts, "?")
		case models.UpdateCountFailed:
			counts = append(counts, "failed")
		default:
			counts = append(counts, strconv.FormatInt(count, 10))
		}
	}
	fmt.Fprintf(w, "  Update counts: %s\n", strings.Join(counts, ", "))
}

// PrintErrorChain prints an error and each of its causes
func PrintErrorChain(w io.Writer, records []models.ErrorRecord) {
	for i, record := range records {
		if i == 0 {
			fmt.Fprintf(w, "Error: %s\n", record.Message)
		} else {
			fmt.Fprintf(w, "  Cause: %s\n", record.Message)
		}
		if record.Code != "" || record.VendorCode != 0 {
			fmt.Fprintf(w, "    SQLState: %s, vendor code: %d\n", orNone(record.Code), record.VendorCode)
		}
	}
}

func orNone(code string) string {
	if code == "" {
		return "none"
	}
	return code
}
