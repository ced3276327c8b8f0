package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitebski/sqlbootstrap/internal/coffeehouse"
	"github.com/vitebski/sqlbootstrap/internal/config"
	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/internal/diagnostics"
	"github.com/vitebski/sqlbootstrap/internal/runner"
	"github.com/vitebski/sqlbootstrap/internal/schema"
	"github.com/vitebski/sqlbootstrap/internal/scripts"
	"github.com/vitebski/sqlbootstrap/internal/utils"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

type app struct {
	v           *viper.Viper
	logger      *logrus.Logger
	cfg         *config.Config
	configFile  string
	envFile     string
	logLevel    string
	maxWarnings int
}

func main() {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "sqlbootstrap",
		Short: "Bootstrap a database schema and run SQL scripts atomically",
		Long: `SQL Bootstrap

A Go tool that connects to MySQL, PostgreSQL, SQL Server, Oracle or SQLite,
drops, creates and populates a fixed table graph in dependency order, and
runs SQL scripts as single transactions with dialect-aware error handling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = utils.SetupLogging(a.logLevel)
			utils.LoadEnvironmentVariables(a.envFile, a.logger)

			cfg, err := config.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Config file (properties, yaml or json; default ./sqlbootstrap.*)")
	flags.StringVarP(&a.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringVarP(&a.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.IntVar(&a.maxWarnings, "max-warnings", utils.GetEnvInt(config.EnvPrefix+"_MAX_WARNINGS", 20), "Maximum number of warnings to print (0 prints all)")
	flags.String("dialect", "", "Database dialect: "+fmt.Sprint(connector.DialectNames()))
	flags.String("driver", "", "Override the database/sql driver name")
	flags.StringP("host", "H", "", "Database server host")
	flags.StringP("port", "P", "", "Database server port (defaults per dialect)")
	flags.StringP("user", "u", "", "Database user")
	flags.StringP("password", "p", "", "Database password")
	flags.StringP("database", "d", "", "Database name, or file name for embedded databases")

	for key, flag := range map[string]string{
		config.KeyDialect:      "dialect",
		config.KeyDriver:       "driver",
		config.KeyServerName:   "host",
		config.KeyPortNumber:   "port",
		config.KeyUserName:     "user",
		config.KeyPassword:     "password",
		config.KeyDatabaseName: "database",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(a.planCmd(), a.pingCmd(), a.bootstrapCmd(), a.runCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		utils.PrintErrorChain(os.Stderr, diagnostics.CollectErrorChain(err))
		os.Exit(1)
	}
}

// profile returns the profile of the configured dialect
func (a *app) profile() (connector.Profile, error) {
	cc, err := a.cfg.ConnectionConfig()
	if err != nil {
		return connector.Profile{}, err
	}
	return connector.LookupProfile(cc.Dialect)
}

// connect resolves the configured connection
func (a *app) connect(ctx context.Context) (*connector.Connection, error) {
	cc, err := a.cfg.ConnectionConfig()
	if err != nil {
		return nil, err
	}
	if a.logger.IsLevelEnabled(logrus.DebugLevel) {
		utils.PrintProperties(os.Stderr, a.cfg)
	}
	return connector.NewDatabaseConnector(a.logger).Resolve(ctx, cc)
}

// report prints an outcome and turns a failed one into an error
func (a *app) report(outcome *models.OperationOutcome) error {
	utils.PrintOutcome(os.Stdout, outcome, a.maxWarnings)
	return outcome.Err()
}

func (a *app) planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the create and drop order of the coffeehouse schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.profile()
			if err != nil {
				return err
			}
			plan, err := schema.PlanSchema(coffeehouse.Tables(profile))
			if err != nil {
				return err
			}
			utils.PrintPlan(os.Stdout, plan)
			return nil
		},
	}
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect to the configured database and print its connection string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			fmt.Fprintln(os.Stdout, conn.URL)
			return nil
		},
	}
}

func (a *app) bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Drop, create and populate the coffeehouse schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			orchestrator := schema.NewSchemaOrchestrator(a.logger)
			outcome, _ := orchestrator.Bootstrap(cmd.Context(), conn, coffeehouse.Tables(conn.Profile))
			return a.report(outcome)
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	var (
		isolation  string
		scriptsDir string
	)

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run <dialect dir>/<script> in a single transaction",
		Long: `Run a SQL script as one transaction.

The script is looked up as <dialect dir>/<script>, in --scripts-dir when given
and among the built-in scripts otherwise (` + scripts.DropTables + `, ` + scripts.CreateTables + `,
` + scripts.PopulateTables + `).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := runner.ParseIsolation(isolation)
			if err != nil {
				return err
			}

			profile, err := a.profile()
			if err != nil {
				return err
			}
			text, err := scripts.NewLoader(scriptsDir).Load(profile.ScriptDir, args[0])
			if err != nil {
				return err
			}

			conn, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			outcome, _ := runner.NewScriptRunner(a.logger).RunScript(cmd.Context(), conn, text, level)
			return a.report(outcome)
		},
	}

	cmd.Flags().StringVarP(&isolation, "isolation", "i", "read-committed", "Transaction isolation level (default, read-uncommitted, read-committed, repeatable-read, serializable)")
	cmd.Flags().StringVarP(&scriptsDir, "scripts-dir", "s", "", "Directory holding <dialect>/<script> files (default: built-in scripts)")
	return cmd
}
