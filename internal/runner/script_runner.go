package runner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/internal/diagnostics"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// StatementTerminator separates statements in a script
const StatementTerminator = ";"

// ParseScript splits text on the statement terminator and drops fragments
// that are empty or whitespace only. The remaining fragments are kept
// verbatim and in order.
func ParseScript(text string) models.ScriptUnit {
	var unit models.ScriptUnit
	for _, fragment := range strings.Split(text, StatementTerminator) {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		unit.Statements = append(unit.Statements, fragment)
	}
	return unit
}

var isolationLevels = map[string]sql.IsolationLevel{
	"default":          sql.LevelDefault,
	"read-uncommitted": sql.LevelReadUncommitted,
	"read-committed":   sql.LevelReadCommitted,
	"repeatable-read":  sql.LevelRepeatableRead,
	"serializable":     sql.LevelSerializable,
}

// ParseIsolation resolves an isolation level name such as "read-committed",
// "READ_COMMITTED" or "read committed"
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	if key == "" {
		return sql.LevelDefault, nil
	}
	if level, ok := isolationLevels[key]; ok {
		return level, nil
	}
	return sql.LevelDefault, fmt.Errorf("%w: unknown isolation level %q", models.ErrInvalidConfig, name)
}

// ScriptRunner executes scripts as single transactions
type ScriptRunner struct {
	Logger *logrus.Logger
}

// NewScriptRunner creates a new script runner
func NewScriptRunner(logger *logrus.Logger) *ScriptRunner {
	return &ScriptRunner{Logger: logger}
}

// RunScript parses text and executes its statements in one transaction at
// the requested isolation level. The first failing statement stops the
// script and rolls the transaction back; the returned error is a
// *models.BackendError carrying the statement index and backend code.
func (sr *ScriptRunner) RunScript(ctx context.Context, conn *connector.Connection, text string, isolation sql.IsolationLevel) (*models.OperationOutcome, error) {
	outcome := models.NewOperationOutcome("script", conn.Profile.Name)

	unit := ParseScript(text)
	if unit.Len() == 0 {
		sr.Logger.Infof("Script has no statements, nothing to run")
		return outcome, nil
	}

	if isolation != sql.LevelDefault && !conn.Profile.SupportsIsolation {
		sr.Logger.Warningf("%s does not support isolation level %s, using the driver default", conn.Profile.Name, isolation)
		outcome.AddWarnings(models.WarningRecord{
			Message: fmt.Sprintf("isolation level %s not supported by %s, using the driver default", isolation, conn.Profile.Name),
			Level:   "Warning",
		})
		isolation = sql.LevelDefault
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		fatal := sr.backendError(conn, models.PhaseBegin, -1, "", err)
		sr.Logger.Errorf("Error starting transaction: %v", err)
		outcome.Fail(fatal)
		return outcome, fatal
	}

	sr.Logger.Infof("Running %d statements at isolation level %s", unit.Len(), isolation)
	for i, statement := range unit.Statements {
		result, err := tx.ExecContext(ctx, statement)
		if err != nil {
			fatal := sr.backendError(conn, models.PhaseScript, i, statement, err)
			sr.Logger.Errorf("Statement %d failed, rolling back: %v", i, err)
			sr.rollback(tx, outcome)
			outcome.Fail(fatal)
			return outcome, fatal
		}

		affected, countErr := result.RowsAffected()
		if countErr != nil {
			affected = models.UpdateCountNoInfo
		}
		outcome.Steps = append(outcome.Steps, models.StepRecord{
			Phase:        models.PhaseScript,
			Index:        i,
			Statement:    statement,
			RowsAffected: affected,
		})

		records, err := connector.FetchWarnings(ctx, conn.Profile, tx)
		if err != nil {
			sr.Logger.Warningf("Could not read warnings of statement %d: %v", i, err)
		}
		outcome.AddWarnings(records...)
	}

	if err := tx.Commit(); err != nil {
		fatal := sr.backendError(conn, models.PhaseCommit, -1, "", err)
		sr.Logger.Errorf("Error committing transaction: %v", err)
		outcome.Fail(fatal)
		return outcome, fatal
	}

	sr.Logger.Infof("Committed %d statements", unit.Len())
	return outcome, nil
}

// rollback aborts tx and records whether the backend confirmed it
func (sr *ScriptRunner) rollback(tx *sql.Tx, outcome *models.OperationOutcome) {
	if err := tx.Rollback(); err != nil {
		sr.Logger.Errorf("Error rolling back transaction: %v", err)
		return
	}
	outcome.RolledBack = true
}

// backendError wraps err with the statement context and its classification
func (sr *ScriptRunner) backendError(conn *connector.Connection, phase models.Phase, index int, statement string, err error) *models.BackendError {
	verdict, code, vendor := diagnostics.NewClassifier(conn.Profile.IgnorableCodes...).ClassifyError(err)
	return &models.BackendError{
		Dialect:    conn.Profile.Name,
		Phase:      phase,
		Index:      index,
		Statement:  statement,
		Code:       code,
		VendorCode: vendor,
		Ignorable:  verdict == diagnostics.Ignorable,
		Err:        err,
	}
}
