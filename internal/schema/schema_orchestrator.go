package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/internal/diagnostics"
	"github.com/vitebski/sqlbootstrap/pkg/models"
	"github.com/yourbasic/graph"
)

// Plan is the validated execution order of a table set
type Plan struct {
	CreateOrder []string
	DropOrder   []string
	Specs       map[string]models.TableSpec
	// SkippedEdges lists dependencies on tables outside the set, as "table -> dependency"
	SkippedEdges []string
}

// PlanSchema validates the dependency graph of specs and orders the tables.
// Dependencies come before dependents; tables on the same level are ordered
// by name, so the result does not depend on the order of specs.
func PlanSchema(specs []models.TableSpec) (*Plan, error) {
	plan := &Plan{Specs: make(map[string]models.TableSpec, len(specs))}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: table spec without a name", models.ErrInvalidConfig)
		}
		if _, dup := plan.Specs[spec.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table spec %s", models.ErrInvalidConfig, spec.Name)
		}
		plan.Specs[spec.Name] = spec
		names = append(names, spec.Name)
	}
	sort.Strings(names)

	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}

	// Edges point from a dependency to its dependent
	g := graph.New(len(names))
	for _, name := range names {
		for _, dep := range plan.Specs[name].DependsOn {
			if dep == name {
				continue
			}
			depIdx, ok := index[dep]
			if !ok {
				plan.SkippedEdges = append(plan.SkippedEdges, name+" -> "+dep)
				continue
			}
			g.Add(depIdx, index[name])
		}
	}

	if !graph.Acyclic(g) {
		return nil, cycleError(g, names)
	}

	plan.CreateOrder = layeredOrder(g, names)
	plan.DropOrder = make([]string, len(plan.CreateOrder))
	for i, name := range plan.CreateOrder {
		plan.DropOrder[len(plan.CreateOrder)-1-i] = name
	}
	return plan, nil
}

// layeredOrder emits every table whose dependencies are satisfied, one level
// at a time, in index (name) order within each level
func layeredOrder(g *graph.Mutable, names []string) []string {
	inDegree := make([]int, g.Order())
	for v := 0; v < g.Order(); v++ {
		g.Visit(v, func(w int, _ int64) bool {
			inDegree[w]++
			return false
		})
	}

	var level []int
	for v, d := range inDegree {
		if d == 0 {
			level = append(level, v)
		}
	}

	order := make([]string, 0, len(names))
	for len(level) > 0 {
		var next []int
		for _, v := range level {
			order = append(order, names[v])
			g.Visit(v, func(w int, _ int64) bool {
				inDegree[w]--
				if inDegree[w] == 0 {
					next = append(next, w)
				}
				return false
			})
		}
		sort.Ints(next)
		level = next
	}
	return order
}

// cycleError reports each strongly connected group of more than one table
func cycleError(g *graph.Mutable, names []string) error {
	cyclic := &models.CyclicSchemaError{}
	for _, component := range graph.StrongComponents(g) {
		if len(component) < 2 {
			continue
		}
		group := make([]string, 0, len(component))
		for _, v := range component {
			group = append(group, names[v])
		}
		sort.Strings(group)
		cyclic.Cycles = append(cyclic.Cycles, group)
	}
	sort.Slice(cyclic.Cycles, func(i, j int) bool {
		return cyclic.Cycles[i][0] < cyclic.Cycles[j][0]
	})
	return cyclic
}

// SchemaOrchestrator drops, creates and populates a fixed table graph
type SchemaOrchestrator struct {
	Logger *logrus.Logger
}

// NewSchemaOrchestrator creates a new schema orchestrator
func NewSchemaOrchestrator(logger *logrus.Logger) *SchemaOrchestrator {
	return &SchemaOrchestrator{Logger: logger}
}

// Bootstrap drops every table in reverse dependency order, creates them in
// dependency order and then populates them. It is not transactional: each
// statement commits on its own, and a fatal failure leaves the schema as far
// as it got, which the outcome reports.
func (so *SchemaOrchestrator) Bootstrap(ctx context.Context, conn *connector.Connection, specs []models.TableSpec) (*models.OperationOutcome, error) {
	outcome := models.NewOperationOutcome("bootstrap", conn.Profile.Name)

	plan, err := PlanSchema(specs)
	if err != nil {
		so.Logger.Errorf("Schema rejected before any statement ran: %v", err)
		outcome.Fail(err)
		return outcome, err
	}
	for _, edge := range plan.SkippedEdges {
		so.Logger.Debugf("Ignoring dependency on a table outside the schema: %s", edge)
	}

	classifier := diagnostics.NewClassifier(conn.Profile.IgnorableCodes...)

	so.Logger.Infof("Dropping tables: %s", strings.Join(plan.DropOrder, ", "))
	for _, table := range plan.DropOrder {
		if err := so.runDDL(ctx, conn, classifier, outcome, models.PhaseDrop, table, plan.Specs[table].DropStatement); err != nil {
			return outcome, err
		}
	}

	so.Logger.Infof("Creating tables: %s", strings.Join(plan.CreateOrder, ", "))
	for _, table := range plan.CreateOrder {
		if err := so.runDDL(ctx, conn, classifier, outcome, models.PhaseCreate, table, plan.Specs[table].CreateStatement); err != nil {
			return outcome, err
		}
	}

	for _, table := range plan.CreateOrder {
		if err := so.populate(ctx, conn, outcome, table, plan.Specs[table].PopulateStatements); err != nil {
			return outcome, err
		}
	}

	so.Logger.Infof("Bootstrapped %d tables (%d ignored errors, %d warnings)",
		len(plan.CreateOrder), len(outcome.IgnoredErrors), len(outcome.Warnings))
	return outcome, nil
}

// runDDL executes one drop or create statement, recording ignorable failures
func (so *SchemaOrchestrator) runDDL(
	ctx context.Context,
	conn *connector.Connection,
	classifier *diagnostics.Classifier,
	outcome *models.OperationOutcome,
	phase models.Phase,
	table string,
	statement string,
) error {
	if strings.TrimSpace(statement) == "" {
		so.Logger.Debugf("No %s statement for table %s", phase, table)
		return nil
	}

	affected, err := conn.ExecStatement(ctx, statement)
	if err != nil {
		verdict, code, vendor := classifier.ClassifyError(err)
		if verdict == diagnostics.Ignorable {
			so.Logger.Warningf("Ignoring %s failure on table %s [%s]: %v", phase, table, code, err)
			outcome.IgnoredErrors = append(outcome.IgnoredErrors, models.IgnoredError{
				Phase:      phase,
				Table:      table,
				Index:      0,
				Code:       code,
				VendorCode: vendor,
				Message:    err.Error(),
			})
			return nil
		}

		fatal := &models.BackendError{
			Dialect:    conn.Profile.Name,
			Phase:      phase,
			Table:      table,
			Index:      0,
			Statement:  statement,
			Code:       code,
			VendorCode: vendor,
			Err:        err,
		}
		so.Logger.Errorf("Aborting bootstrap: %v", fatal)
		outcome.Fail(fatal)
		return fatal
	}

	outcome.Steps = append(outcome.Steps, models.StepRecord{
		Phase:        phase,
		Table:        table,
		Statement:    statement,
		RowsAffected: affected,
	})
	so.collectWarnings(ctx, conn, outcome)
	return nil
}

// populate runs the populate statements of a table; every failure is fatal
func (so *SchemaOrchestrator) populate(
	ctx context.Context,
	conn *connector.Connection,
	outcome *models.OperationOutcome,
	table string,
	statements []string,
) error {
	if len(statements) == 0 {
		return nil
	}
	so.Logger.Infof("Populating table: %s", table)

	counts, err := conn.ExecBatch(ctx, statements)
	for i, count := range counts {
		if count == models.UpdateCountFailed {
			break
		}
		outcome.Steps = append(outcome.Steps, models.StepRecord{
			Phase:        models.PhasePopulate,
			Table:        table,
			Index:        i,
			Statement:    statements[i],
			RowsAffected: count,
		})
	}

	if err != nil {
		report, _ := diagnostics.CollectBatchFailure(err)
		fatal := &models.BackendError{
			Dialect: conn.Profile.Name,
			Phase:   models.PhasePopulate,
			Table:   table,
			Index:   -1,
			Err:     err,
		}
		if report != nil {
			fatal.Index = report.FailedIndex
			fatal.Statement = statements[report.FailedIndex]
			fatal.Code = report.Code
			fatal.VendorCode = report.VendorCode
		}
		so.Logger.Errorf("Aborting bootstrap: %v", fatal)
		outcome.BatchFailure = report
		outcome.Fail(fatal)
		return fatal
	}

	so.collectWarnings(ctx, conn, outcome)
	so.Logger.Infof("Successfully populated table %s with %d statements", table, len(statements))
	return nil
}

// collectWarnings appends the session warnings of the last statement
func (so *SchemaOrchestrator) collectWarnings(ctx context.Context, conn *connector.Connection, outcome *models.OperationOutcome) {
	records, err := conn.Warnings(ctx)
	if err != nil {
		so.Logger.Warningf("Could not read warnings: %v", err)
		return
	}
	outcome.AddWarnings(records...)
}
