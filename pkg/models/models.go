package models

// Phase names the stage of an operation a statement belongs to
type Phase string

const (
	PhaseConnect  Phase = "connect"
	PhaseDrop     Phase = "drop"
	PhaseCreate   Phase = "create"
	PhasePopulate Phase = "populate"
	PhaseBegin    Phase = "begin"
	PhaseScript   Phase = "script"
	PhaseCommit   Phase = "commit"
)

// JDBC-compatible markers used inside batch update counts
const (
	UpdateCountNoInfo = -2
	UpdateCountFailed = -3
)

// TableSpec describes one table of a fixed schema graph
type TableSpec struct {
	Name               string
	DependsOn          []string
	CreateStatement    string
	PopulateStatements []string
	DropStatement      string
}

// ScriptUnit is an ordered list of non-blank statements parsed from a script
type ScriptUnit struct {
	Statements []string
}

// Len returns the number of statements in the unit
func (u ScriptUnit) Len() int {
	return len(u.Statements)
}

// StepRecord records one statement executed by an operation
type StepRecord struct {
	Phase        Phase
	Table        string
	Index        int
	Statement    string
	RowsAffected int64
}

// IgnoredError is a backend failure that was classified as benign
type IgnoredError struct {
	Phase      Phase
	Table      string
	Index      int
	Code       string
	VendorCode int
	Message    string
}

// WarningRecord is one entry of a backend warning chain
type WarningRecord struct {
	Message    string
	Code       string
	VendorCode int
	Level      string
}

// ErrorRecord is one entry of an error cause chain
type ErrorRecord struct {
	Message    string
	Code       string
	VendorCode int
}

// BatchFailureReport describes a batch that stopped at its first failure.
// UpdateCounts holds one entry per statement attempted, in batch order.
type BatchFailureReport struct {
	UpdateCounts []int64
	FailedIndex  int
	Code         string
	VendorCode   int
	Message      string
}

// OperationOutcome represents the result of an orchestration operation
type OperationOutcome struct {
	Operation     string
	Dialect       string
	Succeeded     bool
	Steps         []StepRecord
	IgnoredErrors []IgnoredError
	FatalError    error
	Warnings      []WarningRecord
	BatchFailure  *BatchFailureReport
	RolledBack    bool
}

// NewOperationOutcome creates an outcome that is successful until failed
func NewOperationOutcome(operation, dialect string) *OperationOutcome {
	return &OperationOutcome{
		Operation: operation,
		Dialect:   dialect,
		Succeeded: true,
	}
}

// Fail marks the outcome as failed with err
func (o *OperationOutcome) Fail(err error) {
	o.Succeeded = false
	o.FatalError = err
}

// Err returns the fatal error of the outcome, if any
func (o *OperationOutcome) Err() error {
	if o == nil {
		return nil
	}
	return o.FatalError
}

// AddWarnings appends warning records in order
func (o *OperationOutcome) AddWarnings(records ...WarningRecord) {
	o.Warnings = append(o.Warnings, records...)
}
