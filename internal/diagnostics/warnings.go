package diagnostics

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"

	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// MaxChainDepth caps every warning or cause chain traversal
const MaxChainDepth = 256

// Warning is one link of a backend warning chain
type Warning struct {
	Message    string
	SQLState   string
	VendorCode int
	Level      string
	next       *Warning
}

// NewWarning creates a single warning with no successor
func NewWarning(message, state string, vendorCode int) *Warning {
	return &Warning{Message: message, SQLState: state, VendorCode: vendorCode}
}

// Next returns the following warning in the chain
func (w *Warning) Next() *Warning {
	return w.next
}

// SetNextWarning links next directly after w, replacing any existing successor
func (w *Warning) SetNextWarning(next *Warning) {
	w.next = next
}

// Record converts the warning into its report form
func (w *Warning) Record() models.WarningRecord {
	return models.WarningRecord{
		Message:    w.Message,
		Code:       w.SQLState,
		VendorCode: w.VendorCode,
		Level:      w.Level,
	}
}

// WarningSeq yields the records of the chain starting at head, stopping after
// limit links. Each range over the sequence restarts from head.
func WarningSeq(head *Warning, limit int) iter.Seq[models.WarningRecord] {
	return func(yield func(models.WarningRecord) bool) {
		n := 0
		for w := head; w != nil && n < limit; w = w.next {
			if !yield(w.Record()) {
				return
			}
			n++
		}
	}
}

// CollectWarnings returns the chain records in order, at most MaxChainDepth
func CollectWarnings(head *Warning) []models.WarningRecord {
	return slices.Collect(WarningSeq(head, MaxChainDepth))
}

// CollectWarningsLimit returns up to limit records and reports whether the chain
// continued past the cap
func CollectWarningsLimit(head *Warning, limit int) ([]models.WarningRecord, bool) {
	var records []models.WarningRecord
	w := head
	for ; w != nil && len(records) < limit; w = w.next {
		records = append(records, w.Record())
	}
	return records, w != nil
}

// Querier runs a query on a connection or transaction
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FetchWarnings runs a warnings query returning Level, Code and Message
// columns (MySQL SHOW WARNINGS) and links the rows into a chain.
func FetchWarnings(ctx context.Context, q Querier, query string) (*Warning, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch warnings: %w", err)
	}
	defer rows.Close()

	var head, tail *Warning
	for rows.Next() {
		w := &Warning{}
		if err := rows.Scan(&w.Level, &w.VendorCode, &w.Message); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		if head == nil {
			head = w
		} else {
			tail.next = w
		}
		tail = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warnings: %w", err)
	}
	return head, nil
}
