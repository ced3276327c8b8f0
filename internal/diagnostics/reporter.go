package diagnostics

import (
	"errors"

	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// CollectBatchFailure extracts the per-statement outcome of a failed batch
func CollectBatchFailure(err error) (*models.BatchFailureReport, bool) {
	var batchErr *models.BatchError
	if !errors.As(err, &batchErr) {
		return nil, false
	}

	report := &models.BatchFailureReport{
		UpdateCounts: append([]int64(nil), batchErr.UpdateCounts...),
		FailedIndex:  batchErr.Index,
	}
	if batchErr.Err != nil {
		report.Code, report.VendorCode = CodeOf(batchErr.Err)
		report.Message = batchErr.Err.Error()
	}
	return report, true
}

// CollectErrorChain lists err and each of its causes, outermost first
func CollectErrorChain(err error) []models.ErrorRecord {
	var records []models.ErrorRecord
	for depth := 0; err != nil && depth < MaxChainDepth; depth++ {
		code, vendor, _ := ownCode(err)
		records = append(records, models.ErrorRecord{
			Message:    err.Error(),
			Code:       code,
			VendorCode: vendor,
		})
		err = errors.Unwrap(err)
	}
	return records
}
