package scans

import (
	"errors"
	"net/http"
	"strconv"

	"kitpack/barcodes"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/metrics"
	"kitpack/infrastructure/sqlite"
	"kitpack/infrastructure/web"
)

var scanErrorTable = []web.ErrorMapping{
	{Err: ErrEmptyBatch, Status: http.StatusBadRequest, Code: "EMPTY_BATCH"},
	{Err: ErrNotComponentBarcode, Status: http.StatusUnprocessableEntity, Code: "NOT_A_COMPONENT"},
	{Err: ErrNotAChild, Status: http.StatusUnprocessableEntity, Code: "NO_MATCHING_REQUIREMENT"},
	{Err: ErrChildOvershoot, Status: http.StatusConflict, Code: "QUANTITY_EXCEEDED"},
	{Err: barcodes.ErrUnknownBarcode, Status: http.StatusNotFound, Code: "BARCODE_NOT_FOUND"},
	{Err: barcodes.ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Err: barcodes.ErrStatusConflict, Status: http.StatusConflict, Code: "STATUS_CONFLICT"},
}

// SubmitBatchCommandHandler applies an assembly scan chain.
func SubmitBatchCommandHandler(db *sqlite.DB, aud *audit.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input BatchInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		result, err := SubmitBatch(r.Context(), db, aud, actorFromRequest(r), input)
		if err != nil {
			if isBatchRejection(err) {
				m.ScanRejected("batch")
			}
			var missing *MissingChildError
			if errors.As(err, &missing) {
				web.RespondError(w, http.StatusConflict, "MISSING_CHILD_SCANS", missing.Error())
				return
			}
			web.RespondErr(w, err, scanErrorTable)
			return
		}
		m.ScanAccepted("batch")
		web.RespondCreated(w, result)
	}
}

// RecentScansQueryHandler serves the scan history.
func RecentScansQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		records, err := ListRecent(r.Context(), db, limit)
		if err != nil {
			web.RespondErr(w, err, scanErrorTable)
			return
		}
		web.RespondOK(w, records)
	}
}

// isBatchRejection keeps infrastructure failures out of the
// rejected-scans counter.
func isBatchRejection(err error) bool {
	for _, target := range []error{
		ErrEmptyBatch,
		ErrNotComponentBarcode,
		ErrNotAChild,
		ErrChildOvershoot,
		ErrMissingChildScans,
		barcodes.ErrUnknownBarcode,
		barcodes.ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func actorFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
