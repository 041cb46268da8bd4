package barcodes

import (
	"net/http"
	"strconv"

	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/metrics"
	"kitpack/infrastructure/sqlite"
	"kitpack/infrastructure/web"
)

var barcodeErrorTable = []web.ErrorMapping{
	{Err: ErrUnknownBarcode, Status: http.StatusNotFound, Code: "BARCODE_NOT_FOUND"},
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Err: ErrAlreadyBoxed, Status: http.StatusConflict, Code: "ALREADY_BOXED"},
	{Err: ErrStatusConflict, Status: http.StatusConflict, Code: "STATUS_CONFLICT"},
}

// GenerateCommandHandler mints a batch of barcodes for a component or
// box.
func GenerateCommandHandler(db *sqlite.DB, aud *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input GenerateInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		generated, err := Generate(r.Context(), db, aud, actorFromRequest(r), input)
		if err != nil {
			web.RespondErr(w, err, barcodeErrorTable)
			return
		}
		web.RespondCreated(w, generated)
	}
}

// PreviewScanQueryHandler resolves a barcode without state change.
func PreviewScanQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Barcode string `json:"barcode"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		preview, err := PreviewScan(r.Context(), db, req.Barcode)
		if err != nil {
			web.RespondErr(w, err, barcodeErrorTable)
			return
		}
		web.RespondOK(w, preview)
	}
}

// ScanCommandHandler marks a component barcode SCANNED.
func ScanCommandHandler(db *sqlite.DB, aud *audit.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Barcode string `json:"barcode"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		b, err := Scan(r.Context(), db, aud, actorFromRequest(r), req.Barcode)
		if err != nil {
			m.ScanRejected("component")
			web.RespondErr(w, err, barcodeErrorTable)
			return
		}
		m.ScanAccepted("component")
		web.RespondOK(w, b)
	}
}

// UnscanCommandHandler rolls a SCANNED barcode back to CREATED.
func UnscanCommandHandler(db *sqlite.DB, aud *audit.Service, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Barcode string `json:"barcode"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		b, err := Unscan(r.Context(), db, aud, actorFromRequest(r), req.Barcode)
		if err != nil {
			m.ScanRejected("unscan")
			web.RespondErr(w, err, barcodeErrorTable)
			return
		}
		m.ScanAccepted("unscan")
		web.RespondOK(w, b)
	}
}

// ScannedNotBoxedQueryHandler lists scanned component barcodes waiting
// to be packed.
func ScannedNotBoxedQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := ListScannedNotBoxed(r.Context(), db)
		if err != nil {
			web.RespondErr(w, err, barcodeErrorTable)
			return
		}
		web.RespondOK(w, items)
	}
}

func actorFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
