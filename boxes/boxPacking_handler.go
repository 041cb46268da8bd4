package boxes

import (
	"errors"
	"net/http"
	"strconv"

	"kitpack/barcodes"
	"kitpack/bom"
	"kitpack/infrastructure/web"
)

var boxErrorTable = []web.ErrorMapping{
	{Err: barcodes.ErrUnknownBarcode, Status: http.StatusNotFound, Code: "BARCODE_NOT_FOUND"},
	{Err: bom.ErrKitNotFound, Status: http.StatusNotFound, Code: "KIT_NOT_FOUND"},
	{Err: ErrSessionNotFound, Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND"},
	{Err: ErrNotABox, Status: http.StatusUnprocessableEntity, Code: "NOT_A_BOX"},
	{Err: ErrNotComponentBarcode, Status: http.StatusUnprocessableEntity, Code: "NOT_A_COMPONENT"},
	{Err: ErrSessionClosed, Status: http.StatusConflict, Code: "BOX_ALREADY_COMPLETED"},
	{Err: ErrBoxAlreadyPacked, Status: http.StatusConflict, Code: "BOX_ALREADY_COMPLETED"},
	{Err: ErrKitMismatch, Status: http.StatusConflict, Code: "KIT_MISMATCH"},
	{Err: ErrQuantityExceeded, Status: http.StatusConflict, Code: "QUANTITY_EXCEEDED"},
	{Err: ErrAlreadyConsumed, Status: http.StatusConflict, Code: "ALREADY_BOXED"},
	{Err: ErrNoMatchingRequirement, Status: http.StatusUnprocessableEntity, Code: "NO_MATCHING_REQUIREMENT"},
	{Err: ErrNotScanned, Status: http.StatusNotFound, Code: "NOT_IN_BOX"},
	{Err: ErrConcurrentModification, Status: http.StatusConflict, Code: "CONCURRENT_MODIFICATION"},
	{Err: barcodes.ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Err: barcodes.ErrStatusConflict, Status: http.StatusConflict, Code: "STATUS_CONFLICT"},
}

// StartBoxCommandHandler opens or resumes a box packing session.
func StartBoxCommandHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input StartInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		view, err := c.Start(r.Context(), actorFromRequest(r), input)
		if err != nil {
			web.RespondErr(w, err, boxErrorTable)
			return
		}
		web.RespondOK(w, view)
	}
}

// ScanItemCommandHandler counts one item scan into the box.
func ScanItemCommandHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input ScanInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		view, err := c.Scan(r.Context(), actorFromRequest(r), input)
		if err != nil {
			web.RespondErr(w, err, boxErrorTable)
			return
		}
		web.RespondOK(w, view)
	}
}

// RemoveItemCommandHandler takes an item back out of the box.
func RemoveItemCommandHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input ScanInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		view, err := c.RemoveItem(r.Context(), actorFromRequest(r), input)
		if err != nil {
			web.RespondErr(w, err, boxErrorTable)
			return
		}
		web.RespondOK(w, view)
	}
}

// CompleteBoxCommandHandler closes the session when every requirement
// is satisfied. An incomplete box answers 409 with the unmet list.
func CompleteBoxCommandHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input StartInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		view, err := c.Complete(r.Context(), actorFromRequest(r), input.BoxBarcode)
		if err != nil {
			var incomplete *IncompleteError
			if errors.As(err, &incomplete) {
				web.RespondError(w, http.StatusConflict, "BOX_INCOMPLETE", incomplete.Error())
				return
			}
			web.RespondErr(w, err, boxErrorTable)
			return
		}
		web.RespondOK(w, view)
	}
}

// BoxStatusQueryHandler reconstructs the state of a box.
func BoxStatusQueryHandler(c *Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boxBarcode := r.URL.Query().Get("box_barcode")
		if boxBarcode == "" {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "box_barcode is required")
			return
		}
		view, err := c.Status(r.Context(), boxBarcode)
		if err != nil {
			web.RespondErr(w, err, boxErrorTable)
			return
		}
		web.RespondOK(w, view)
	}
}

func actorFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
