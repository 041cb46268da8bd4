package bom

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/sqlite"
	"kitpack/infrastructure/web"
)

var kitErrorTable = []web.ErrorMapping{
	{Err: ErrKitNotFound, Status: http.StatusNotFound, Code: "KIT_NOT_FOUND"},
	{Err: ErrKitLocked, Status: http.StatusConflict, Code: "KIT_LOCKED"},
	{Err: ErrDepthExceeded, Status: http.StatusUnprocessableEntity, Code: "MAX_DEPTH_EXCEEDED"},
	{Err: ErrDuplicateCategory, Status: http.StatusConflict, Code: "DUPLICATE_CATEGORY"},
	{Err: ErrDuplicateComponent, Status: http.StatusConflict, Code: "DUPLICATE_COMPONENT"},
	{Err: ErrUnknownParent, Status: http.StatusNotFound, Code: "PARENT_NOT_FOUND"},
	{Err: ErrUnknownComponent, Status: http.StatusNotFound, Code: "COMPONENT_NOT_FOUND"},
	{Err: ErrHasChildren, Status: http.StatusConflict, Code: "HAS_SUB_COMPONENTS"},
	{Err: ErrComponentInUse, Status: http.StatusConflict, Code: "COMPONENT_IN_USE"},
}

// KitsQueryHandler lists all kits.
func KitsQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kits, err := ListKits(r.Context(), db)
		if err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondOK(w, kits)
	}
}

// CreateKitCommandHandler creates an empty kit.
func CreateKitCommandHandler(db *sqlite.DB, aud *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		kit, err := CreateKit(r.Context(), db, aud, actorFromRequest(r), req.Name, req.Description)
		if err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondCreated(w, kit)
	}
}

// KitRequirementsQueryHandler serves the flattened BOM of one kit.
func KitRequirementsQueryHandler(db *sqlite.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kitID, err := parseKitID(r)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid kit id")
			return
		}
		reqs, err := Requirements(r.Context(), db, kitID)
		if err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondOK(w, reqs)
	}
}

// AddKitComponentCommandHandler adds a top-level or nested requirement.
func AddKitComponentCommandHandler(db *sqlite.DB, aud *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kitID, err := parseKitID(r)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid kit id")
			return
		}
		var input AddComponentInput
		if err := web.DecodeJSON(r, &input); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		input.KitID = kitID
		view, err := AddComponent(r.Context(), db, aud, actorFromRequest(r), input)
		if err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondCreated(w, view)
	}
}

// UpdateKitComponentCommandHandler changes a requirement quantity.
func UpdateKitComponentCommandHandler(db *sqlite.DB, aud *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kitID, err := parseKitID(r)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid kit id")
			return
		}
		componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid component id")
			return
		}
		var req struct {
			RequiredQuantity int64 `json:"required_quantity"`
		}
		if err := web.DecodeJSON(r, &req); err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		if err := UpdateComponentQuantity(r.Context(), db, aud, actorFromRequest(r), kitID, componentID, req.RequiredQuantity); err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondOK(w, nil)
	}
}

// RemoveKitComponentCommandHandler removes a requirement from a kit.
// ?cascade=1 removes the whole subtree; ?delete=1 also deletes the
// component rows when nothing else references them.
func RemoveKitComponentCommandHandler(db *sqlite.DB, aud *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kitID, err := parseKitID(r)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid kit id")
			return
		}
		componentID, err := strconv.ParseInt(chi.URLParam(r, "componentID"), 10, 64)
		if err != nil {
			web.RespondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid component id")
			return
		}
		cascade := r.URL.Query().Get("cascade") == "1"
		deleteGlobally := r.URL.Query().Get("delete") == "1"
		if err := RemoveComponent(r.Context(), db, aud, actorFromRequest(r), kitID, componentID, cascade, deleteGlobally); err != nil {
			web.RespondErr(w, err, kitErrorTable)
			return
		}
		web.RespondOK(w, nil)
	}
}

func parseKitID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "kitID"), 10, 64)
}

// actorFromRequest reads the X-Actor-ID header set by upstream
// authentication. Unauthenticated callers act as the system actor 0.
func actorFromRequest(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
