package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Envelope is the wire shape of every API response. Success responses
// carry Data; failures carry Code and Error.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

const maxBodyBytes = 1 << 20

// DecodeJSON reads a request body into dst, rejecting oversized or
// malformed payloads.
func DecodeJSON(r *http.Request, dst any) error {
	defer io.Copy(io.Discard, r.Body)
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// RespondOK writes a success envelope.
func RespondOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// RespondCreated writes a success envelope with 201.
func RespondCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// RespondError writes a failure envelope with the given status and
// machine-readable code.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Success: false, Code: code, Error: message})
}

// RespondErr maps err through the given table of sentinel errors to a
// status and code, falling back to a logged 500.
func RespondErr(w http.ResponseWriter, err error, table []ErrorMapping) {
	for _, m := range table {
		if errors.Is(err, m.Err) {
			RespondError(w, m.Status, m.Code, err.Error())
			return
		}
	}
	slog.Error("unhandled api error", slog.String("error", err.Error()))
	RespondError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

// ErrorMapping binds one sentinel error to its HTTP representation.
type ErrorMapping struct {
	Err    error
	Status int
	Code   string
}

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("write response", slog.String("error", err.Error()))
	}
}
