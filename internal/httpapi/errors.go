package httpapi

import (
	"encoding/json"
	"net/http"

	"llmd/internal/manager"
	"llmd/internal/session"
	"llmd/pkg/types"
)

// OpenAI error types and codes used by the /v1 inference endpoints.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeServer         = "server_error"
	errTypeRateLimit      = "rate_limit_error"

	codeModelNotFound = "model_not_found"
	codeWrongType     = "model_wrong_type"
	codeSessionBusy   = "session_busy"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the flat management error payload {"error": msg}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// writeOpenAIError writes the OpenAI error envelope. An empty code is encoded
// as null; param is always null.
func writeOpenAIError(w http.ResponseWriter, status int, msg, typ, code string) {
	body := types.OpenAIErrorBody{Message: msg, Type: typ}
	if code != "" {
		body.Code = &code
	}
	writeJSON(w, status, types.OpenAIError{Error: body})
}

// badRequest writes a 400 OpenAI error for a malformed request.
func badRequest(w http.ResponseWriter, msg string) {
	writeOpenAIError(w, http.StatusBadRequest, msg, errTypeInvalidRequest, "")
}

// classify maps a manager or session failure to status, OpenAI type and code.
func classify(err error) (status int, typ, code string) {
	switch {
	case manager.IsNotFound(err):
		return http.StatusNotFound, errTypeInvalidRequest, codeModelNotFound
	case manager.IsWrongCategory(err):
		return http.StatusBadRequest, errTypeInvalidRequest, codeWrongType
	case session.IsBusy(err):
		return http.StatusTooManyRequests, errTypeRateLimit, codeSessionBusy
	default:
		return http.StatusInternalServerError, errTypeServer, ""
	}
}

// writeOpenAIFailure writes err in the OpenAI envelope using classify.
func writeOpenAIFailure(w http.ResponseWriter, err error) {
	status, typ, code := classify(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(code)
	}
	writeOpenAIError(w, status, err.Error(), typ, code)
}

// writeManagementFailure writes err in the flat envelope using classify.
func writeManagementFailure(w http.ResponseWriter, err error) {
	status, _, _ := classify(err)
	writeJSONError(w, status, err.Error())
}
