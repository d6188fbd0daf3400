// Package api provides HTTP response utilities for FormCadence.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/FormCadence/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.ErrorWithCode(models.CodeInternal, "Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal the response to JSON first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForCode maps a failure category onto an HTTP status.
func statusForCode(code models.ErrorCode) int {
	switch code {
	case models.CodeInvalidInput, models.CodeCycleTooLong:
		return http.StatusBadRequest
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodePreconditionViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status its category maps to. Internal
// failures are logged and their details withheld from the client.
func writeError(w http.ResponseWriter, handler string, err error) {
	code := models.CodeOf(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		slog.Error("Server."+handler+": request failed", "error", err)
		writeJSONResponse(w, status, models.ErrorWithCode(models.CodeInternal, "Internal server error"))
		return
	}
	slog.Warn("Server."+handler+": request rejected", "error", err, "code", code)
	writeJSONResponse(w, status, models.ErrorWithCode(code, err.Error()))
}

// writeOutcome reports an expected success or rejection.
func writeOutcome(w http.ResponseWriter, out models.Outcome) {
	if out.OK {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(out.Message, out))
		return
	}
	resp := models.ErrorWithCode(out.Code, out.Message)
	resp.Result = out
	writeJSONResponse(w, statusForCode(out.Code), resp)
}

// decodeJSON decodes the request body into v, answering 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, handler string, v interface{}) bool {
	if r.Body == nil {
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithCode(models.CodeInvalidInput, "Request body is required"))
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Server."+handler+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithCode(models.CodeInvalidInput, "Invalid JSON format"))
		return false
	}
	return true
}
