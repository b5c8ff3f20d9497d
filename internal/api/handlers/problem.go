// Package handlers implements the Control Plane API's HTTP handlers,
// translating requests into pkg/nexus.Controller operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/nexus/pkg/nexus"
)

// Problem is an RFC 7807 "problem details" response.
// https://tools.ietf.org/html/rfc7807
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ContentTypeProblemJSON is the Content-Type for RFC 7807 problem responses.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes an RFC 7807 problem response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&Problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// statusForCode maps a nexus.ErrorCode to the HTTP status the Control Plane
// API reports it as in an RFC 7807 problem response.
func statusForCode(code nexus.ErrorCode) (title string, status int) {
	switch code {
	case nexus.ErrNotFound:
		return "Not Found", http.StatusNotFound
	case nexus.ErrIncomplete:
		return "Incomplete", http.StatusConflict
	case nexus.ErrInvalid:
		return "Invalid Request", http.StatusBadRequest
	case nexus.ErrGeometryMismatch:
		return "Geometry Mismatch", http.StatusUnprocessableEntity
	case nexus.ErrOpenFailed, nexus.ErrCloseFailed, nexus.ErrDestroyFailed, nexus.ErrDeviceCreate:
		return "Device Operation Failed", http.StatusBadGateway
	case nexus.ErrLabelProbeFailed, nexus.ErrLabelMismatch:
		return "Label Validation Failed", http.StatusUnprocessableEntity
	default:
		return "Internal Server Error", http.StatusInternalServerError
	}
}

// WriteError translates err into an RFC 7807 response, mapping *nexus.Error
// via statusForCode and falling back to 500 for plain errors.
func WriteError(w http.ResponseWriter, op string, err error) {
	var nerr *nexus.Error
	if errors.As(err, &nerr) {
		title, status := statusForCode(nerr.Code)
		WriteProblem(w, status, title, nerr.Error())
		return
	}
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
}
