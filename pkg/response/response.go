package response

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every REST reply uses. Data is omitted on
// errors, Message on success.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON writes a success envelope with the given payload.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Status: "success",
		Data:   data,
	})
}

// Error writes an error envelope with a caller-facing message.
func Error(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Status:  "error",
		Message: msg,
	})
}

// NoContent acknowledges a mutation that has no body to return. Clients
// learn the outcome from the change feed, not from the response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
