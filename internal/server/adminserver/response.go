package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yndnr/camhub-go/internal/telemetry/logger"
)

// Error codes returned in the response envelope.
const (
	CodeOK       = "OK"
	CodeNotReady = "CH-SYS-5030"
	CodeInternal = "CH-SYS-5000"
	CodeNotFound = "CH-SYS-4040"
)

// Response is the JSON envelope of every non-metrics response.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, Response{
		Code:      CodeOK,
		Message:   "Success",
		RequestID: logger.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("X-Error-Code", code)
	write(w, status, Response{
		Code:      code,
		Message:   message,
		RequestID: logger.RequestIDFromContext(r.Context()),
		Timestamp: time.Now().UnixMilli(),
	})
}

func write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
