// Package response renders the JSON envelope every API endpoint shares.
package response

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"badgehub/internal/middleware"
	"badgehub/internal/services"

	"go.uber.org/zap"
)

// ===============================
// RESPONSE TYPES
// ===============================

// APIResponse represents a standardized API response
type APIResponse struct {
	Success   bool         `json:"success"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	Meta      *Meta        `json:"meta,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

// ErrorDetail represents error information in API responses
type ErrorDetail struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Meta carries collection metadata alongside list payloads.
type Meta struct {
	Count int `json:"count,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// ===============================
// RESPONSE WRITER
// ===============================

// Writer renders envelopes. Construct once and share across handlers.
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a response writer.
func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// JSON writes a success envelope with the given status.
func (w *Writer) JSON(ctx context.Context, rw http.ResponseWriter, status int, data interface{}) {
	w.write(ctx, rw, status, &APIResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.RequestIDFromContext(ctx),
		Timestamp: time.Now().Unix(),
	})
}

// List writes a success envelope with collection metadata.
func (w *Writer) List(ctx context.Context, rw http.ResponseWriter, data interface{}, count, limit int) {
	w.write(ctx, rw, http.StatusOK, &APIResponse{
		Success:   true,
		Data:      data,
		Meta:      &Meta{Count: count, Limit: limit},
		RequestID: middleware.RequestIDFromContext(ctx),
		Timestamp: time.Now().Unix(),
	})
}

// Error maps a service error onto the HTTP response. Internal causes are
// logged, never exposed.
func (w *Writer) Error(ctx context.Context, rw http.ResponseWriter, err error) {
	serviceErr := services.GetServiceError(err)
	status := serviceErr.GetStatusCode()

	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(ctx, w.logger).Error("Request failed with internal error",
			zap.String("error_type", serviceErr.Type),
			zap.Error(serviceErr),
		)
	}

	w.write(ctx, rw, status, &APIResponse{
		Success: false,
		Error: &ErrorDetail{
			Type:    serviceErr.Type,
			Message: serviceErr.Message,
			Code:    serviceErr.Code,
			Details: serviceErr.Details,
		},
		RequestID: middleware.RequestIDFromContext(ctx),
		Timestamp: time.Now().Unix(),
	})
}

// ValidationError is a shorthand for malformed request input.
func (w *Writer) ValidationError(ctx context.Context, rw http.ResponseWriter, message string) {
	w.Error(ctx, rw, services.NewValidationError(message, nil))
}

func (w *Writer) write(ctx context.Context, rw http.ResponseWriter, status int, body *APIResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		middleware.LoggerFromContext(ctx, w.logger).Error("Failed to encode response", zap.Error(err))
	}
}
