// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// with HX-Trigger headers, so pages using htmx and plain fetch clients see
// the same events.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"budgetbee/internal/core"
)

// TriggerTransactionChanged is the event pages listen to for budget refreshes.
const TriggerTransactionChanged = "transaction:changed"

// HTMXResponseBuilder provides a fluent API for building responses.
// It encapsulates the construction of HX-Trigger headers and response bodies.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	body       any
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TransactionChangedDetail is the payload of the transaction:changed trigger.
type TransactionChangedDetail struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Type       string `json:"type"`
	Action     string `json:"action"`
	Month      int    `json:"month"`
	Year       int    `json:"year"`
}

// TriggerTransaction adds the transaction:changed trigger for t.
func (b *HTMXResponseBuilder) TriggerTransaction(t core.Transaction, action core.Action) *HTMXResponseBuilder {
	p := t.Period()
	return b.Trigger(TriggerTransactionChanged, TransactionChangedDetail{
		CategoryID: t.CategoryID.String(),
		Amount:     t.Amount.String(),
		Type:       string(t.Type),
		Action:     string(action),
		Month:      p.Month,
		Year:       p.Year,
	})
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets v as the response body.
func (b *HTMXResponseBuilder) JSON(v any) *HTMXResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if len(b.triggers) > 0 {
		triggerJSON, err := json.Marshal(b.triggers)
		if err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ErrorResponse creates the standard {success:false, error} response.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		JSON(errorBody{Success: false, Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}
