package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/services"
	"budgetbee/internal/storage"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// amount renders m as a JSON number with two decimals.
func amount(m core.Money) json.Number {
	return json.Number(m.String())
}

// parseDate accepts YYYY-MM-DD; empty means today.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", s)
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// userMessage maps service errors to the message shown to the page.
// Unexpected errors get a generic text.
func userMessage(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, core.ErrNegativeLimit):
		return http.StatusUnprocessableEntity, "Budget amount must be a non-negative number"
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Amount must be a positive number"
	case errors.Is(err, core.ErrInvalidMonth), errors.Is(err, core.ErrInvalidYear):
		return http.StatusUnprocessableEntity, "Invalid month or year"
	case errors.Is(err, core.ErrInvalidCategory):
		return http.StatusUnprocessableEntity, "Invalid category"
	case errors.Is(err, core.ErrInvalidType):
		return http.StatusUnprocessableEntity, "Type must be income or expense"
	case errors.Is(err, core.ErrInvalidDate):
		return http.StatusUnprocessableEntity, "Invalid date"
	case errors.Is(err, core.ErrTooLong):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrEmptyName):
		return http.StatusUnprocessableEntity, "Name is required"
	case errors.Is(err, services.ErrCategoryTypeMismatch):
		return http.StatusUnprocessableEntity, "Category does not match the transaction type"
	case errors.Is(err, services.ErrCategoryTypeChange):
		return http.StatusUnprocessableEntity, "Category type cannot be changed"
	case errors.Is(err, core.ErrInvalidAccount):
		return http.StatusUnprocessableEntity, "Invalid account"
	case errors.Is(err, core.ErrInUse):
		return http.StatusConflict, "Category still has transactions"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// writeError logs unexpected failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := userMessage(err)
	if status >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}
	ErrorResponse(status, msg).Write(w)
}
