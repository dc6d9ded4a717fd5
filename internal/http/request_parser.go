// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept form-encoded and JSON bodies alike.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgetbee/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 64 << 10

// ParseMonthParams extracts month and year, using the current month for
// absent values. Present but malformed values are an error.
func ParseMonthParams(get func(string) string, now time.Time) (core.Period, error) {
	p := core.CurrentPeriod(now)

	if v := strings.TrimSpace(get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("year %q: %w", v, core.ErrInvalidYear)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, fmt.Errorf("month %q: %w", v, core.ErrInvalidMonth)
		}
		p.Month = m
	}

	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errors.New("request body too large")
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseBody reads the request body or writes a 400 and returns nil.
func parseBody(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request body").Write(w)
		return nil
	}
	return p
}
