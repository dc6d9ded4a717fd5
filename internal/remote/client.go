// Package remote talks to the ledger server on behalf of a watcher session.
// It implements budget.Remote and budget.SnapshotLoader.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

const (
	maxBodySize = 1 << 20 // 1 MB
	userAgent   = "budget-watcher/1.0"

	opFetchSpent   = "fetch spent"
	opSaveBudget   = "save budget"
	opLoadSnapshot = "load snapshot"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds each request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the HTTP implementation of the remote ledger ports.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ budget.Remote         = (*Client)(nil)
	_ budget.SnapshotLoader = (*Client)(nil)
)

func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:    base,
		timeout: cfg.Timeout,
		http:    hc,
		logger:  logger.With(applog.FieldComponent, applog.ComponentRemote),
	}, nil
}

// figuresResponse is the body of the spent and save endpoints. Amounts stay
// raw so malformed values can be coerced instead of failing the decode.
type figuresResponse struct {
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Spent   json.RawMessage `json:"spent"`
	Budget  json.RawMessage `json:"budget"`
	Name    string          `json:"name"`
	Icon    string          `json:"icon"`
}

func (r figuresResponse) figures() budget.Figures {
	return budget.Figures{
		Spent: parseAmount(r.Spent),
		Limit: parseAmount(r.Budget),
		Name:  r.Name,
		Icon:  r.Icon,
	}
}

type snapshotResponse struct {
	Success *bool                      `json:"success"`
	Error   string                     `json:"error"`
	Budgets map[string]figuresResponse `json:"budgets"`
}

// FetchSpent returns the server's figures for one category in p.
func (c *Client) FetchSpent(ctx context.Context, id core.CategoryID, p core.Period) (budget.Figures, error) {
	form := periodForm(p)
	form.Set("category", id.String())

	status, body, err := c.do(ctx, opFetchSpent, http.MethodPost, "/budget/spent", form)
	if err != nil {
		return budget.Figures{}, err
	}

	var resp figuresResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Success == nil {
		return budget.Figures{}, budget.Malformed(opFetchSpent, err)
	}
	if !*resp.Success || status >= 300 {
		return budget.Figures{}, &budget.TransportError{Op: opFetchSpent, Err: serverError(status, resp.Error)}
	}
	return resp.figures(), nil
}

// SaveBudget persists limit for category id in p. A rejection carrying a
// server message comes back as *budget.ValidationError.
func (c *Client) SaveBudget(ctx context.Context, id core.CategoryID, limit core.Money, p core.Period) (budget.Figures, error) {
	form := periodForm(p)
	form.Set("category", id.String())
	form.Set("amount", limit.String())

	status, body, err := c.do(ctx, opSaveBudget, http.MethodPost, "/budget/save", form)
	if err != nil {
		return budget.Figures{}, err
	}

	var resp figuresResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Success == nil {
		return budget.Figures{}, budget.Malformed(opSaveBudget, err)
	}
	if !*resp.Success {
		if resp.Error == "" || status == http.StatusTooManyRequests {
			return budget.Figures{}, &budget.TransportError{Op: opSaveBudget, Err: serverError(status, resp.Error)}
		}
		return budget.Figures{}, &budget.ValidationError{Message: resp.Error}
	}
	return resp.figures(), nil
}

// LoadSnapshot returns every budget of p as the server reports it.
func (c *Client) LoadSnapshot(ctx context.Context, p core.Period) (budget.Snapshot, error) {
	status, body, err := c.do(ctx, opLoadSnapshot, http.MethodGet, "/budget/snapshot?"+periodForm(p).Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp snapshotResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Success == nil {
		return nil, budget.Malformed(opLoadSnapshot, err)
	}
	if !*resp.Success || status >= 300 {
		return nil, &budget.TransportError{Op: opLoadSnapshot, Err: serverError(status, resp.Error)}
	}
	if resp.Budgets == nil {
		return nil, budget.Malformed(opLoadSnapshot, errors.New("missing budgets"))
	}

	snap := make(budget.Snapshot, len(resp.Budgets))
	for id, f := range resp.Budgets {
		cid, err := core.ParseCategoryID(id)
		if err != nil {
			continue
		}
		snap[cid] = f.figures()
	}
	return snap, nil
}

// do performs the request and returns status and body. Transport problems
// and 5xx responses come back as *budget.TransportError; other statuses are
// left to the caller, whose endpoint decides what a 4xx means.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return 0, nil, &budget.TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &budget.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "Remote call completed",
		applog.FieldOperation, op,
		applog.FieldPath, req.URL.Path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode >= 500 {
		return resp.StatusCode, nil, &budget.TransportError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, &budget.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	return resp.StatusCode, data, nil
}

func periodForm(p core.Period) url.Values {
	return url.Values{
		"month": {strconv.Itoa(p.Month)},
		"year":  {strconv.Itoa(p.Year)},
	}
}

func serverError(status int, msg string) error {
	if msg == "" {
		return fmt.Errorf("server reported failure (status %d)", status)
	}
	return fmt.Errorf("server reported failure (status %d): %s", status, msg)
}

// parseAmount decodes a JSON number or numeric string. Missing, NaN,
// non-numeric and negative values become zero.
func parseAmount(raw json.RawMessage) core.Money {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return core.Money{}
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Money{}
		}
		s = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return core.Money{}
	}
	return core.MoneyFromDecimal(d)
}
