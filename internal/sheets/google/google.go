package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/sheets"
)

// DefaultAlertSheet is the base sheet name; the year is prefixed per row.
const DefaultAlertSheet = "Budget Alerts"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Budget Alerts"); code prefixes year.
	sheetBase string
	logger    *slog.Logger
}

var _ sheets.AlertLog = (*Client)(nil)

// Config configures the alert log client.
type Config struct {
	SpreadsheetID string
	SheetName     string
	Logger        *slog.Logger
	// Options replace the service account lookup, e.g. for tests.
	Options []goption.ClientOption
}

// New creates a Sheets client. Without Options, credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, then from the GOOGLE_OAUTH_* client and
// token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = DefaultAlertSheet
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldComponent, applog.ComponentSheets)

	opts := cfg.Options
	if len(opts) == 0 {
		var err error
		if opts, err = credentialOptions(ctx, logger); err != nil {
			return nil, err
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets alert log ready", "spreadsheet_id", spreadsheetID, "sheet", base)

	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: base, logger: logger}, nil
}

// credentialOptions prefers a service account and falls back to a user
// OAuth token as written by Authorize.
func credentialOptions(ctx context.Context, logger *slog.Logger) ([]goption.ClientOption, error) {
	creds, saErr := serviceAccountCredentials(ctx, logger)
	if saErr == nil {
		return []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}
	clientJSON, ok, err := oauthClientJSON()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, saErr
	}
	logger.DebugContext(ctx, "Using OAuth user token")
	return oauthOptions(ctx, clientJSON)
}

// serviceAccountCredentials reads Service Account JSON from the environment.
func serviceAccountCredentials(ctx context.Context, logger *slog.Logger) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		logger.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		logger.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS, or run sheets-auth)")
	}
}

// AppendAlert adds row at the end of the sheet of the row's year.
func (c *Client) AppendAlert(ctx context.Context, row sheets.AlertRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, row.Period.Year)
	rng := fmt.Sprintf("%s!A:I", quoteSheet(sheet))
	vr := &gsheet.ValueRange{Values: [][]any{formatAlertRow(row)}}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append alert to %s: %w", sheet, err)
	}

	c.logger.DebugContext(ctx, "Alert appended",
		applog.FieldCategoryID, row.CategoryID.String(),
		applog.FieldLevel, row.Level.String(),
		applog.FieldPeriod, row.Period.String())
	return nil
}

// ListAlerts reads the sheet of p's year and keeps p's rows. Rows that do
// not parse are skipped.
func (c *Client) ListAlerts(ctx context.Context, p core.Period) ([]sheets.AlertRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, p.Year)
	rng := fmt.Sprintf("%s!A:I", quoteSheet(sheet))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []sheets.AlertRow
	for _, values := range resp.Values {
		row, ok := parseAlertRow(toStrings(values))
		if !ok || row.Period != p {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func formatAlertRow(r sheets.AlertRow) []any {
	return []any{
		r.At.UTC().Format(time.RFC3339),
		r.Period.String(),
		r.CategoryID.String(),
		r.Name,
		r.Level.String(),
		r.Spent.String(),
		r.Limit.String(),
		r.Percent,
		core.FormatMoney(core.Money{Cents: r.Limit.Cents - r.Spent.Cents}),
	}
}
