package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	"budgetbee/internal/sheets"
)

// fakeSheets serves the two Values endpoints the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	appended [][]any
	paths    []string
	values   [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.appended = append(f.appended, vr.Values...)
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Values: f.values})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-1",
		Options: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithoutAuthentication(),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("err = %v", err)
	}
}

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestNew_OAuthFallback(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	tests := []struct {
		name    string
		client  string
		token   string
		wantErr string
	}{
		{"invalid client", "invalid-json", `{"access_token":"test"}`, "oauth config"},
		{"missing token", testOAuthClient, "", "missing oauth token"},
		{"invalid token", testOAuthClient, "{", "parse oauth token"},
		{"valid", testOAuthClient, `{"access_token":"test","token_type":"Bearer"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", tt.client)
			t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", tt.token)
			t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", "")

			_, err := New(context.Background(), Config{SpreadsheetID: "x"})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "abc", RefreshToken: "def", TokenType: "Bearer"}
	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", "")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", path)
	got, err := oauthToken()
	if err != nil {
		t.Fatalf("oauthToken: %v", err)
	}
	if got.AccessToken != "abc" || got.RefreshToken != "def" {
		t.Errorf("token = %+v", got)
	}
}

func TestCallbackHandler(t *testing.T) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	h := callbackHandler(codeCh, errCh)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/callback?code=xyz", nil))
	if rec.Code != http.StatusOK || <-codeCh != "xyz" {
		t.Errorf("code callback: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("error callback: status %d", rec.Code)
	}
	if err := <-errCh; err == nil || !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("err = %v", err)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty callback: status %d", rec.Code)
	}
}

func TestAppendAlert(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	sink := sheets.NewSink(c)
	alert := budget.Alert{
		CategoryID: "food",
		Name:       "Food",
		Level:      budget.LevelWarn,
		Spent:      core.Money{Cents: 46000},
		Limit:      core.Money{Cents: 50000},
		Percent:    92,
		Period:     core.Period{Month: 3, Year: 2025},
	}
	if err := sink.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(fake.appended) != 1 {
		t.Fatalf("appended %d rows", len(fake.appended))
	}
	row := toStrings(fake.appended[0])
	want := []string{"03/2025", "food", "Food", "warn", "460.00", "500.00", "92", "Rs. 40.00"}
	if strings.Join(row[1:], "|") != strings.Join(want, "|") {
		t.Errorf("row = %v, want %v", row[1:], want)
	}
	if !strings.Contains(fake.paths[0], "2025 Budget Alerts") {
		t.Errorf("appended to %s", fake.paths[0])
	}
}

func TestListAlerts(t *testing.T) {
	fake := &fakeSheets{values: [][]any{
		{"Time", "Period", "Category", "Name", "Level", "Spent", "Limit", "Percent"},
		{"2025-03-09T10:00:00Z", "03/2025", "food", "Food", "warn", "460.00", "500.00", "92"},
		{"2025-04-01T10:00:00Z", "04/2025", "food", "Food", "full", "500.00", "500.00", "100"},
		{"2025-03-10T10:00:00Z", "03/2025", "bills", "Bills", "full", "210", "200", "100"},
		{"garbage"},
	}}
	c := newTestClient(t, fake)

	rows, err := c.ListAlerts(context.Background(), core.Period{Month: 3, Year: 2025})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].CategoryID != "food" || rows[0].Spent.Cents != 46000 || rows[0].Percent != 92 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Level != budget.LevelFull || !rows[1].At.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("second row = %+v", rows[1])
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Budget Alerts", 2025, "2025 Budget Alerts"},
		{"2024 Alerts", 2025, "2024 Alerts"},
		{"  ", 2025, ""},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's 2025"); got != "'Bob''s 2025'" {
		t.Errorf("quoteSheet = %q", got)
	}
}
