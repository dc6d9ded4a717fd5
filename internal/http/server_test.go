package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"budgetbee/internal/amqp"
	"budgetbee/internal/cache"
	"budgetbee/internal/services"
	"budgetbee/internal/storage"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionChangedMessage
}

func (p *fakePublisher) PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type testServer struct {
	*Server
	pub *fakePublisher
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	spent := cache.NewMemorySpentCache(64, time.Minute)
	pub := &fakePublisher{}
	txs := services.NewTransactionService(repo, spent, pub, nil)
	srv, err := NewServer(":0", Services{
		Transactions: txs,
		Budgets:      services.NewBudgetService(repo, spent, nil),
		Categories:   services.NewCategoryService(repo),
		Accounts:     services.NewAccountService(repo, txs),
	}, opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, pub: pub}
}

func (s *testServer) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, r)
	return w
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("body %q is not JSON: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	if w := srv.get(t, "/healthz"); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
	if w := srv.get(t, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("readyz = %d", w.Code)
	}

	down := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("db gone") }})
	if w := down.get(t, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing check = %d", w.Code)
	}
}

func TestBudgetSaveAndSpent(t *testing.T) {
	srv := newTestServer(t, Options{})

	w := srv.post(t, "/budget/save", url.Values{"category": {"food"}, "amount": {"500"}, "month": {"3"}, "year": {"2025"}})
	if w.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["budget"] != 500.0 || body["spent"] != 0.0 || body["name"] != "Food" || body["icon"] != "🍔" {
		t.Errorf("save body = %v", body)
	}

	add := srv.post(t, "/transaction/add", url.Values{"category": {"food"}, "amount": {"460"}, "type": {"expense"}, "date": {"2025-03-09"}})
	if add.Code != http.StatusOK {
		t.Fatalf("add status %d: %s", add.Code, add.Body.String())
	}

	w = srv.post(t, "/budget/spent", url.Values{"category": {"food"}, "month": {"3"}, "year": {"2025"}})
	body = decode(t, w)
	if body["spent"] != 460.0 || body["budget"] != 500.0 {
		t.Errorf("spent body = %v", body)
	}

	// Another month has its own figures.
	w = srv.post(t, "/budget/spent", url.Values{"category": {"food"}, "month": {"4"}, "year": {"2025"}})
	body = decode(t, w)
	if body["spent"] != 0.0 || body["budget"] != 0.0 {
		t.Errorf("april body = %v", body)
	}
}

func TestBudgetSaveRejects(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name     string
		form     url.Values
		wantCode int
		wantMsg  string
	}{
		{"negative", url.Values{"category": {"food"}, "amount": {"-5"}}, http.StatusUnprocessableEntity, "Budget amount must be a non-negative number"},
		{"garbage", url.Values{"category": {"food"}, "amount": {"lots"}}, http.StatusUnprocessableEntity, "Budget amount must be a non-negative number"},
		{"income category", url.Values{"category": {"salary"}, "amount": {"10"}}, http.StatusUnprocessableEntity, "Invalid category"},
		{"unknown category", url.Values{"category": {"nope"}, "amount": {"10"}}, http.StatusNotFound, "Not found"},
		{"no category", url.Values{"amount": {"10"}}, http.StatusBadRequest, "Category is required"},
		{"bad month", url.Values{"category": {"food"}, "amount": {"10"}, "month": {"13"}}, http.StatusUnprocessableEntity, "Invalid month or year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.post(t, "/budget/save", tt.form)
			if w.Code != tt.wantCode {
				t.Errorf("status %d, want %d", w.Code, tt.wantCode)
			}
			body := decode(t, w)
			if body["success"] != false || body["error"] != tt.wantMsg {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestBudgetSnapshot(t *testing.T) {
	srv := newTestServer(t, Options{})
	srv.post(t, "/budget/save", url.Values{"category": {"bills"}, "amount": {"200.50"}})

	w := srv.get(t, "/budget/snapshot?month=3&year=2025")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Month   int  `json:"month"`
		Budgets map[string]struct {
			Spent  float64 `json:"spent"`
			Budget float64 `json:"budget"`
			Name   string  `json:"name"`
		} `json:"budgets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Month != 3 || len(resp.Budgets) != 5 {
		t.Fatalf("snapshot = %+v", resp)
	}
	if b := resp.Budgets["bills"]; b.Budget != 200.5 || b.Name != "Bills" {
		t.Errorf("bills = %+v", b)
	}
	if _, ok := resp.Budgets["salary"]; ok {
		t.Error("income category in snapshot")
	}
}

func TestTransactionLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})

	w := srv.post(t, "/transaction/add", url.Values{"category": {"food"}, "amount": {"12,50"}, "note": {"lunch"}, "date": {"2025-03-10"}})
	if w.Code != http.StatusOK {
		t.Fatalf("add status %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"transaction:changed"`) {
		t.Errorf("HX-Trigger = %q", w.Header().Get("HX-Trigger"))
	}
	body := decode(t, w)
	tx := body["transaction"].(map[string]any)
	if tx["amount"] != 12.5 || tx["note"] != "lunch" || body["total_expense"] != 12.5 || body["balance"] != -12.5 {
		t.Errorf("add body = %v", body)
	}
	id := int64(tx["id"].(float64))
	path := func(op string) string { return "/transaction/" + op + "/" + strconv.FormatInt(id, 10) }

	w = srv.post(t, path("edit"), url.Values{"category": {"food"}, "amount": {"20"}, "date": {"2025-03-10"}})
	if w.Code != http.StatusOK {
		t.Fatalf("edit status %d: %s", w.Code, w.Body.String())
	}
	if body = decode(t, w); body["total_expense"] != 20.0 {
		t.Errorf("edit body = %v", body)
	}

	w = srv.get(t, "/transactions?month=3&year=2025")
	var list struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Transactions) != 1 {
		t.Fatalf("list = %s (%v)", w.Body.String(), err)
	}

	w = srv.post(t, path("delete"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", w.Code, w.Body.String())
	}
	if body = decode(t, w); body["transaction_id"] != float64(id) || body["total_expense"] != 0.0 {
		t.Errorf("delete body = %v", body)
	}
	if w = srv.post(t, path("delete"), nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status %d", w.Code)
	}

	if len(srv.pub.msgs) != 3 {
		t.Errorf("published %d events, want 3", len(srv.pub.msgs))
	}
}

func TestTransactionAddRejects(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name     string
		form     url.Values
		wantCode int
	}{
		{"zero amount", url.Values{"category": {"food"}, "amount": {"0"}}, http.StatusUnprocessableEntity},
		{"bad type", url.Values{"category": {"food"}, "amount": {"1"}, "type": {"loan"}}, http.StatusUnprocessableEntity},
		{"type mismatch", url.Values{"category": {"salary"}, "amount": {"1"}, "type": {"expense"}}, http.StatusUnprocessableEntity},
		{"bad date", url.Values{"category": {"food"}, "amount": {"1"}, "date": {"10/03/2025"}}, http.StatusUnprocessableEntity},
		{"note too long", url.Values{"category": {"food"}, "amount": {"1"}, "note": {strings.Repeat("n", 300)}}, http.StatusUnprocessableEntity},
		{"non-ascii digit", url.Values{"category": {"food"}, "amount": {"1.٣"}}, http.StatusUnprocessableEntity},
		{"unknown account", url.Values{"category": {"food"}, "amount": {"1"}, "account": {"99"}}, http.StatusUnprocessableEntity},
		{"bad account", url.Values{"category": {"food"}, "amount": {"1"}, "account": {"cash"}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := srv.post(t, "/transaction/add", tt.form); w.Code != tt.wantCode {
				t.Errorf("status %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
	if len(srv.pub.msgs) != 0 {
		t.Errorf("rejected adds published %d events", len(srv.pub.msgs))
	}

	if w := srv.post(t, "/transaction/edit/abc", url.Values{}); w.Code != http.StatusBadRequest {
		t.Errorf("edit with bad id status %d", w.Code)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, Options{})

	w := srv.post(t, "/category/add", url.Values{"name": {"Pet Care"}, "icon": {"🐶"}, "type": {"expense"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status %d: %s", w.Code, w.Body.String())
	}
	cat := decode(t, w)["category"].(map[string]any)
	if cat["id"] != "pet-care" {
		t.Errorf("category = %v", cat)
	}

	w = srv.get(t, "/categories?type=expense")
	var resp struct {
		Categories []categoryJSON `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Categories) != 6 {
		t.Errorf("%d expense categories, want 6", len(resp.Categories))
	}
	if w := srv.get(t, "/categories?type=loan"); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad type status %d", w.Code)
	}
}

func TestCategoryEditAndDelete(t *testing.T) {
	srv := newTestServer(t, Options{})

	w := srv.post(t, "/category/edit/food", url.Values{"name": {"Groceries"}})
	if w.Code != http.StatusOK {
		t.Fatalf("edit status %d: %s", w.Code, w.Body.String())
	}
	cat := decode(t, w)["category"].(map[string]any)
	if cat["name"] != "Groceries" || cat["icon"] != "🍔" || cat["type"] != "expense" {
		t.Errorf("edited category = %v", cat)
	}

	tests := []struct {
		name     string
		path     string
		form     url.Values
		wantCode int
	}{
		{"type change", "/category/edit/food", url.Values{"name": {"Food"}, "type": {"income"}}, http.StatusUnprocessableEntity},
		{"empty name", "/category/edit/food", url.Values{"name": {" "}}, http.StatusUnprocessableEntity},
		{"missing", "/category/edit/nope", url.Values{"name": {"Nope"}}, http.StatusNotFound},
		{"delete missing", "/category/delete/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := srv.post(t, tt.path, tt.form); w.Code != tt.wantCode {
				t.Errorf("status %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}

	srv.post(t, "/transaction/add", url.Values{"category": {"food"}, "amount": {"5"}})
	w = srv.post(t, "/category/delete/food", nil)
	if w.Code != http.StatusConflict || decode(t, w)["error"] != "Category still has transactions" {
		t.Errorf("delete used category = %d %s", w.Code, w.Body.String())
	}

	srv.post(t, "/budget/save", url.Values{"category": {"bills"}, "amount": {"200"}})
	if w := srv.post(t, "/category/delete/bills", nil); w.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", w.Code, w.Body.String())
	}
	w = srv.get(t, "/budget/snapshot?month=3&year=2025")
	if strings.Contains(w.Body.String(), `"bills"`) {
		t.Errorf("deleted category still in snapshot: %s", w.Body.String())
	}
}

func TestAccounts(t *testing.T) {
	srv := newTestServer(t, Options{})

	type accountsResp struct {
		Accounts     []accountJSON `json:"accounts"`
		TotalBalance float64       `json:"total_balance"`
	}
	list := func() accountsResp {
		t.Helper()
		var resp accountsResp
		if err := json.Unmarshal(srv.get(t, "/accounts").Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}
	if got := list(); len(got.Accounts) != 4 || got.Accounts[2].Name != "Cash" {
		t.Fatalf("default accounts = %+v", got.Accounts)
	}

	w := srv.post(t, "/account/add", url.Values{"name": {"Wallet"}, "initial_amount": {"100"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status %d: %s", w.Code, w.Body.String())
	}
	acc := decode(t, w)["account"].(map[string]any)
	if acc["balance"] != 100.0 || acc["icon"] != "🐖" {
		t.Errorf("account = %v", acc)
	}
	id := strconv.FormatInt(int64(acc["id"].(float64)), 10)

	w = srv.post(t, "/transaction/add", url.Values{"category": {"food"}, "amount": {"30"}, "account": {id}, "date": {"2025-03-10"}})
	if w.Code != http.StatusOK {
		t.Fatalf("add expense status %d: %s", w.Code, w.Body.String())
	}
	if tx := decode(t, w)["transaction"].(map[string]any); tx["account_id"] != acc["id"] {
		t.Errorf("transaction = %v", tx)
	}
	srv.post(t, "/transaction/add", url.Values{"category": {"salary"}, "type": {"income"}, "amount": {"50"}, "account": {id}, "date": {"2025-03-11"}})

	if got := list(); got.TotalBalance != 120 {
		t.Errorf("total balance = %v, want 120", got.TotalBalance)
	}

	w = srv.post(t, "/account/edit/"+id, url.Values{"name": {"Wallet"}, "initial_amount": {"-10"}})
	if w.Code != http.StatusOK {
		t.Fatalf("edit status %d: %s", w.Code, w.Body.String())
	}
	if acc := decode(t, w)["account"].(map[string]any); acc["balance"] != 10.0 || acc["initial_amount"] != -10.0 {
		t.Errorf("edited account = %v", acc)
	}
	if w := srv.post(t, "/account/edit/"+id, url.Values{"name": {""}}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty name status %d", w.Code)
	}

	spent := url.Values{"category": {"food"}, "month": {"3"}, "year": {"2025"}}
	if body := decode(t, srv.post(t, "/budget/spent", spent)); body["spent"] != 30.0 {
		t.Fatalf("spent before account delete = %v", body["spent"])
	}

	published := len(srv.pub.msgs)
	w = srv.post(t, "/account/delete/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["removed_transactions"] != 2.0 {
		t.Errorf("delete body = %v", body)
	}
	if got := len(srv.pub.msgs) - published; got != 2 {
		t.Errorf("account delete published %d events, want 2", got)
	}
	if body := decode(t, srv.post(t, "/budget/spent", spent)); body["spent"] != 0.0 {
		t.Errorf("spent after account delete = %v", body["spent"])
	}
	if w := srv.post(t, "/account/delete/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status %d", w.Code)
	}
}

func TestRoutingAndMiddleware(t *testing.T) {
	srv := newTestServer(t, Options{RequestsPerMinute: 2})

	w := srv.get(t, "/budget/save")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /budget/save = %d", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" || w.Header().Get("X-Request-ID") == "" {
		t.Errorf("middleware headers missing: %v", w.Header())
	}

	if w := srv.get(t, "/.git/config"); w.Code != http.StatusBadRequest {
		t.Errorf("probe status %d", w.Code)
	}

	form := url.Values{"category": {"food"}}
	srv.post(t, "/budget/spent", form)
	srv.post(t, "/budget/spent", form)
	if w := srv.post(t, "/budget/spent", form); w.Code != http.StatusTooManyRequests {
		t.Errorf("third POST status %d, want 429", w.Code)
	}
	if w := srv.get(t, "/budget/snapshot"); w.Code != http.StatusOK {
		t.Errorf("GET throttled: %d", w.Code)
	}
}

func TestNewServerRejectsBadProxy(t *testing.T) {
	if _, err := NewServer(":0", Services{}, Options{TrustedProxies: []string{"nope"}}); err == nil {
		t.Error("invalid trusted proxy accepted")
	}
}
