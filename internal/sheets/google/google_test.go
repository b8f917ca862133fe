package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"finboard/internal/core"
)

// fakeSheets serves the subset of the Sheets v4 values API the client uses.
type fakeSheets struct {
	mu   sync.Mutex
	tabs map[string][][]any
}

func sheetAndRow(rng string) (string, int) {
	sheet, cells, _ := strings.Cut(rng, "!")
	start, _, _ := strings.Cut(cells, ":")
	digits := strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, _ := strconv.Atoi(digits)
	return sheet, row
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/values:batchUpdate"):
		var req struct {
			Data []struct {
				Range  string  `json:"range"`
				Values [][]any `json:"values"`
			} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, d := range req.Data {
			sheet, row := sheetAndRow(d.Range)
			for len(f.tabs[sheet]) < row {
				f.tabs[sheet] = append(f.tabs[sheet], []any{})
			}
			f.tabs[sheet][row-1] = d.Values[0]
		}
		json.NewEncoder(w).Encode(map[string]any{})
	case strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		if strings.HasSuffix(rng, ":append") {
			var vr struct {
				Values [][]any `json:"values"`
			}
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			sheet, _ := sheetAndRow(strings.TrimSuffix(rng, ":append"))
			f.tabs[sheet] = append(f.tabs[sheet], vr.Values...)
			json.NewEncoder(w).Encode(map[string]any{})
			return
		}
		sheet, _ := sheetAndRow(rng)
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.tabs[sheet]})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, tabs map[string][][]any) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{tabs: tabs}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.now = func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) }
	return c, fake
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestServiceAccountCredentials_Missing(t *testing.T) {
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
	}
	if _, err := serviceAccountCredentials(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	creds, err := serviceAccountCredentials(context.Background())
	if err != nil || !strings.Contains(string(creds), "service_account") {
		t.Fatalf("inline credentials: %q, %v", creds, err)
	}
}

func TestServiceAccountCredentials_File(t *testing.T) {
	path := t.TempDir() + "/sa.json"
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	if _, err := serviceAccountCredentials(context.Background()); err != nil {
		t.Fatalf("file credentials: %v", err)
	}
}

func TestListTransactions(t *testing.T) {
	c, _ := newTestClient(t, map[string][][]any{
		"Transactions": {
			{"Date", "Description", "Amount", "Balance", "Category", "Statement"},
			{"2025-06-02", "Groceries", "-45.10", "954.90", "Food", ""},
			{"2025-01-15", "Salary", 3000.0, "", "Income", "s1"},
			{"2025-06-01", "Broken", "n/a", "", "Food", ""},
			{"2024-12-31", "Old", "-1", "", "Misc", ""},
		},
	})

	txs, err := c.ListTransactions(context.Background(), core.TransactionQuery{Filter: "2025"})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2: %+v", len(txs), txs)
	}
	if txs[0].Description != "Salary" || !txs[0].Amount.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("first = %+v", txs[0])
	}
	if !txs[1].Balance.Valid || !txs[1].Balance.Decimal.Equal(decimal.RequireFromString("954.90")) {
		t.Errorf("balance = %+v", txs[1].Balance)
	}
	if txs[1].ID != 2 {
		t.Errorf("id should be the sheet row, got %d", txs[1].ID)
	}
}

func TestInsertTransactions(t *testing.T) {
	c, fake := newTestClient(t, map[string][][]any{})
	n, err := c.InsertTransactions(context.Background(), []core.Transaction{
		{Date: "2025-06-03", Description: "Coffee", Amount: decimal.RequireFromString("-3.5"), Category: "Dining"},
	}, "stmt-1")
	if err != nil || n != 1 {
		t.Fatalf("InsertTransactions = %d, %v", n, err)
	}
	rows := fake.tabs["Transactions"]
	if len(rows) != 1 || rows[0][2] != "-3.5" || rows[0][5] != "stmt-1" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestBudgets(t *testing.T) {
	c, fake := newTestClient(t, map[string][][]any{
		"Budgets": {
			{"Filter", "Category", "Amount"},
			{"all", "Food", "400"},
			{"last30days", "Food", "150"},
		},
	})
	ctx := context.Background()

	all, err := c.ListBudgets(ctx, core.FilterAllTime)
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if !all["Food"].Equal(decimal.NewFromInt(400)) || len(all) != 1 {
		t.Errorf("all-time budgets = %v", all)
	}

	if err := c.SaveBudget(ctx, core.Budget{Category: "food", Amount: decimal.NewFromInt(175), Filter: core.FilterLast30Days}); err != nil {
		t.Fatalf("SaveBudget update: %v", err)
	}
	if err := c.SaveBudget(ctx, core.Budget{Category: "Travel", Amount: decimal.NewFromInt(900), Filter: "2025"}); err != nil {
		t.Fatalf("SaveBudget append: %v", err)
	}
	if got := len(fake.tabs["Budgets"]); got != 4 {
		t.Fatalf("expected one appended row, have %d rows", got)
	}

	recent, _ := c.ListBudgets(ctx, core.FilterLast30Days)
	if !recent["food"].Equal(decimal.NewFromInt(175)) {
		t.Errorf("updated budget = %v", recent)
	}
	year, _ := c.ListBudgets(ctx, "2025")
	if !year["Travel"].Equal(decimal.NewFromInt(900)) {
		t.Errorf("appended budget = %v", year)
	}
}

func TestPreferences(t *testing.T) {
	c, fake := newTestClient(t, map[string][][]any{
		"Preferences": {
			{"Description", "Category"},
			{"Netflix", "Subscriptions"},
		},
	})
	ctx := context.Background()

	err := c.SavePreferences(ctx, []core.CategoryPreference{
		{Description: "NETFLIX", Category: "Entertainment"},
		{Description: "Uber", Category: "Transport"},
		{Description: "uber", Category: "Taxi"},
		{Description: "", Category: "Ignored"},
	})
	if err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if got := len(fake.tabs["Preferences"]); got != 3 {
		t.Fatalf("rows = %d, want 3: %v", got, fake.tabs["Preferences"])
	}

	prefs, err := c.ListPreferences(ctx)
	if err != nil {
		t.Fatalf("ListPreferences: %v", err)
	}
	got := map[string]string{}
	for _, p := range prefs {
		got[core.PreferenceKey(p.Description)] = p.Category
	}
	if got["netflix"] != "Entertainment" || got["uber"] != "Taxi" {
		t.Errorf("preferences = %v", got)
	}
}

func TestCellString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{12.5, "12.5"},
		{-1000.0, "-1000"},
		{"  text ", "text"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := cellString(tt.in); got != tt.want {
			t.Errorf("cellString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE",
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(k, "")
	}
}

const testOAuthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestCredentialOptions_OAuth(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testOAuthClient)
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"test","token_type":"Bearer","refresh_token":"r"}`)

	opts, err := credentialOptions(context.Background())
	if err != nil {
		t.Fatalf("credentialOptions: %v", err)
	}
	if len(opts) != 1 {
		t.Errorf("opts = %d, want a single token source option", len(opts))
	}
}

func TestCredentialOptions_OAuthErrors(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		token   string
		wantErr string
	}{
		{"bad client", "invalid-json", `{"access_token":"test"}`, "parse oauth client"},
		{"missing token", testOAuthClient, "", "missing oauth token"},
		{"bad token", testOAuthClient, "{", "parse oauth token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCredentialEnv(t)
			t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", tt.client)
			t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", tt.token)

			_, err := credentialOptions(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestCredentialOptions_ServiceAccountFallback(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)

	opts, err := credentialOptions(context.Background())
	if err != nil {
		t.Fatalf("credentialOptions: %v", err)
	}
	if len(opts) != 2 {
		t.Errorf("opts = %d, want credentials and scopes", len(opts))
	}
}
