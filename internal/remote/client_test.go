package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantRows int
	}{
		{"bare array", `[{"id":1},{"id":2}]`, true, 2},
		{"data envelope", `{"data":[{"id":1}]}`, true, 1},
		{"empty array", `[]`, true, 0},
		{"object without data", `{"rows":[]}`, false, 0},
		{"data not array", `{"data":{"id":1}}`, false, 0},
		{"string", `"nope"`, false, 0},
		{"empty", ``, false, 0},
		{"malformed", `[{"id":`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.body))
			if got.OK != tt.wantOK || len(got.Rows) != tt.wantRows {
				t.Errorf("Normalize(%s) = ok %v rows %d, want ok %v rows %d", tt.body, got.OK, len(got.Rows), tt.wantOK, tt.wantRows)
			}
			if !got.OK && got.Reason == "" {
				t.Error("expected a reason for a rejected payload")
			}
		})
	}
}

func TestListTransactions(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transactionsPath {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"data":[{"id":1,"date":"2025-01-02","description":"Rent","amount":-900,"category":"Housing"},"garbage"]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	txs, err := c.ListTransactions(context.Background(), core.TransactionQuery{Filter: core.FilterLast30Days, All: true})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if gotQuery != "all=true&filter=last30days" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(txs) != 1 || !txs[0].Amount.Equal(decimal.NewFromInt(-900)) {
		t.Fatalf("txs = %+v", txs)
	}
}

func TestListTransactions_NonListPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"maintenance"}`)
	}))
	defer srv.Close()

	txs, err := NewClient(srv.URL, 0).ListTransactions(context.Background(), core.TransactionQuery{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if txs == nil || len(txs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", txs)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":"upstream down"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).ListBudgets(context.Background(), core.FilterAllTime)
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error should carry the API message: %v", err)
	}
}

func TestBudgets(t *testing.T) {
	var saved BudgetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			io.WriteString(w, `{"Groceries":250.5}`)
		case http.MethodPost:
			json.NewDecoder(r.Body).Decode(&saved)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	ctx := context.Background()
	limits, err := c.ListBudgets(ctx, core.FilterLast30Days)
	if err != nil {
		t.Fatalf("ListBudgets: %v", err)
	}
	if !limits["Groceries"].Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("limits = %v", limits)
	}

	if err := c.SaveBudget(ctx, core.Budget{Category: "Dining", Amount: decimal.NewFromInt(100), Filter: "2025"}); err != nil {
		t.Fatalf("SaveBudget: %v", err)
	}
	if saved.CategoryName != "Dining" || saved.Filter != "2025" || !saved.Budget.Equal(decimal.NewFromInt(100)) {
		t.Errorf("saved = %+v", saved)
	}

	if err := c.SaveBudget(ctx, core.Budget{Category: "Dining", Amount: decimal.Zero}); !errors.Is(err, core.ErrInvalidBudget) {
		t.Errorf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestParseStatement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "jan.csv" {
			http.Error(w, "bad name", http.StatusBadRequest)
			return
		}
		w.Header().Set("X-File-Id", "abc")
		w.Header().Set("X-Parse-Warnings", "uncategorized=1")
		io.WriteString(w, "date,description,amount,balance,category\n")
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, 0).ParseStatement(context.Background(), "jan.csv", []byte("Date,Amount\n"))
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if got.FileID != "abc" || got.ParseWarnings != "uncategorized=1" || !strings.HasPrefix(got.CSV, "date,") {
		t.Errorf("got %+v", got)
	}
}

func TestInsertTransactionsUsesImport(t *testing.T) {
	var req ImportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != importPath {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		io.WriteString(w, `{"inserted":1,"skippedInvalidDates":0}`)
	}))
	defer srv.Close()

	n, err := NewClient(srv.URL, 0).InsertTransactions(context.Background(), []core.Transaction{
		{Date: "2025-02-01", Description: "Salary", Amount: decimal.NewFromInt(3000), Category: "Income"},
	}, "stmt-9")
	if err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}
	if n != 1 || req.StatementMeta.FileID != "stmt-9" || !strings.Contains(req.CSV, "Salary") {
		t.Errorf("n=%d req=%+v", n, req)
	}
}

func TestSavePreferences(t *testing.T) {
	var got PreferencesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, 0).SavePreferences(context.Background(), []core.CategoryPreference{{Description: "Uber", Category: "Transport"}})
	if err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Category != "Transport" {
		t.Errorf("got %+v", got)
	}
}
