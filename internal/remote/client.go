// Package remote is an HTTP client for a finboard API. It serves as the
// "remote" data backend and as the data source of the report CLI.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/statements"
)

const (
	defaultTimeout = 30 * time.Second

	transactionsPath = "/api/transactions"
	budgetsPath      = "/api/budgets"
	parsePath        = "/api/statements/parse"
	importPath       = "/api/statements/import"
	preferencesPath  = "/api/transactions/preferences"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// ErrAPI is wrapped by every non-2xx response.
var ErrAPI = errors.New("api error")

// Client talks to a finboard API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a client for baseURL. A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Result is a list payload after boundary normalization. The API may answer
// with a bare array or with {"data": [...]}; anything else is not OK and
// Reason says why.
type Result struct {
	OK     bool
	Rows   []json.RawMessage
	Reason string
}

// Normalize classifies a list payload.
func Normalize(body []byte) Result {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Result{Reason: "empty payload"}
	}
	var rows []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &rows); err != nil {
			return Result{Reason: fmt.Sprintf("malformed array: %v", err)}
		}
		return Result{OK: true, Rows: rows}
	case '{':
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Result{Reason: fmt.Sprintf("malformed object: %v", err)}
		}
		if len(envelope.Data) == 0 {
			return Result{Reason: "object without data field"}
		}
		if err := json.Unmarshal(envelope.Data, &rows); err != nil {
			return Result{Reason: "data field is not an array"}
		}
		return Result{OK: true, Rows: rows}
	}
	return Result{Reason: "payload is neither an array nor an object"}
}

// ErrorResponse is the JSON error body the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) ([]byte, http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return nil, nil, fmt.Errorf("%w (status %d): %s", ErrAPI, resp.StatusCode, errResp.Error)
		}
		return nil, nil, fmt.Errorf("%w (status %d): %s", ErrAPI, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, resp.Header, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data, _, err := c.do(ctx, http.MethodPost, path, nil, "application/json", bytes.NewReader(body))
	return data, err
}

func filterQuery(f core.DateFilter) url.Values {
	q := url.Values{}
	if f != core.FilterAllTime {
		q.Set("filter", string(f))
	}
	return q
}

// ListTransactions fetches transactions. A payload that is not a list is
// logged and yields no rows; rows that do not decode are logged and skipped.
func (c *Client) ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	query := filterQuery(q.Filter)
	if q.All {
		query.Set("all", "true")
	}
	data, _, err := c.do(ctx, http.MethodGet, transactionsPath, query, "", nil)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	res := Normalize(data)
	if !res.OK {
		slog.WarnContext(ctx, "Ignoring transactions payload", "component", "remote", "reason", res.Reason)
		return []core.Transaction{}, nil
	}
	out := make([]core.Transaction, 0, len(res.Rows))
	for i, raw := range res.Rows {
		var t core.Transaction
		if err := json.Unmarshal(raw, &t); err != nil {
			slog.WarnContext(ctx, "Skipping malformed transaction", "component", "remote", "index", i, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ListBudgets fetches the limits stored for filter.
func (c *Client) ListBudgets(ctx context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error) {
	data, _, err := c.do(ctx, http.MethodGet, budgetsPath, filterQuery(filter), "", nil)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make(map[string]decimal.Decimal)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode budgets: %w", err)
	}
	return out, nil
}

// BudgetRequest is the body of POST /api/budgets.
type BudgetRequest struct {
	CategoryName string          `json:"categoryName"`
	Budget       decimal.Decimal `json:"budget"`
	Filter       string          `json:"filter"`
}

// SaveBudget stores one limit.
func (c *Client) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := c.postJSON(ctx, budgetsPath, BudgetRequest{
		CategoryName: b.Category,
		Budget:       b.Amount,
		Filter:       string(b.Filter),
	})
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	return nil
}

// ParsedStatement is the answer of the parse endpoint.
type ParsedStatement struct {
	CSV                   string
	FileID                string
	CategorizationWarning string
	ParseWarnings         string
}

// ParseStatement uploads a bank export and returns the canonical CSV.
func (c *Client) ParseStatement(ctx context.Context, fileName string, data []byte) (*ParsedStatement, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	body, header, err := c.do(ctx, http.MethodPost, parsePath, nil, mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	return &ParsedStatement{
		CSV:                   string(body),
		FileID:                header.Get("X-File-Id"),
		CategorizationWarning: header.Get("X-Categorization-Warning"),
		ParseWarnings:         header.Get("X-Parse-Warnings"),
	}, nil
}

// ImportRequest is the body of POST /api/statements/import.
type ImportRequest struct {
	CSV           string             `json:"csv"`
	StatementMeta core.StatementMeta `json:"statementMeta"`
}

// Import submits reviewed canonical CSV.
func (c *Client) Import(ctx context.Context, csvText string, meta core.StatementMeta) (core.ImportResult, error) {
	var res core.ImportResult
	data, err := c.postJSON(ctx, importPath, ImportRequest{CSV: csvText, StatementMeta: meta})
	if err != nil {
		return res, fmt.Errorf("import statement: %w", err)
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decode import result: %w", err)
	}
	return res, nil
}

// InsertTransactions writes txs through the import endpoint.
func (c *Client) InsertTransactions(ctx context.Context, txs []core.Transaction, statementID string) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	if err := statements.WriteCanonical(&buf, txs); err != nil {
		return 0, fmt.Errorf("encode transactions: %w", err)
	}
	res, err := c.Import(ctx, buf.String(), core.StatementMeta{FileID: statementID})
	if err != nil {
		return 0, err
	}
	return res.Inserted, nil
}

// PreferencesRequest is the body of POST /api/transactions/preferences.
type PreferencesRequest struct {
	Entries []core.CategoryPreference `json:"entries"`
}

// SavePreferences sends learned preferences. The server batches them.
func (c *Client) SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error {
	if len(prefs) == 0 {
		return nil
	}
	if _, err := c.postJSON(ctx, preferencesPath, PreferencesRequest{Entries: prefs}); err != nil {
		return fmt.Errorf("send preferences: %w", err)
	}
	return nil
}

// ListPreferences returns nothing: the API applies preferences server-side
// while parsing and does not expose them.
func (c *Client) ListPreferences(context.Context) ([]core.CategoryPreference, error) {
	return nil, nil
}
