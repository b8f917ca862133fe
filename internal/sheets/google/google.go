package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finboard/internal/core"
	ports "finboard/internal/sheets"
)

// Default sheet (tab) names.
const (
	DefaultTransactionsSheet = "Transactions"
	DefaultBudgetsSheet      = "Budgets"
	DefaultPreferencesSheet  = "Preferences"
)

// Config names the spreadsheet and its tabs.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	BudgetsSheet      string
	PreferencesSheet  string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.TransactionsSheet) == "" {
		c.TransactionsSheet = DefaultTransactionsSheet
	}
	if strings.TrimSpace(c.BudgetsSheet) == "" {
		c.BudgetsSheet = DefaultBudgetsSheet
	}
	if strings.TrimSpace(c.PreferencesSheet) == "" {
		c.PreferencesSheet = DefaultPreferencesSheet
	}
	return c
}

// Client stores transactions, budgets and preferences in one Google
// spreadsheet, one tab each.
type Client struct {
	svc *gsheet.Service
	cfg Config
	now func() time.Time
}

// Ensure interface conformance
var (
	_ ports.TransactionReader = (*Client)(nil)
	_ ports.TransactionWriter = (*Client)(nil)
	_ ports.BudgetStore       = (*Client)(nil)
	_ ports.PreferenceStore   = (*Client)(nil)
)

// New creates a Sheets client. Without opts, credentials come from the
// environment, see credentialOptions.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		var err error
		if opts, err = credentialOptions(ctx); err != nil {
			return nil, err
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created successfully", "spreadsheet_id", cfg.SpreadsheetID)
	return &Client{svc: svc, cfg: cfg.withDefaults(), now: time.Now}, nil
}

// credentialOptions prefers an OAuth user token (GOOGLE_OAUTH_CLIENT_* plus
// GOOGLE_OAUTH_TOKEN_*) and falls back to a service account.
func credentialOptions(ctx context.Context) ([]goption.ClientOption, error) {
	clientJSON, err := envOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if clientJSON != nil {
		ts, err := oauthTokenSource(ctx, clientJSON)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	}

	creds, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, nil
}

func oauthTokenSource(ctx context.Context, clientJSON []byte) (oauth2.TokenSource, error) {
	conf, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	tokenJSON, err := envOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	// The config refreshes the access token with the stored refresh token.
	return conf.TokenSource(ctx, &tok), nil
}

// envOrFile returns the inline value of jsonKey or the contents of the file
// named by fileKey, or nil when neither is set.
func envOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return data, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

func (c *Client) read(ctx context.Context, rng string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.cfg.SpreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) append(ctx context.Context, rng string, rows [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, data []*gsheet.ValueRange) error {
	if len(data) == 0 {
		return nil
	}
	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.cfg.SpreadsheetID, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update values: %w", err)
	}
	return nil
}

// ListTransactions reads the transactions tab. Row numbers serve as ids.
func (c *Client) ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	values, err := c.read(ctx, fmt.Sprintf("%s!A:F", c.cfg.TransactionsSheet))
	if err != nil {
		return nil, err
	}
	txs := parseTransactions(ctx, values)
	return core.SelectTransactions(txs, q, c.now()), nil
}

// InsertTransactions appends txs to the transactions tab.
func (c *Client) InsertTransactions(ctx context.Context, txs []core.Transaction, statementID string) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, transactionRow(t, statementID))
	}
	if err := c.append(ctx, fmt.Sprintf("%s!A:F", c.cfg.TransactionsSheet), rows); err != nil {
		return 0, fmt.Errorf("insert transactions: %w", err)
	}
	slog.InfoContext(ctx, "Transactions appended to sheet", "sheet", c.cfg.TransactionsSheet, "count", len(rows))
	return len(rows), nil
}

// ListBudgets reads the budgets tab rows for filter.
func (c *Client) ListBudgets(ctx context.Context, filter core.DateFilter) (map[string]decimal.Decimal, error) {
	values, err := c.read(ctx, fmt.Sprintf("%s!A:C", c.cfg.BudgetsSheet))
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal)
	for _, b := range parseBudgets(values) {
		if b.Filter == filter {
			out[b.Category] = b.Amount
		}
	}
	return out, nil
}

// SaveBudget updates the matching budget row in place or appends a new one.
func (c *Client) SaveBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.Category = core.NormalizeCategory(b.Category)
	values, err := c.read(ctx, fmt.Sprintf("%s!A:C", c.cfg.BudgetsSheet))
	if err != nil {
		return err
	}
	row := budgetRow(b)
	if n := findBudgetRow(values, b.Filter, b.Category); n > 0 {
		rng := fmt.Sprintf("%s!A%d:C%d", c.cfg.BudgetsSheet, n, n)
		return c.update(ctx, []*gsheet.ValueRange{{Range: rng, Values: [][]any{row}}})
	}
	return c.append(ctx, fmt.Sprintf("%s!A:C", c.cfg.BudgetsSheet), [][]any{row})
}

// ListPreferences reads the preferences tab.
func (c *Client) ListPreferences(ctx context.Context) ([]core.CategoryPreference, error) {
	values, err := c.read(ctx, fmt.Sprintf("%s!A:B", c.cfg.PreferencesSheet))
	if err != nil {
		return nil, err
	}
	return parsePreferences(values), nil
}

// SavePreferences rewrites rows for known descriptions and appends the rest.
func (c *Client) SavePreferences(ctx context.Context, prefs []core.CategoryPreference) error {
	if len(prefs) == 0 {
		return nil
	}
	values, err := c.read(ctx, fmt.Sprintf("%s!A:B", c.cfg.PreferencesSheet))
	if err != nil {
		return err
	}
	existing := preferenceRows(values)

	var (
		updates []*gsheet.ValueRange
		appends [][]any
	)
	for _, p := range dedupePreferences(prefs) {
		row := []any{p.Description, core.NormalizeCategory(p.Category)}
		if n, ok := existing[core.PreferenceKey(p.Description)]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:B%d", c.cfg.PreferencesSheet, n, n),
				Values: [][]any{row},
			})
			continue
		}
		appends = append(appends, row)
	}
	if err := c.update(ctx, updates); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	if len(appends) > 0 {
		if err := c.append(ctx, fmt.Sprintf("%s!A:B", c.cfg.PreferencesSheet), appends); err != nil {
			return fmt.Errorf("save preferences: %w", err)
		}
	}
	return nil
}
