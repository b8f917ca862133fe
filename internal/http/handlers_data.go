package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"finboard/internal/archive"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/remote"
	"finboard/internal/statements"
)

// handleTransactions lists transactions for ?filter=, capped unless ?all=true.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	p, err := ParseQueryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	txs, err := s.transactions.List(r.Context(), p.Query())
	if err != nil {
		writeError(w, r, err, "failed to load transactions")
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// handlePreferences queues learned description to category picks. They are
// flushed in batches after a quiet period.
func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req remote.PreferencesRequest
	if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
		writeError(w, r, err, "")
		return
	}
	for i := range req.Entries {
		req.Entries[i].Description = sanitizeInput(req.Entries[i].Description)
		req.Entries[i].Category = sanitizeInput(req.Entries[i].Category)
	}
	n := s.preferences.Add(req.Entries...)
	s.metrics.preferencesAdded.Add(int64(n))
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Queued category preferences",
		"received", len(req.Entries), "accepted", n)
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": n})
}

// handleBudgets serves ring limits (GET) and stores one limit (POST).
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f, err := core.ParseDateFilter(r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, s.budgets.Limits(r.Context(), f))
	case http.MethodPost:
		var req remote.BudgetRequest
		if err := decodeJSON(w, r, &req, maxJSONBody); err != nil {
			writeError(w, r, err, "")
			return
		}
		f, err := core.ParseDateFilter(req.Filter)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		b := core.Budget{
			Category: core.NormalizeCategory(sanitizeInput(req.CategoryName)),
			Amount:   req.Budget,
			Filter:   f,
		}
		if err := s.budgets.Save(r.Context(), b); err != nil {
			writeError(w, r, err, "failed to save budget")
			return
		}
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Budget saved",
			"category", b.Category, applog.FieldFilter, f.String(), "amount", b.Amount.String())
		writeJSON(w, http.StatusOK, remote.BudgetRequest{
			CategoryName: b.Category,
			Budget:       b.Amount,
			Filter:       string(f),
		})
	default:
		MethodNotAllowedError("GET, POST").Write(w)
	}
}

// handleParseStatement turns an uploaded bank export into canonical CSV for
// review. Quality problems travel in headers; only a missing header row or an
// empty file is an error.
func (s *Server) handleParseStatement(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentStatements)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(min(s.opts.MaxUploadBytes, 8<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", tooLarge.Limit)).Write(w)
			return
		}
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err), "")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file field", errBadRequest), "")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: read upload: %v", errBadRequest, err), "")
		return
	}

	prefs, err := s.store.ListPreferences(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Preferences unavailable, parsing without them", applog.FieldError, err)
	}
	res, err := statements.Parse(bytes.NewReader(data), statements.Options{
		DateOrder:   parseDateOrder(r.FormValue("dateOrder")),
		Preferences: statements.PreferenceIndex(prefs),
	})
	if err != nil {
		writeError(w, r, err, "failed to parse statement")
		return
	}

	fileID := archive.NewFileID()
	name := sanitizeInput(header.Filename)
	if ref, err := s.archive.Put(ctx, fileID, name, data); err != nil {
		logger.WarnContext(ctx, "Failed to archive statement", applog.FieldStatementID, fileID, applog.FieldError, err)
	} else if ref != "" {
		logger.DebugContext(ctx, "Statement archived", applog.FieldStatementID, fileID, "ref", ref)
	}

	var out bytes.Buffer
	if err := statements.WriteCanonical(&out, res.Transactions); err != nil {
		writeError(w, r, err, "failed to encode statement")
		return
	}
	s.metrics.statementsParsed.Add(1)
	logger.InfoContext(ctx, "Statement parsed",
		applog.FieldStatementID, fileID,
		"file_name", name,
		applog.FieldRows, len(res.Transactions),
		"warnings", len(res.Warnings),
		"uncategorized", res.Uncategorized)

	resp := NewJSONResponse().
		Header("X-File-Id", fileID).
		Header("X-Parse-Warnings", res.WarningSummary()).
		Text("text/csv; charset=utf-8", out.Bytes())
	if res.Uncategorized > 0 {
		resp.Header("X-Categorization-Warning", strconv.Itoa(res.Uncategorized)+" transactions could not be categorized")
	}
	resp.Write(w)
}

// handleImportStatement inserts reviewed canonical CSV.
func (s *Server) handleImportStatement(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req remote.ImportRequest
	if err := decodeJSON(w, r, &req, 2*s.opts.MaxUploadBytes); err != nil {
		writeError(w, r, err, "")
		return
	}
	meta := core.StatementMeta{
		FileID:   sanitizeInput(req.StatementMeta.FileID),
		FileName: sanitizeInput(req.StatementMeta.FileName),
		Source:   sanitizeInput(req.StatementMeta.Source),
	}

	res, err := s.importer.Import(r.Context(), req.CSV, meta)
	if err != nil {
		writeError(w, r, err, "failed to import statement")
		return
	}
	s.transactions.Invalidate()
	s.metrics.statementsImport.Add(1)
	s.metrics.rowsImported.Add(int64(res.Inserted))
	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogStatementImported(r.Context(), meta.FileID, res.Inserted, res.SkippedInvalidDates)
	writeJSON(w, http.StatusOK, res)
}
