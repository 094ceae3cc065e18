// Package api exposes the engine over a small JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sheikh-saqib/transaction-notification-engine/internal/analytics"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/engine"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Transactions interface {
	Execute(ctx context.Context, req engine.Request) (models.Transaction, error)
	Dispute(ctx context.Context, transactionID, reason string) (models.Transaction, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetTransaction(ctx context.Context, transactionID string) (models.Transaction, error)
	History(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	Recategorize(ctx context.Context, transactionID, category string) (models.Transaction, error)
}

// IdempotencyHeader carries the client's key for safely retrying a
// transaction request.
const IdempotencyHeader = "Idempotency-Key"

type Notifications interface {
	List(ctx context.Context, accountID string, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
}

type Preferences interface {
	Resolve(ctx context.Context, accountID string) (models.NotificationPreference, error)
	Update(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error)
}

type Reports interface {
	Summarize(ctx context.Context, accountID string, from, to *time.Time) (analytics.Summary, error)
	RecurringCandidates(ctx context.Context, accountID string, since time.Time, minOccurrences int) ([]analytics.RecurringGroup, error)
}

type Handler struct {
	txns    Transactions
	notes   Notifications
	prefs   Preferences
	reports Reports
	logger  *zap.Logger
}

func NewHandler(txns Transactions, notes Notifications, prefs Preferences, reports Reports, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{txns: txns, notes: notes, prefs: prefs, reports: reports, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /transactions", h.createTransaction)
	mux.HandleFunc("GET /transactions/{id}", h.getTransaction)
	mux.HandleFunc("POST /transactions/{id}/dispute", h.dispute)
	mux.HandleFunc("PUT /transactions/{id}/category", h.recategorize)
	mux.HandleFunc("GET /accounts/{id}/balance", h.balance)
	mux.HandleFunc("GET /accounts/{id}/transactions", h.history)
	mux.HandleFunc("GET /accounts/{id}/notifications", h.listNotifications)
	mux.HandleFunc("GET /accounts/{id}/preferences", h.getPreferences)
	mux.HandleFunc("PUT /accounts/{id}/preferences", h.updatePreferences)
	mux.HandleFunc("GET /accounts/{id}/summary", h.summary)
	mux.HandleFunc("GET /accounts/{id}/recurring", h.recurring)
	mux.HandleFunc("POST /notifications/{id}/read", h.markRead)
	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transactionRequest struct {
	SenderID    string                 `json:"sender_id"`
	RecipientID string                 `json:"recipient_id"`
	Amount      decimal.Decimal        `json:"amount"`
	Type        models.TransactionType `json:"type"`
	Description string                 `json:"description"`
	DeviceInfo  string                 `json:"device_info"`
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.txns.Execute(r.Context(), engine.Request{
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Amount:         req.Amount,
		Type:           req.Type,
		Description:    req.Description,
		IPAddress:      clientIP(r),
		DeviceInfo:     fallback(req.DeviceInfo, r.UserAgent()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	if tx.Replayed {
		writeJSON(w, http.StatusOK, tx)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.txns.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) recategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.txns.Recategorize(r.Context(), r.PathValue("id"), req.Category)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	filter.AccountID = r.PathValue("id")

	txs, err := h.txns.History(r.Context(), filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// parseFilter reads the history query string. A non-empty message names
// the first malformed parameter.
func parseFilter(r *http.Request) (models.TransactionFilter, string) {
	q := r.URL.Query()
	f := models.TransactionFilter{
		Search:   q.Get("search"),
		Type:     models.TransactionType(strings.ToUpper(q.Get("type"))),
		Status:   models.TransactionStatus(strings.ToUpper(q.Get("status"))),
		Category: q.Get("category"),
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, "from must be RFC3339"
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, "to must be RFC3339"
	}
	if f.MinAmount, err = parseAmount(q.Get("min_amount")); err != nil {
		return f, "min_amount must be a decimal"
	}
	if f.MaxAmount, err = parseAmount(q.Get("max_amount")); err != nil {
		return f, "max_amount must be a decimal"
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			return f, "limit must be an integer"
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil {
			return f, "offset must be an integer"
		}
	}
	return f, ""
}

func (h *Handler) dispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.txns.Dispute(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	balance, err := h.txns.GetBalance(r.Context(), accountID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		AccountID string          `json:"account_id"`
		Balance   decimal.Decimal `json:"balance"`
	}{accountID, balance})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	notes, err := h.notes.List(r.Context(), r.PathValue("id"), unreadOnly)
	if err != nil {
		h.fail(w, err)
		return
	}
	if notes == nil {
		notes = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	pref, err := h.prefs.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var pref models.NotificationPreference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pref.AccountID = r.PathValue("id")

	updated, err := h.prefs.Update(r.Context(), pref)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be RFC3339")
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be RFC3339")
		return
	}

	sum, err := h.reports.Summarize(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) recurring(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().AddDate(0, -3, 0)
	if s, err := parseTime(r.URL.Query().Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC3339")
		return
	} else if s != nil {
		since = *s
	}
	minOccurrences := 2
	if raw := r.URL.Query().Get("min"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "min must be a positive integer")
			return
		}
		minOccurrences = n
	}

	groups, err := h.reports.RecurringCandidates(r.Context(), r.PathValue("id"), since, minOccurrences)
	if err != nil {
		h.fail(w, err)
		return
	}
	if groups == nil {
		groups = []analytics.RecurringGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation), errors.Is(err, notify.ErrInvalidPreference):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrIllegalStateTransition):
		return http.StatusConflict
	case engine.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseAmount(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
