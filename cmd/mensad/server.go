package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
)

// server is the mensad HTTP API.
//
// The caller identifies the acting person through the X-Actor-Id and
// X-Actor-Role headers; authenticating that claim is the front proxy's
// job, not mensad's.
type server struct {
	engine  *mensa.Engine
	logger  *slog.Logger
	metrics bool
}

func newServer(eng *mensa.Engine, logger *slog.Logger, metrics bool) *server {
	return &server{engine: eng, logger: logger, metrics: metrics}
}

// Handler returns the chi router with all routes mounted.
func (s *server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", s.handleCreateAccount)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{accountID}", s.handleGetAccount)
		r.Post("/accounts/{accountID}/block", s.handleSetBlocked)
		r.Post("/accounts/{accountID}/consume", s.handleConsume)
		r.Post("/accounts/{accountID}/tokens", s.handleAddTokens)
		r.Post("/accounts/{accountID}/adjust", s.handleAdjust)
		r.Post("/accounts/{accountID}/period", s.handleSetPeriod)
		r.Delete("/accounts/{accountID}/period", s.handleRemovePeriod)
		r.Get("/accounts/{accountID}/entries", s.handleListEntries)
		r.Get("/accounts/{accountID}/reconcile", s.handleReconcile)

		r.Get("/tickets/{ticket}", s.handleGetTicket)

		r.Post("/holidays", s.handleAddHoliday)
		r.Get("/holidays", s.handleListHolidays)
		r.Delete("/holidays/{holidayID}", s.handleRemoveHoliday)

		r.Post("/sweep", s.handleSweep)
		r.Post("/receipts/resend", s.handleResendReceipts)
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerRef string `json:"owner_ref"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.engine.CreateAccount(r.Context(), req.OwnerRef, actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}

	a, err := s.engine.GetAccount(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if ref := q.Get("owner_ref"); ref != "" {
		a, err := s.engine.GetAccountByOwnerRef(r.Context(), ref)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, []any{a})
		return
	}

	accounts, err := s.engine.ListAccounts(r.Context(), account.ListOpts{
		Status: account.Status(q.Get("status")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *server) handleSetBlocked(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.engine.SetBlocked(r.Context(), accountID, req.Blocked, actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ──────────────────────────────────────────────────
// Consumption, tokens, periods
// ──────────────────────────────────────────────────

func (s *server) handleConsume(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Date *string `json:"date,omitempty"`
		Note string  `json:"note,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	consumeReq := mensa.ConsumeRequest{Note: req.Note, Actor: actorFrom(r)}
	if req.Date != nil {
		d, err := time.ParseInLocation(calendar.DayFormat, *req.Date, time.Local)
		if err != nil {
			s.writeError(w, r, mensa.ValidationError{Field: "date", Message: "expected YYYY-MM-DD"})
			return
		}
		consumeReq.Date = &d
	}

	res, err := s.engine.Consume(r.Context(), accountID, consumeReq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleAddTokens(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Delta int64  `json:"delta"`
		Note  string `json:"note,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.engine.AddTokens(r.Context(), accountID, mensa.AddTokensRequest{
		Delta: req.Delta, Note: req.Note, Actor: actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Delta int64  `json:"delta"`
		Note  string `json:"note"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.engine.Adjust(r.Context(), accountID, mensa.AdjustRequest{
		Delta: req.Delta, Note: req.Note, Actor: actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Paid  bool   `json:"paid"`
		Note  string `json:"note,omitempty"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	start, err := time.ParseInLocation(calendar.DayFormat, req.Start, time.Local)
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "start", Message: "expected YYYY-MM-DD"})
		return
	}
	end, err := time.ParseInLocation(calendar.DayFormat, req.End, time.Local)
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "end", Message: "expected YYYY-MM-DD"})
		return
	}

	res, err := s.engine.SetPeriod(r.Context(), accountID, mensa.SetPeriodRequest{
		Start: start, End: end, Paid: req.Paid, Note: req.Note, Actor: actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleRemovePeriod(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}

	res, err := s.engine.RemovePeriod(r.Context(), accountID, mensa.RemovePeriodRequest{
		Note: r.URL.Query().Get("note"), Actor: actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}

	entries, err := s.engine.ListEntries(r.Context(), entry.ListOpts{
		AccountID: accountID,
		Reason:    entry.Reason(r.URL.Query().Get("reason")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.accountID(w, r)
	if !ok {
		return
	}

	res, err := s.engine.Reconcile(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ──────────────────────────────────────────────────
// Tickets, holidays, operations
// ──────────────────────────────────────────────────

func (s *server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPaymentByTicket(r.Context(), chi.URLParam(r, "ticket"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleAddHoliday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day    string `json:"day"`
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	d, err := time.ParseInLocation(calendar.DayFormat, req.Day, time.Local)
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "day", Message: "expected YYYY-MM-DD"})
		return
	}

	h, err := s.engine.AddHoliday(r.Context(), d, req.Reason, actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *server) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.ParseInLocation(calendar.DayFormat, q.Get("from"), time.Local)
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "from", Message: "expected YYYY-MM-DD"})
		return
	}
	to, err := time.ParseInLocation(calendar.DayFormat, q.Get("to"), time.Local)
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "to", Message: "expected YYYY-MM-DD"})
		return
	}

	holidays, err := s.engine.ListHolidays(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, holidays)
}

func (s *server) handleRemoveHoliday(w http.ResponseWriter, r *http.Request) {
	holidayID, err := id.ParseHolidayID(chi.URLParam(r, "holidayID"))
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "holiday_id", Message: err.Error()})
		return
	}

	if err := s.engine.RemoveHoliday(r.Context(), holidayID, actorFrom(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.RunDailySweep(r.Context(), time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleResendReceipts(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ResendReceipts(r.Context(), 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// actorFrom reads the acting identity from request headers. An absent or
// unknown role degrades to student, the least privileged.
func actorFrom(r *http.Request) actor.Actor {
	role := actor.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case actor.RoleStudent, actor.RoleStaff, actor.RoleAdmin:
	default:
		role = actor.RoleStudent
	}

	return actor.Actor{ID: r.Header.Get("X-Actor-Id"), Role: role}
}

func (s *server) accountID(w http.ResponseWriter, r *http.Request) (id.AccountID, bool) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "account_id", Message: err.Error()})
		return id.Nil, false
	}

	return accountID, true
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, mensa.ValidationError{Field: "body", Message: "malformed JSON"})
		return false
	}

	return true
}

// writeError maps engine error kinds onto HTTP statuses.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case mensa.IsValidation(err):
		status = http.StatusBadRequest
	case mensa.IsNotFound(err):
		status = http.StatusNotFound
	case mensa.IsForbidden(err):
		status = http.StatusForbidden
	case mensa.IsConflict(err):
		status = http.StatusConflict
	case mensa.IsDependency(err):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}
