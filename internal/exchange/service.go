// Package exchange provides the HTTP handlers and business logic for
// custodial deposits/withdrawals, order creation, and cancellation.
//
// All amounts use shopspring/decimal — never float64 for money.
package exchange

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/asset"
	"github.com/clearbook/settlement-engine/internal/book"
	"github.com/clearbook/settlement-engine/internal/fees"
	"github.com/clearbook/settlement-engine/internal/ledger"
	"github.com/clearbook/settlement-engine/internal/metrics"
	"github.com/clearbook/settlement-engine/internal/model"
)

// Service handles settlement operations. Uses a mutex to serialize all
// state mutations (single-instance): every deposit, withdrawal, order
// and cancel executes to completion one at a time, which is what makes
// order ids gapless and balances race-free. For horizontal scaling,
// replace with distributed locking or database-level serialization.
type Service struct {
	ledger *ledger.Ledger
	book   *book.Book
	fees   *fees.Schedule
	mu     sync.Mutex
	wsHub  *WSHub // optional WebSocket hub for real-time event broadcasts
}

// NewService creates a new settlement service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(l *ledger.Ledger, b *book.Book, schedule *fees.Schedule, hub *WSHub) *Service {
	return &Service{
		ledger: l,
		book:   b,
		fees:   schedule,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// FundsRequest is the JSON body for native deposits and withdrawals.
// For deposits, Amount is the attached value and is trusted as-is; for
// withdrawals it is validated against the custodial balance.
type FundsRequest struct {
	User   string          `json:"user"`
	Amount decimal.Decimal `json:"amount"`
}

// TokenFundsRequest is the JSON body for token deposits and withdrawals.
type TokenFundsRequest struct {
	User   string          `json:"user"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// MakeOrderRequest is the JSON body for POST /orders.
type MakeOrderRequest struct {
	User          string          `json:"user"`
	AssetWanted   string          `json:"asset_wanted"`
	AmountWanted  decimal.Decimal `json:"amount_wanted"`
	AssetOffered  string          `json:"asset_offered"`
	AmountOffered decimal.Decimal `json:"amount_offered"`
}

// CancelOrderRequest is the JSON body for POST /orders/{orderID}/cancel.
type CancelOrderRequest struct {
	User string `json:"user"`
}

// OrdersResponse is the JSON body returned from GET /orders.
type OrdersResponse struct {
	Orders []model.Order `json:"orders"`
	Count  int64         `json:"count"`
}

// --- Ledger handlers ---

// DepositNative handles POST /api/v1/deposits/native
func (s *Service) DepositNative(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validFunds(w, req.User, req.Amount) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.ledger.DepositNative(r.Context(), req.User, req.Amount)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.DepositsTotal.WithLabelValues("native").Inc()
	slog.Info("native deposit",
		"user", req.User,
		"amount", req.Amount.String(),
		"balance", event.Balance.String(),
	)
	s.broadcast(event)
	writeJSON(w, http.StatusCreated, event)
}

// WithdrawNative handles POST /api/v1/withdrawals/native
func (s *Service) WithdrawNative(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validFunds(w, req.User, req.Amount) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.ledger.WithdrawNative(r.Context(), req.User, req.Amount)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.WithdrawalsTotal.WithLabelValues("native").Inc()
	slog.Info("native withdrawal",
		"user", req.User,
		"amount", req.Amount.String(),
		"balance", event.Balance.String(),
	)
	s.broadcast(event)
	writeJSON(w, http.StatusOK, event)
}

// DepositToken handles POST /api/v1/deposits/tokens
func (s *Service) DepositToken(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTokenFunds(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.ledger.DepositToken(r.Context(), req.Token, req.User, req.Amount)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.DepositsTotal.WithLabelValues("token").Inc()
	slog.Info("token deposit",
		"user", req.User,
		"token", req.Token,
		"amount", req.Amount.String(),
		"balance", event.Balance.String(),
	)
	s.broadcast(event)
	writeJSON(w, http.StatusCreated, event)
}

// WithdrawToken handles POST /api/v1/withdrawals/tokens
func (s *Service) WithdrawToken(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTokenFunds(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.ledger.WithdrawToken(r.Context(), req.Token, req.User, req.Amount)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.WithdrawalsTotal.WithLabelValues("token").Inc()
	slog.Info("token withdrawal",
		"user", req.User,
		"token", req.Token,
		"amount", req.Amount.String(),
		"balance", event.Balance.String(),
	)
	s.broadcast(event)
	writeJSON(w, http.StatusOK, event)
}

// GetBalance handles GET /api/v1/balances/{user}/{asset}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	assetID, err := asset.Parse(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := s.ledger.BalanceOf(r.Context(), assetID, user)
	if err != nil {
		writeError(w, "failed to read balance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, model.Balance{Asset: assetID, Owner: user, Amount: amount})
}

// ListBalances handles GET /api/v1/balances/{user}
func (s *Service) ListBalances(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	balances, err := s.ledger.Balances(r.Context(), user)
	if err != nil {
		writeError(w, "failed to list balances", http.StatusInternalServerError)
		return
	}
	if balances == nil {
		balances = []model.Balance{}
	}

	writeJSON(w, http.StatusOK, balances)
}

// --- Order book handlers ---

// MakeOrder handles POST /api/v1/orders
// Orders are intents, not escrow: no balance check happens here.
func (s *Service) MakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		writeError(w, "user is required", http.StatusBadRequest)
		return
	}

	assetWanted, err := asset.Parse(req.AssetWanted)
	if err != nil {
		writeError(w, "asset_wanted: "+err.Error(), http.StatusBadRequest)
		return
	}
	assetOffered, err := asset.Parse(req.AssetOffered)
	if err != nil {
		writeError(w, "asset_offered: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !validAmount(req.AmountWanted) || !validAmount(req.AmountOffered) {
		writeError(w, "amounts must be positive integers of base units", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, event, err := s.book.MakeOrder(r.Context(), req.User,
		assetWanted, req.AmountWanted, assetOffered, req.AmountOffered)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.OrdersTotal.Inc()
	slog.Info("order created",
		"id", order.ID,
		"owner", order.Owner,
		"asset_wanted", order.AssetWanted,
		"amount_wanted", order.AmountWanted.String(),
		"asset_offered", order.AssetOffered,
		"amount_offered", order.AmountOffered.String(),
	)
	s.broadcast(event)
	writeJSON(w, http.StatusCreated, order)
}

// CancelOrder handles POST /api/v1/orders/{orderID}/cancel
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		writeError(w, "user is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, event, err := s.book.CancelOrder(r.Context(), req.User, id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	metrics.CancelsTotal.Inc()
	slog.Info("order cancelled", "id", order.ID, "owner", order.Owner)
	s.broadcast(event)
	writeJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (s *Service) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := s.book.GetOrder(r.Context(), id)
	if err != nil {
		s.writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// ListOrders handles GET /api/v1/orders
// Returns all orders newest first, optionally filtered by ?user=<id>,
// plus the total number of orders ever created.
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.book.ListOrders(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	count, err := s.book.OrderCount(r.Context())
	if err != nil {
		writeError(w, "failed to count orders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, OrdersResponse{Orders: orders, Count: count})
}

// --- Audit / config handlers ---

// ListEvents handles GET /api/v1/events
// Returns the append-only event log, optionally filtered by ?user=<id>.
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ledger.Events(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetFees handles GET /api/v1/fees
func (s *Service) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fees)
}

// --- Helpers ---

func (s *Service) decodeTokenFunds(w http.ResponseWriter, r *http.Request) (TokenFundsRequest, bool) {
	var req TokenFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if !validFunds(w, req.User, req.Amount) {
		return req, false
	}

	tok, err := asset.Parse(req.Token)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	req.Token = tok
	return req, true
}

// validAmount reports whether a is a positive whole number of base units.
func validAmount(a decimal.Decimal) bool {
	return a.IsPositive() && a.IsInteger()
}

func validFunds(w http.ResponseWriter, user string, amount decimal.Decimal) bool {
	if user == "" {
		writeError(w, "user is required", http.StatusBadRequest)
		return false
	}
	if !validAmount(amount) {
		writeError(w, "amount must be a positive integer of base units", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Service) broadcast(e *model.Event) {
	if s.wsHub != nil {
		s.wsHub.Broadcast(e)
	}
}

// writeCoreError maps ledger/book errors onto HTTP statuses and stable
// machine-readable codes, counting each rejection.
func (s *Service) writeCoreError(w http.ResponseWriter, err error) {
	var code string
	var status int

	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		code, status = "insufficient_balance", http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAsset):
		code, status = "invalid_asset", http.StatusBadRequest
	case errors.Is(err, ledger.ErrTransferFailed):
		code, status = "transfer_failed", http.StatusBadGateway
	case errors.Is(err, book.ErrNotFound):
		code, status = "order_not_found", http.StatusNotFound
	case errors.Is(err, book.ErrNotOwner):
		code, status = "not_owner", http.StatusForbidden
	case errors.Is(err, book.ErrAlreadyCancelled):
		code, status = "already_cancelled", http.StatusConflict
	default:
		slog.Error("internal error", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.RejectionsTotal.WithLabelValues(code).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON success response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
