/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application services, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/auth, internal/domain, internal/store: For service
 *   logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/frappster/ledger-service/internal/app"
	"github.com/frappster/ledger-service/internal/auth"
	"github.com/frappster/ledger-service/internal/domain"
	"github.com/frappster/ledger-service/internal/store"
)

// LedgerHandlers holds the application services that handlers will use.
type LedgerHandlers struct {
	ledger     *app.Service
	identities *app.IdentityService
	sessions   *auth.Manager
	tokens     *TokenIssuer
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(ledger *app.Service, identities *app.IdentityService, sessions *auth.Manager, tokens *TokenIssuer) *LedgerHandlers {
	return &LedgerHandlers{
		ledger:     ledger,
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
	}
}

type loginRequest struct {
	LoginID string `json:"login_id"`
	Secret  string `json:"secret"`
}

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	LoginID   string `json:"login_id"`
}

// LoginHandler authenticates a caller and mints a bearer token for the new
// session. It is the only endpoint outside the authenticated group.
func (h *LedgerHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// A caller presenting a still-live token is already authenticated.
	var current *auth.Session
	if tokenString := bearerToken(r); tokenString != "" {
		if session, err := h.tokens.ResolveToken(tokenString); err == nil {
			current = session
		}
	}

	session, err := h.sessions.Login(r.Context(), current, req.LoginID, req.Secret)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	token, err := h.tokens.IssueToken(session)
	if err != nil {
		log.Printf("level=error component=api endpoint=login msg=\"token issue failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to issue session token")
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		SessionID: session.ID.String(),
		LoginID:   session.LoginID,
	})
}

type logoutRequest struct {
	TargetLoginID string `json:"target_login_id,omitempty"`
}

// LogoutHandler ends the caller's session, or a target identity's sessions
// when the caller holds the identity-management grant.
func (h *LedgerHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req logoutRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := h.sessions.Logout(r.Context(), session, req.TargetLoginID); err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type movementRequest struct {
	Amount string `json:"amount"`
}

type movementResponse struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
}

// DepositHandler credits the account in the URL.
func (h *LedgerHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	number, ok := h.accountNumberParam(w, r)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, r)
	if !ok {
		return
	}

	txn, err := h.ledger.Deposit(r.Context(), session, number, amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.respondWithMovement(w, r, session, number, txn)
}

// WithdrawHandler debits the account in the URL.
func (h *LedgerHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	number, ok := h.accountNumberParam(w, r)
	if !ok {
		return
	}
	amount, ok := h.parseAmount(w, r)
	if !ok {
		return
	}

	txn, err := h.ledger.Withdraw(r.Context(), session, number, amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.respondWithMovement(w, r, session, number, txn)
}

type transferRequest struct {
	From   int64  `json:"from"`
	To     int64  `json:"to"`
	Amount string `json:"amount"`
}

// TransferHandler moves money between two accounts atomically.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	txn, err := h.ledger.Transfer(r.Context(), session, req.From, req.To, amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{
		"transaction_id": txn.ID.String(),
		"type":           string(txn.Type),
		"amount":         txn.Amount.String(),
	})
}

// HistoryHandler returns the journal entries involving the account, oldest
// first.
func (h *LedgerHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	number, ok := h.accountNumberParam(w, r)
	if !ok {
		return
	}

	history, err := h.ledger.GetHistory(r.Context(), session, number)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	if history == nil {
		history = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

// BalanceHandler returns the account's current balance.
func (h *LedgerHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	number, ok := h.accountNumberParam(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), session, number)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"account": strconv.FormatInt(number, 10),
		"balance": balance.String(),
	})
}

type createIdentityRequest struct {
	LoginID string `json:"login_id"`
	Secret  string `json:"secret"`
	Role    string `json:"role"`
}

// CreateIdentityHandler onboards a new principal. Staff only.
func (h *LedgerHandlers) CreateIdentityHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req createIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	role, err := domain.ParseAccessRole(req.Role)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unknown role")
		return
	}

	identity, err := h.identities.CreateIdentity(r.Context(), session, req.LoginID, req.Secret, role)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, identity)
}

// ListIdentitiesHandler returns every identity. Staff only.
func (h *LedgerHandlers) ListIdentitiesHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	identities, err := h.identities.ListIdentities(r.Context(), session)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, identities)
}

type updateCredentialsRequest struct {
	CurrentSecret string `json:"current_secret"`
	NewSecret     string `json:"new_secret"`
}

// UpdateOwnCredentialsHandler rotates the caller's secret.
func (h *LedgerHandlers) UpdateOwnCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req updateCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.identities.UpdateOwnCredentials(r.Context(), session, req.CurrentSecret, req.NewSecret); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "credentials_updated"})
}

type resetCredentialsRequest struct {
	NewSecret string `json:"new_secret"`
}

// ResetCredentialsHandler sets a new secret for the identity in the URL and
// clears any active lockout. Staff only.
func (h *LedgerHandlers) ResetCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())
	targetLoginID := chi.URLParam(r, "loginID")

	var req resetCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.identities.ResetCredentials(r.Context(), session, targetLoginID, req.NewSecret); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "credentials_reset"})
}

type createAccountRequest struct {
	OwnerLoginID string `json:"owner_login_id"`
	Type         string `json:"type"`
}

// CreateAccountHandler opens a new account for an identity. Staff only.
func (h *LedgerHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	accountType, err := domain.ParseAccountType(req.Type)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unknown account type")
		return
	}

	account, err := h.identities.CreateAccount(r.Context(), session, req.OwnerLoginID, accountType)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

func (h *LedgerHandlers) respondWithMovement(w http.ResponseWriter, r *http.Request, session *auth.Session, number int64, txn *domain.Transaction) {
	balance, err := h.ledger.GetBalance(r.Context(), session, number)
	if err != nil {
		// The movement committed; report it even if the balance read failed.
		log.Printf("level=warn component=api msg=\"balance read after movement failed\" account=%d err=%v", number, err)
		h.writeJSON(w, http.StatusCreated, movementResponse{
			TransactionID: txn.ID.String(),
			Type:          string(txn.Type),
			Amount:        txn.Amount.String(),
		})
		return
	}
	h.writeJSON(w, http.StatusCreated, movementResponse{
		TransactionID: txn.ID.String(),
		Type:          string(txn.Type),
		Amount:        txn.Amount.String(),
		Balance:       balance.String(),
	})
}

func (h *LedgerHandlers) accountNumberParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "number")
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account number")
		return 0, false
	}
	return number, true
}

func (h *LedgerHandlers) parseAmount(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
		return decimal.Zero, false
	}
	return amount, true
}

// writeAuthError maps session manager failures to status codes.
func (h *LedgerHandlers) writeAuthError(w http.ResponseWriter, err error) {
	var locked *auth.AccountLockedError
	if errors.As(err, &locked) {
		h.writeJSON(w, http.StatusLocked, map[string]string{
			"error":        "Account is locked",
			"locked_until": locked.Until.Format(time.RFC3339),
		})
		return
	}
	var throttled *auth.ThrottledError
	if errors.As(err, &throttled) {
		w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrAlreadyAuthenticated):
		h.writeError(w, http.StatusConflict, "Already authenticated")
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, auth.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, "Permission denied")
	case errors.Is(err, store.ErrIdentityNotFound):
		h.writeError(w, http.StatusNotFound, "Identity not found")
	case errors.Is(err, store.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		log.Printf("level=error component=api msg=\"unmapped auth error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// writeLedgerError maps ledger and administration failures to status codes.
func (h *LedgerHandlers) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, domain.ErrNonPositiveAmount):
		h.writeError(w, http.StatusBadRequest, "Invalid amount")
	case errors.Is(err, app.ErrSelfTransferRejected):
		h.writeError(w, http.StatusBadRequest, "Cannot transfer to the same account")
	case errors.Is(err, domain.ErrMissingField):
		h.writeError(w, http.StatusBadRequest, "Missing required field")
	case errors.Is(err, app.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrIdentityNotFound):
		h.writeError(w, http.StatusNotFound, "Identity not found")
	case errors.Is(err, store.ErrDuplicateIdentity):
		h.writeError(w, http.StatusConflict, "Identity already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, auth.ErrPermissionDenied):
		h.writeError(w, http.StatusForbidden, "Permission denied")
	case errors.Is(err, store.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		log.Printf("level=error component=api msg=\"unmapped ledger error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return ""
	}
	return authHeader[len(prefix):]
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
