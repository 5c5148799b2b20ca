package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"bakerypos/backend/internal/billing"
	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/service"
	"bakerypos/backend/internal/store"
)

const (
	terminalHeader  = "X-Terminal-ID"
	defaultTerminal = "default"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	validate      *validator.Validate
	logger        *log.Entry
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		logger:        log.WithField("component", "httpapi"),
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current and the previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/auth/csrf-token", a.handleCSRFToken).Methods(http.MethodGet)

	v1.HandleFunc("/items", a.requireAuth(a.handleListItems, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/items", a.requireAuth(a.handleCreateItem, "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/items/export", a.requireAuth(a.handleExportItems, "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/items/import", a.requireAuth(a.handleImportItems, "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/items/{id}", a.requireAuth(a.handleUpdateItem, "admin")).Methods(http.MethodPatch)
	v1.HandleFunc("/items/{id}", a.requireAuth(a.handleDeleteItem, "admin")).Methods(http.MethodDelete)
	v1.HandleFunc("/items/{id}/variants", a.requireAuth(a.handleAddVariant, "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/items/{id}/variant-price", a.requireAuth(a.handleVariantPrice, "cashier", "admin")).Methods(http.MethodGet)

	v1.HandleFunc("/draft", a.requireAuth(a.handleGetDraft, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/draft", a.requireAuth(a.handleDiscardDraft, "cashier", "admin")).Methods(http.MethodDelete)
	v1.HandleFunc("/draft/details", a.requireAuth(a.handleDraftDetails, "cashier", "admin")).Methods(http.MethodPatch)
	v1.HandleFunc("/draft/cart", a.requireAuth(a.handleAddToCart, "cashier", "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/draft/cart", a.requireAuth(a.handleClearCart, "cashier", "admin")).Methods(http.MethodDelete)
	v1.HandleFunc("/draft/cart/{line}", a.requireAuth(a.handleUpdateCartLine, "cashier", "admin")).Methods(http.MethodPatch)
	v1.HandleFunc("/draft/suggestion", a.requireAuth(a.handleCartSuggestion, "cashier", "admin")).Methods(http.MethodGet)

	v1.HandleFunc("/checkout", a.requireAuth(a.handleCheckout, "cashier", "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/checkout/state", a.requireAuth(a.handleCheckoutState, "cashier", "admin")).Methods(http.MethodGet)

	v1.HandleFunc("/orders", a.requireAuth(a.handleListOrders, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/orders/{id}/status", a.requireAuth(a.handleOrderStatus, "cashier", "admin")).Methods(http.MethodPatch)
	v1.HandleFunc("/orders/{id}/settle", a.requireAuth(a.handleSettleOrder, "cashier", "admin")).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{id}", a.requireAuth(a.handleGetTransaction, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/transactions/{id}/receipt", a.requireAuth(a.handleReceipt, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/expenses", a.requireAuth(a.handleRecordExpense, "cashier", "admin")).Methods(http.MethodPost)

	v1.HandleFunc("/customers", a.requireAuth(a.handleListCustomers, "cashier", "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/reports/daily", a.requireAuth(a.handleDailyReport, "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/audit-logs", a.requireAuth(a.handleAuditLogs, "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/users/cashiers", a.requireAuth(a.handleListCashiers, "admin")).Methods(http.MethodGet)
	v1.HandleFunc("/users/cashiers", a.requireAuth(a.handleCreateCashier, "admin")).Methods(http.MethodPost)

	return a.withMiddleware(r)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// sessionKey scopes drafts and checkouts to one user on one terminal.
func sessionKey(r *http.Request) string {
	actor, _ := service.ActorFromContext(r.Context())
	terminal := strings.TrimSpace(r.Header.Get(terminalHeader))
	if terminal == "" {
		terminal = defaultTerminal
	}
	return actor.Username + ":" + terminal
}

// csrfExemptPaths lists paths called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods.
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Terminal-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

// decodeJSON reads a JSON body strictly and runs the struct's validate tags.
func (a *API) decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return a.validate.Struct(dest)
}

// errorStatus maps service and store errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, checkout.ErrLineNotFound),
		errors.Is(err, checkout.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, billing.ErrEmptyCart),
		errors.Is(err, billing.ErrInvalidPhone):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides 5xx details from clients; 4xx messages are user facing.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.WithField("component", "httpapi").WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
