package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/invoice"
	"tirepos/backend/internal/ledger"
	"tirepos/backend/internal/metrics"
	"tirepos/backend/internal/scope"
	"tirepos/backend/internal/service"
	"tirepos/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *metrics.Metrics
	logger        *slog.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	unlockLimiter *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, m *metrics.Metrics, logger *slog.Logger, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		metrics:       m,
		logger:        logger.With("component", "http"),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		unlockLimiter: newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket.
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
	mu        sync.Mutex
	max       int
	window    time.Duration
	entries   map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time), now: time.Now}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	kept := recentAttempts(l.entries[key], cutoff)
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// sweep drops keys with no attempt inside the window. Caller holds mu.
func (l *attemptLimiter) sweep(cutoff time.Time) {
	for key, history := range l.entries {
		if len(recentAttempts(history, cutoff)) == 0 {
			delete(l.entries, key)
		}
	}
}

func recentAttempts(history []time.Time, cutoff time.Time) []time.Time {
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
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
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/session/branch", a.requireToken(a.handleSelectBranch))
	mux.HandleFunc("/api/v1/session/unlock", a.requireToken(a.handleUnlock))
	mux.HandleFunc("/api/v1/session/lock", a.requireToken(a.handleLock))
	mux.HandleFunc("/api/v1/stores", a.requireToken(a.handleStores))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, domain.RoleStaff))
	mux.HandleFunc("/api/v1/products/low-stock", a.requireAuth(a.handleLowStock, domain.RoleStaff))
	mux.HandleFunc("/api/v1/products/{id}/price", a.requireAuth(a.handleProductPrice, domain.RoleStoreAdmin))
	mux.HandleFunc("/api/v1/brands", a.requireAuth(a.handleBrands, domain.RoleStaff))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, domain.RoleStaff))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleSale, domain.RoleStaff))
	mux.HandleFunc("/api/v1/sales/{id}/cancel", a.requireAuth(a.handleSaleCancel, domain.RoleStoreAdmin))
	mux.HandleFunc("/api/v1/sales/{id}/tax-invoice", a.requireAuth(a.handleTaxInvoice, domain.RoleStaff))
	mux.HandleFunc("/api/v1/reports/sales-summary", a.requireAuth(a.handleSalesSummary, domain.RoleStaff))

	mux.HandleFunc("/api/v1/stock-in", a.requireAuth(a.handleStockIn, domain.RoleStaff))
	mux.HandleFunc("/api/v1/transfers", a.requireAuth(a.handleTransfers, domain.RoleStaff))

	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers, domain.RoleStaff))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, domain.RoleStaff))
	mux.HandleFunc("/api/v1/staff", a.requireAuth(a.handleStaff, domain.RoleStaff))
	mux.HandleFunc("/api/v1/staff/{id}", a.requireAuth(a.handleStaffMember, domain.RoleStoreAdmin))
	mux.HandleFunc("/api/v1/reservations", a.requireAuth(a.handleReservations, domain.RoleStaff))
	mux.HandleFunc("/api/v1/reservations/{id}", a.requireAuth(a.handleReservationStatus, domain.RoleStaff))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleStoreAdmin))

	mux.HandleFunc("/api/v1/admin/owners", a.requireAuth(a.handleOwners, domain.RoleSuperAdmin))
	mux.HandleFunc("/api/v1/admin/owners/{id}", a.requireAuth(a.handleOwner, domain.RoleSuperAdmin))
	mux.HandleFunc("/api/v1/admin/owners/{id}/branches", a.requireAuth(a.handleOwnerBranches, domain.RoleSuperAdmin))
	mux.HandleFunc("/api/v1/admin/owners/{id}/reset-password", a.requireAuth(a.handleOwnerResetPassword, domain.RoleSuperAdmin))

	return a.withMiddleware(mux)
}

// requireToken admits any valid session, including an owner that has not
// picked a branch yet.
func (a *API) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.parseBearer(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(service.WithSession(r.Context(), session)))
	}
}

// requireAuth admits sessions with a selected branch whose effective
// capability covers capability.
func (a *API) requireAuth(next http.HandlerFunc, capability string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.parseBearer(w, r)
		if !ok {
			return
		}
		if session.NeedsBranch() {
			writeError(w, http.StatusForbidden, scope.ErrBranchRequired)
			return
		}
		if !session.Can(capability) {
			writeError(w, http.StatusForbidden, fmt.Errorf("%s capability required", strings.ToLower(capability)))
			return
		}
		next(w, r.WithContext(service.WithSession(r.Context(), session)))
	}
}

func (a *API) parseBearer(w http.ResponseWriter, r *http.Request) (scope.Session, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return scope.Session{}, false
	}
	session, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return scope.Session{}, false
	}
	return session, true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.metrics.LoginAttempts.WithLabelValues("limited").Inc()
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.metrics.LoginAttempts.WithLabelValues("failed").Inc()
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.metrics.LoginAttempts.WithLabelValues("ok").Inc()
	a.logger.Info("login", "user_id", resp.UserID, "role", resp.Role)
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token valid for the current hour.
// Clients send it in X-CSRF-Token on every mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

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

func (a *API) handleSelectBranch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	session, _ := service.SessionFromContext(r.Context())

	var req domain.BranchSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.SelectBranch(r.Context(), session, req.StoreID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	session, _ := service.SessionFromContext(r.Context())
	if !a.unlockLimiter.Allow(session.Identity.ID) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many unlock attempts"))
		return
	}

	var req domain.UnlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Unlock(r.Context(), session, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			a.logger.Info("unlock rejected", "user_id", session.Identity.ID)
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	session, _ := service.SessionFromContext(r.Context())
	resp, err := a.auth.Lock(session)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stores, err := a.service.Stores(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	items, err := a.service.LowStock(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleProductPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ProductPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProductPrice(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleBrands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	brands, err := a.service.ListBrands(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"brands": brands})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		sales, err := a.service.ListSales(r.Context(), q.Get("store_id"), q.Get("from"), q.Get("to"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.CompleteSale(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	saleID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), saleID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case http.MethodPut:
		var req domain.SaleUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.EditSale(r.Context(), saleID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.CancelSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleTaxInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.TaxInvoiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.IssueTaxInvoice(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	summary, err := a.service.SalesSummary(r.Context(), q.Get("store_id"), q.Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("format"))) {
	case "csv":
		body, err := salesSummaryToCSV(summary)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sales-summary-%s.csv", summary.Date))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (a *API) handleStockIn(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		records, err := a.service.ListStockIns(r.Context(), q.Get("store_id"), parsePositiveLimit(q.Get("limit"), 100, 500))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
	case http.MethodPost:
		var req domain.StockInRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.StockIn(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		records, err := a.service.ListTransfers(r.Context(), q.Get("store_id"), parsePositiveLimit(q.Get("limit"), 100, 500))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transfers": records})
	case http.MethodPost:
		var req domain.StockTransferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.TransferStock(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		expenses, err := a.service.ListExpenses(r.Context(), q.Get("store_id"), q.Get("from"), q.Get("to"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		staff, err := a.service.ListStaff(r.Context(), r.URL.Query().Get("store_id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
	case http.MethodPost:
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		member, err := a.service.CreateStaff(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"staff": member})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStaffMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.StaffUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	member, err := a.service.SetStaffActive(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": member})
}

func (a *API) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		reservations, err := a.service.ListReservations(r.Context(), q.Get("store_id"), q.Get("date"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
	case http.MethodPost:
		var req domain.ReservationCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		reservation, err := a.service.CreateReservation(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"reservation": reservation})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReservationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ReservationStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reservation, err := a.service.UpdateReservationStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation": reservation})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("store_id"), q.Get("date"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleOwners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		owners, err := a.service.ListOwners(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"owners": owners})
	case http.MethodPost:
		var req domain.OwnerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		owner, err := a.service.CreateOwner(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, owner)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleOwner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	deleted, err := a.service.DeleteOwner(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (a *API) handleOwnerBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.BranchCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	branch, err := a.service.AddBranch(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"store": branch})
}

func (a *API) handleOwnerResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.ResetPassword(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
				r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		if a.checkCSRF(rec, r) {
			next.ServeHTTP(rec, r)
		}
		elapsed := time.Since(startedAt)

		a.metrics.ObserveHTTP(r.Method, rec.status, elapsed)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// salesSummaryToCSV renders the summary as section,key,value rows.
func salesSummaryToCSV(summary domain.SalesSummary) ([]byte, error) {
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", summary.Date},
		{"summary", "sales", strconv.FormatInt(summary.Sales, 10)},
		{"summary", "canceled_sales", strconv.FormatInt(summary.CanceledSales, 10)},
		{"summary", "total_amount", strconv.FormatInt(summary.TotalAmount, 10)},
		{"summary", "expense_amount", strconv.FormatInt(summary.ExpenseAmount, 10)},
	}
	for _, p := range summary.ByPayment {
		rows = append(rows,
			[]string{"payment", p.PaymentMethod + "_sales", strconv.FormatInt(p.Sales, 10)},
			[]string{"payment", p.PaymentMethod + "_total_amount", strconv.FormatInt(p.TotalAmount, 10)},
		)
	}
	for _, st := range summary.ByStore {
		rows = append(rows,
			[]string{"store", st.StoreID + "_sales", strconv.FormatInt(st.Sales, 10)},
			[]string{"store", st.StoreID + "_total_amount", strconv.FormatInt(st.TotalAmount, 10)},
		)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
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

// statusFor maps service and repository errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, scope.ErrBranchNotVisible):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrTransferRejected), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, scope.ErrBranchRequired), errors.Is(err, invoice.ErrInvalidBuyer):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the cause of 5xx responses from the client and logs it.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", "status", status, "error", err)
		msg = "internal server error"
	}
	payload := map[string]any{"error": msg}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		payload["field"] = verr.Field
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
