package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokoku/backend/internal/domain"
	"tokoku/backend/internal/notify"
	"tokoku/backend/internal/service"
	"tokoku/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	hub           *notify.Hub
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, hub *notify.Hub, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		hub:           hub,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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
	kept = append(kept, now)
	l.entries[key] = kept
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
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/products", a.handleProducts)
	mux.HandleFunc("/api/v1/products/", a.handleProductActions)
	mux.HandleFunc("/api/v1/clients", a.handleClients)
	mux.HandleFunc("/api/v1/clients/", a.handleClientActions)
	mux.HandleFunc("/api/v1/debtors", a.handleDebtors)
	mux.HandleFunc("/api/v1/debtors/", a.handleDebtorActions)
	mux.HandleFunc("/api/v1/transactions", a.handleTransactions)
	mux.HandleFunc("/api/v1/transactions/cash-in", a.handleCashIn)
	mux.HandleFunc("/api/v1/transactions/cash-out", a.handleCashOut)
	mux.HandleFunc("/api/v1/transactions/", a.handleTransactionActions)
	mux.HandleFunc("/api/v1/orders", a.handleOrders)
	mux.HandleFunc("/api/v1/orders/events", a.handleOrderEvents)
	mux.HandleFunc("/api/v1/orders/", a.handleOrderActions)
	mux.HandleFunc("/api/v1/reports/dashboard", a.handleDashboardReport)
	mux.HandleFunc("/api/v1/reports/statistics", a.handleStatistics)
	mux.HandleFunc("/api/v1/users/staff", a.handleStaff)

	return a.withMiddleware(mux)
}

// authorize parses the bearer token and checks the role. On failure it has
// already written the error response.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, roles ...string) (*http.Request, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return nil, false
	}
	actor, err := a.auth.ParseToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return nil, false
	}
	if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return nil, false
	}
	return r.WithContext(service.WithActor(r.Context(), actor)), true
}

func bearerToken(r *http.Request) string {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return strings.TrimSpace(authorization[len("Bearer "):])
	}
	// EventSource cannot set headers, so SSE clients pass the token as a
	// query parameter.
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ---- products ----

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.ProductFilter{
			Search:   strings.TrimSpace(r.URL.Query().Get("search")),
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
			LowStock: r.URL.Query().Get("low_stock") == "true",
		}
		filter.Limit, filter.Offset = parseLimitOffset(r)

		products, err := a.service.ListProducts(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(authed.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, product)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown product path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodPut:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		var req domain.ProductUpdateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case http.MethodDelete:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		if err := a.service.DeleteProduct(authed.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- clients ----

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.ClientFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
		filter.Limit, filter.Offset = parseLimitOffset(r)

		clients, err := a.service.ListClients(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
	case http.MethodPost:
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.ClientCreateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		client, err := a.service.CreateClient(authed.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, client)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleClientActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/clients/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown client path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, err := a.service.GetClient(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodPut:
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.ClientUpdateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		client, err := a.service.UpdateClient(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodDelete:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		if err := a.service.DeleteClient(authed.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- debtors ----

func (a *API) handleDebtors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.DebtorFilter{
			ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
			Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		}
		if filter.Status != "" && !domain.IsValidDebtorStatus(filter.Status) {
			writeError(w, http.StatusBadRequest, errors.New("unknown debtor status"))
			return
		}
		filter.Limit, filter.Offset = parseLimitOffset(r)

		debtors, err := a.service.ListDebtors(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"debtors": debtors})
	case http.MethodPost:
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.DebtorCreateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		debtor, err := a.service.CreateDebt(authed.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, debtor)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDebtorActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/debtors/")

	if id, found := strings.CutSuffix(rest, "/payment"); found {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.DebtPaymentRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		debtor, err := a.service.PayDebt(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debtor)
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown debtor path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		debtor, err := a.service.GetDebtor(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debtor)
	case http.MethodPatch:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		var req domain.DebtorUpdateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		debtor, err := a.service.UpdateDebtor(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debtor)
	case http.MethodDelete:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		debtor, err := a.service.DeleteDebtor(authed.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, debtor)
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- transactions ----

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	filter := domain.LedgerFilter{
		Type:     strings.TrimSpace(r.URL.Query().Get("type")),
		ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
	}
	if filter.Type != "" && !domain.IsValidEntryType(filter.Type) {
		writeError(w, http.StatusBadRequest, errors.New("unknown entry type"))
		return
	}
	if fromStr := strings.TrimSpace(r.URL.Query().Get("from")); fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid from date, want YYYY-MM-DD"))
			return
		}
		filter.From = from
	}
	if toStr := strings.TrimSpace(r.URL.Query().Get("to")); toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid to date, want YYYY-MM-DD"))
			return
		}
		filter.To = to.AddDate(0, 0, 1)
	}
	filter.Limit, filter.Offset = parseLimitOffset(r)

	entries, err := a.service.ListTransactions(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

func (a *API) handleCashIn(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, a.service.CashIn)
}

func (a *API) handleCashOut(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, a.service.CashOut)
}

func (a *API) handleCashMovement(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, req domain.CashMovementRequest) (domain.LedgerEntry, error)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	authed, ok := a.authorize(w, r, "staff", "admin")
	if !ok {
		return
	}
	var req domain.CashMovementRequest
	if err := decodeJSON(authed, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := record(authed.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown transaction path"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := a.service.GetTransaction(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodPut:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		var req domain.LedgerEntryUpdateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entry, err := a.service.UpdateTransaction(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		authed, ok := a.authorize(w, r, "admin")
		if !ok {
			return
		}
		if err := a.service.DeleteTransaction(authed.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- orders ----

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := domain.OrderFilter{
			ClientID: strings.TrimSpace(r.URL.Query().Get("client_id")),
			Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		}
		filter.Limit, filter.Offset = parseLimitOffset(r)

		orders, err := a.service.ListOrders(r.Context(), filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.OrderCreateRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.CreateOrder(authed.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleOrderEvents streams order events over SSE until the client hangs up.
func (a *API) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	r, ok := a.authorize(w, r, "staff", "admin")
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	events, cancel := a.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload, open := <-events:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: order\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")

	if id, found := strings.CutSuffix(rest, "/status"); found {
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		authed, ok := a.authorize(w, r, "staff", "admin")
		if !ok {
			return
		}
		var req domain.OrderStatusRequest
		if err := decodeJSON(authed, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.UpdateOrderStatus(authed.Context(), id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
		return
	}

	id := rest
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("unknown order path"))
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	order, err := a.service.GetOrder(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ---- reports ----

func (a *API) handleDashboardReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.DashboardSummary(r.Context(),
		strings.TrimSpace(r.URL.Query().Get("from")),
		strings.TrimSpace(r.URL.Query().Get("to")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	year := 0
	if yearStr := strings.TrimSpace(r.URL.Query().Get("year")); yearStr != "" {
		parsed, err := strconv.Atoi(yearStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid year"))
			return
		}
		year = parsed
	}

	stats, err := a.service.MonthlyStatistics(r.Context(), year)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=statistics-%d.csv", stats.Year))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(statisticsToCSV(stats)))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func statisticsToCSV(stats domain.MonthlyStatistics) string {
	var b strings.Builder
	b.WriteString("month,cash_in_cents,cash_out_cents\n")
	for month := 0; month < 12; month++ {
		fmt.Fprintf(&b, "%d-%02d,%d,%d\n", stats.Year, month+1, stats.CashInCents[month], stats.CashOutCents[month])
	}
	return b.String()
}

// ---- staff ----

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff()})
	case http.MethodPost:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		var req domain.StaffCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		staff, err := a.auth.CreateStaff(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, staff)
	default:
		writeMethodNotAllowed(w)
	}
}

// ---- helpers ----

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 0
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 500 {
				limit = 500
			}
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrOverpayment):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrEntryManaged):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrAdminRequired):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages stay generic so internals (SQL errors, file paths) do
	// not leak to clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
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

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}
