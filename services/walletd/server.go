package walletd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"lukechampine.com/blake3"

	ledgererrors "walletledger/core/errors"
	"walletledger/core/types"
	"walletledger/gateway/middleware"
	"walletledger/native/rewards"
	"walletledger/observability"
)

const (
	maxBodyBytes     = 64 << 10
	mutationLimitKey = "mutation"
)

// ServerConfig captures the dependencies of the HTTP surface.
type ServerConfig struct {
	Ledger        *Ledger
	Authenticator *middleware.Authenticator
	RateLimit     middleware.RateLimit
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// Server exposes the ledger over JSON HTTP and a WebSocket account stream.
type Server struct {
	ledger  *Ledger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	cors    middleware.CORSConfig
	logger  *slog.Logger
	router  http.Handler
}

// NewServer wires the router.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limits := map[string]middleware.RateLimit{}
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limits[mutationLimitKey] = cfg.RateLimit
	}
	limiter := middleware.NewRateLimiter(limits)
	httpMetrics := observability.HTTP()
	limiter.OnThrottle = httpMetrics.RecordThrottle
	srv := &Server{
		ledger:  cfg.Ledger,
		auth:    cfg.Authenticator,
		limiter: limiter,
		cors:    cfg.CORS,
		logger:  logger,
	}
	srv.router = srv.buildRouter(httpMetrics)
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter(httpMetrics middleware.RequestObserver) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cors))
	r.Use(middleware.Instrument(httpMetrics, routePattern, s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	adminRole := s.ledger.Policy().AdminRole
	throttle := s.limiter.Middleware(mutationLimitKey)
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.auth.Middleware)
		api.Get("/plans", s.handlePlans)
		api.Get("/settings", s.handleSettings)
		api.With(throttle).Post("/accounts", s.handleRegister)
		api.Get("/account", s.handleAccount)
		api.With(throttle).Put("/account/address", s.handleUpdateAddress)
		api.Get("/account/stream", s.handleStream)
		api.With(throttle).Post("/investments", s.handleBuyProduct)
		api.With(throttle).Post("/recharges", s.handleRecharge)
		api.With(throttle).Post("/withdrawals", s.handleWithdraw)
		api.With(throttle).Post("/spins", s.handleSpin)
		api.With(throttle).Post("/rewards/claim", s.handleClaimReward)
		api.With(throttle).Post("/bonus/claim", s.handleClaimBonus)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.RequireRole(adminRole))
			admin.Get("/accounts", s.handleAdminAccounts)
			admin.Get("/transactions", s.handleAdminTransactions)
			admin.Post("/transactions/{id}/approve", s.handleApprove)
			admin.Post("/transactions/{id}/reject", s.handleReject)
			admin.Put("/settings", s.handleUpdateSettings)
			admin.Get("/reports/daily", s.handleDailyReport)
			admin.Post("/reports/export", s.handleExportReport)
		})
	})
	return otelhttp.NewHandler(r, "walletd")
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func identity(r *http.Request) middleware.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Catalog().Plans())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.ledger.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	acc, err := s.ledger.Register(r.Context(), identity(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAccountResponse(acc))
}

// accountResponse adds the transaction history, newest first, to the stored
// account document.
type accountResponse struct {
	*types.Account
	History []*types.Transaction `json:"history"`
}

func newAccountResponse(acc *types.Account) accountResponse {
	return accountResponse{Account: acc, History: acc.SortedTransactions()}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Account(r.Context(), identity(r).Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := json.Marshal(newAccountResponse(acc))
	if err != nil {
		s.writeError(w, err)
		return
	}
	tag := etag(body)
	w.Header().Set("ETag", tag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func etag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	acc, err := s.ledger.UpdateAddress(r.Context(), identity(r).Subject, req.Address)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

func (s *Server) handleBuyProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := s.ledger.BuyProduct(r.Context(), identity(r).Subject, strings.TrimSpace(req.ProductID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleRecharge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount json.Number `json:"amount"`
		UTR    string      `json:"utr"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	tx, err := s.ledger.RequestRecharge(r.Context(), identity(r).Subject, amount, req.UTR)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount  json.Number             `json:"amount"`
		Details types.WithdrawalDetails `json:"details"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	tx, err := s.ledger.RequestWithdraw(r.Context(), identity(r).Subject, amount, req.Details)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Spin(r.Context(), identity(r).Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.ledger.ClaimReward(r.Context(), identity(r).Subject)
	if errors.Is(err, rewards.ErrCooldown) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":            "reward already claimed, try again later",
			"class":            ledgererrors.ClassValidation,
			"remainingSeconds": int64(math.Ceil(outcome.Remaining.Seconds())),
		})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleClaimBonus(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.ClaimDailyBonus(r.Context(), identity(r).Subject)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := s.ledger.ListAccounts(r.Context(), identity(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAdminTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := TransactionFilter{
		Kind:   types.TransactionKind(strings.TrimSpace(query.Get("kind"))),
		Status: types.TransactionStatus(strings.TrimSpace(query.Get("status"))),
	}
	views, err := s.ledger.ListTransactions(r.Context(), identity(r), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Approve(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Reject(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req types.AppSettings
	if !decodeBody(w, r, &req) {
		return
	}
	settings, err := s.ledger.UpdateSettings(r.Context(), identity(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.DailyReport(r.Context(), identity(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	exported, err := s.ledger.ExportReport(r.Context(), identity(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exported)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload", Class: ledgererrors.ClassValidation})
		return false
	}
	return true
}

type errorBody struct {
	Error string             `json:"error"`
	Class ledgererrors.Class `json:"class"`
}

// statusFor maps an error class onto the HTTP status returned to clients.
func statusFor(class ledgererrors.Class) int {
	switch class {
	case ledgererrors.ClassValidation:
		return http.StatusBadRequest
	case ledgererrors.ClassAuthorization:
		return http.StatusForbidden
	case ledgererrors.ClassNotFound:
		return http.StatusNotFound
	case ledgererrors.ClassAlreadyFinalized:
		return http.StatusConflict
	case ledgererrors.ClassConcurrency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	class := ledgererrors.ClassOf(err)
	status := statusFor(class)
	message := err.Error()
	switch class {
	case ledgererrors.ClassConcurrency:
		w.Header().Set("Retry-After", "1")
		message = "the ledger is busy, try again"
	case ledgererrors.ClassInternal:
		s.logger.Error("request failed", slog.String("error", err.Error()))
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: message, Class: class})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
