package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"amanat.org/internal/auth"
	"amanat.org/internal/escrow"
	"amanat.org/internal/obs"
	"amanat.org/internal/stream"
)

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tune the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Version    string
	Auth       *auth.Authority
	Stream     *stream.Stream
	Ready      ReadyProbe
	DevTokens  bool
	TokenTTL   time.Duration
	RateBurst  int
	RatePerSec float64
}

// API: HTTP слой.
type API struct {
	router     chi.Router
	engine     *escrow.Engine
	auth       *auth.Authority
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string
	devTokens  bool
	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec float64
}

func New(engine *escrow.Engine, opts Options) *API {
	a := &API{
		engine:     engine,
		auth:       opts.Auth,
		stream:     opts.Stream,
		readyProbe: opts.Ready,
		version:    opts.Version,
		devTokens:  opts.DevTokens,
		tokenTTL:   opts.TokenTTL,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready/metrics
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.Info)
		r.Post("/auth/token", a.handleAuthToken)

		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", a.createOrganization)
			r.Get("/", a.listOrganizations)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", a.getOrganization)
				r.Get("/index", a.organizationIndex)
				r.Get("/creators/{identity}", a.isOrganizationCreator)
				r.Put("/trust-score", a.updateTrustScore)
				r.Post("/verification", a.verifyOrganization)
				r.Route("/campaigns", func(r chi.Router) {
					r.Post("/", a.addCampaign)
					r.Get("/", a.listCampaigns)
					r.Route("/{campaignID}", func(r chi.Router) {
						r.Get("/", a.getCampaign)
						r.Get("/index", a.campaignIndex)
						r.Post("/contributions", a.contribute)
						r.Post("/refund", a.withdrawDonation)
						r.Post("/withdrawal", a.withdrawFunds)
					})
				})
			})
		})

		r.Get("/campaigns/{campaignID}/donations/{donor}", a.getDonation)
		r.Get("/grace-period", a.getGracePeriod)
		r.Put("/grace-period", a.updateGracePeriod)
		r.Get("/accounts/{identity}/balance", a.getBalance)
		r.Post("/transfers", a.rejectTransfer)
		r.Get("/events/stream", a.Stream)
	})
	return r
}

// Handler возвращает http.Handler для сервера с полной цепочкой middleware.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = obs.Instrument(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = middleware.Recoverer(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// statusFor maps escrow errors onto HTTP status codes by class.
func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrDirectTransferRejected):
		return http.StatusMethodNotAllowed
	case errors.Is(err, escrow.ErrNoDonationsMade),
		errors.Is(err, escrow.ErrOverflow),
		errors.Is(err, escrow.ErrInsufficientEscrow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch escrow.ClassOf(err) {
	case escrow.ClassExistence, escrow.ClassTiming:
		return http.StatusConflict
	case escrow.ClassAuthorization:
		return http.StatusForbidden
	case escrow.ClassValue:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func handleEscrowError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		obs.Logger().Printf(`{"level":"error","msg":"escrow_failure","request_id":%q,"error":%q}`,
			RequestIDFromContext(r.Context()), err.Error())
		writeError(w, r, code, "internal error")
		return
	}
	writeError(w, r, code, err.Error())
}
