package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"nexushub.org/internal/auth"
	"nexushub.org/internal/crm"
	"nexushub.org/internal/identity"
	"nexushub.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. All tenant and permission decisions are delegated
// to the guard and the services; handlers only translate between HTTP and
// domain calls.
type API struct {
	mux          *http.ServeMux
	guard        *auth.Guard
	identity     *identity.Service
	crm          *crm.Service
	readyProbe   ReadyProbe
	version      string
	ratePerSec   int
	rateBurst    int
	maxBodyBytes int64
}

// Options carries the collaborators the API needs.
type Options struct {
	Guard      *auth.Guard
	Identity   *identity.Service
	CRM        *crm.Service
	ReadyProbe ReadyProbe
	Version    string

	// Zero values fall back to sensible defaults.
	RatePerSec   int
	RateBurst    int
	MaxBodyBytes int64
}

func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		guard:        opts.Guard,
		identity:     opts.Identity,
		crm:          opts.CRM,
		readyProbe:   opts.ReadyProbe,
		version:      opts.Version,
		ratePerSec:   opts.RatePerSec,
		rateBurst:    opts.RateBurst,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)

	a.mux.HandleFunc("/v1/users", a.handleUsers)

	a.mux.HandleFunc("/v1/contacts", a.handleContacts)
	a.mux.HandleFunc("/v1/contacts/", a.handleContactItem)
	a.mux.HandleFunc("/v1/companies", a.handleCompanies)
	a.mux.HandleFunc("/v1/companies/", a.handleCompanyItem)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain. Order matters: the
// request id must exist before logging and error responses reference it,
// and rate limiting runs before any authentication work.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nexushub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
