package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/relay-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/relay-balancer/internal/strategy"
)

// Controller is the live selection state the API reads and changes.
type Controller interface {
	Algorithm() strategy.Algorithm
	SetAlgorithm(strategy.Algorithm)
	Sticky() bool
	SetSticky(bool)
}

type BackendStatus struct {
	Name              string     `json:"name"`
	Address           string     `json:"address"`
	Healthy           bool       `json:"healthy"`
	ActiveConnections int64      `json:"active_connections"`
	LastChecked       *time.Time `json:"last_checked,omitempty"`
}

type Status struct {
	Algorithm string          `json:"algorithm"`
	Sticky    bool            `json:"sticky"`
	Backends  []BackendStatus `json:"backends"`
}

type algorithmRequest struct {
	Algorithm string `json:"algorithm"`
}

func (r algorithmRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Algorithm,
			validation.Required,
			validation.By(func(value interface{}) error {
				if _, err := strategy.ParseAlgorithm(value.(string)); err != nil {
					return validation.NewError("validation_invalid_algorithm", "must be rr or least")
				}
				return nil
			}),
		),
	)
}

type stickyRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r stickyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Enabled, validation.NotNil),
	)
}

type API struct {
	ctrl    Controller
	pool    *loadbalancer.Pool
	metrics http.Handler
	logger  *slog.Logger
}

// NewAPI builds the admin API. metrics may be nil to leave /metrics
// unrouted.
func NewAPI(ctrl Controller, pool *loadbalancer.Pool, metrics http.Handler, logger *slog.Logger) *API {
	return &API{
		ctrl:    ctrl,
		pool:    pool,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "admin")),
	}
}

func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("PUT /algorithm", a.handleAlgorithm)
	mux.HandleFunc("PUT /sticky", a.handleSticky)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}

	return mux
}

// Snapshot reports the current selection settings and backend state.
func (a *API) Snapshot() Status {
	status := Status{
		Algorithm: string(a.ctrl.Algorithm()),
		Sticky:    a.ctrl.Sticky(),
		Backends:  make([]BackendStatus, 0, a.pool.Len()),
	}

	for _, b := range a.pool.Backends() {
		bs := BackendStatus{
			Name:              b.Name(),
			Address:           b.Address(),
			Healthy:           b.IsHealthy(),
			ActiveConnections: b.ActiveConnections(),
		}
		if checked := b.LastChecked(); !checked.IsZero() {
			bs.LastChecked = &checked
		}
		status.Backends = append(status.Backends, bs)
	}

	return status
}

func (a *API) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (a *API) handleAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req algorithmRequest
	if !a.decode(w, r, &req) {
		return
	}

	alg, _ := strategy.ParseAlgorithm(req.Algorithm)
	a.ctrl.SetAlgorithm(alg)
	a.logger.Info("Algorithm set", slog.String("algorithm", string(alg)))

	writeJSON(w, http.StatusOK, a.Snapshot())
}

func (a *API) handleSticky(w http.ResponseWriter, r *http.Request) {
	var req stickyRequest
	if !a.decode(w, r, &req) {
		return
	}

	a.ctrl.SetSticky(*req.Enabled)
	a.logger.Info("Sticky sessions set", slog.Bool("enabled", *req.Enabled))

	writeJSON(w, http.StatusOK, a.Snapshot())
}

// decode reads a JSON body into req and validates it, answering 400 on
// failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, req validation.Validatable) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}

	if err := req.Validate(); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": errs})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
