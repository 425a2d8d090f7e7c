// Package health serves the liveness (/healthz) and readiness (/readyz)
// probes. Readiness pings the backing services of the active mode.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const checkTimeout = 5 * time.Second

// Pinger is implemented by backend clients that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker is one named readiness check.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// FromPinger adapts p into a Checker.
func FromPinger(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. Skip, when set, reports whether readiness
// checks should be bypassed for the current request (fake mode).
type Handler struct {
	checkers []Checker
	Skip     func() bool
}

func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every checker passes within checkTimeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Skip != nil && h.Skip() {
		writeJSON(w, http.StatusOK, result{Status: "ok", Checks: map[string]string{"mode": "fake"}})
		return
	}
	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
			continue
		}
		checks[c.Name] = "ok"
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
