// Package health serves the status server's liveness and readiness endpoints.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered [Checker] and answers 200 only if all of them pass; parley
// registers [ConnectionChecker], so readiness tracks the backend link.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 2 * time.Second

// Checker is one named readiness condition.
type Checker struct {
	// Name keys the result in the /readyz body.
	Name string

	// Check returns nil when the condition holds. It must honour ctx.
	Check func(ctx context.Context) error
}

// CheckResult is the outcome of a single [Checker].
type CheckResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report is the /readyz response body.
type Report struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker set is fixed by [New].
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New creates a Handler evaluating checkers on each readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
}

// Evaluate runs all checkers concurrently and collects their results.
func (h *Handler) Evaluate(ctx context.Context) Report {
	var (
		mu  sync.Mutex
		rep = Report{Ready: true, Checks: make(map[string]CheckResult, len(h.checkers))}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, checkTimeout)
			defer cancel()
			res := CheckResult{OK: true}
			if err := c.Check(cctx); err != nil {
				res = CheckResult{Detail: err.Error()}
			}
			mu.Lock()
			rep.Checks[c.Name] = res
			rep.Ready = rep.Ready && res.OK
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// Healthz reports liveness and process uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz answers 200 with the [Report] when every checker passes and 503
// otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Evaluate(r.Context())
	status := http.StatusOK
	if !rep.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds both endpoints to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("health: encode response", "err", err)
	}
}
