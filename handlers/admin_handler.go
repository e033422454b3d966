// handlers/admin_handler.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gewnthar/transit-feeds/services"
)

// Refresher starts refresh runs.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool) ([]services.CityReport, error)
	RefreshNamed(ctx context.Context, name string, force bool) (services.CityReport, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler triggers refresh runs in the background. Runs started by it live as long
// as the base context, not the request.
type AdminHandler struct {
	base      context.Context
	refresher Refresher
	db        Pinger
	wg        sync.WaitGroup
}

// NewAdminHandler runs background refreshes under base, so they stop with the server.
func NewAdminHandler(base context.Context, refresher Refresher, db Pinger) *AdminHandler {
	return &AdminHandler{base: base, refresher: refresher, db: db}
}

// Refresh handles POST /admin/refresh[?force=true][&city=Name].
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid force value '%s'", v))
			return
		}
		force = parsed
	}
	city := r.URL.Query().Get("city")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if city != "" {
			report, err := h.refresher.RefreshNamed(h.base, city, force)
			if err != nil {
				log.Error().Err(err).Str("city", city).Msg("Handler: admin refresh failed")
				return
			}
			log.Info().Str("city", city).Bool("ok", report.OK()).Msg("Handler: admin refresh finished")
			return
		}
		if _, err := h.refresher.RefreshAll(h.base, force); err != nil {
			log.Error().Err(err).Msg("Handler: admin refresh failed")
		}
	}()

	target := "all cities"
	if city != "" {
		target = city
	}
	respondWithMessage(w, http.StatusAccepted, fmt.Sprintf("Refresh of %s started.", target))
}

// Health handles GET /health.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Handler: health check failed")
		respondWithMessage(w, http.StatusServiceUnavailable, "database connection error")
		return
	}
	respondWithMessage(w, http.StatusOK, "ok")
}

// Wait blocks until background refreshes started by Refresh have returned.
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}
