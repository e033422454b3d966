// handlers/router.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// NewRouter wires the public and admin endpoints.
func NewRouter(transit *TransitHandler, admin *AdminHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/", transit.Hello).Methods(http.MethodGet)
	r.HandleFunc("/mpk/", transit.Cities).Methods(http.MethodGet)
	r.HandleFunc("/routes/{city_name}", transit.Routes).Methods(http.MethodGet)
	r.HandleFunc("/trips/{city_name}", transit.Trips).Methods(http.MethodGet)
	r.HandleFunc("/stops/{city_name}", transit.Stops).Methods(http.MethodGet)
	r.HandleFunc("/stop_times/{city_name}", transit.StopTimes).Methods(http.MethodGet)

	if admin != nil {
		r.HandleFunc("/health", admin.Health).Methods(http.MethodGet)
		r.HandleFunc("/admin/refresh", admin.Refresh).Methods(http.MethodPost)
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("Handler: request served")
	})
}
