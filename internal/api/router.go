package api

import (
	"net/http"
	"time"

	"github.com/athebyme/catalog-sync/internal/api/handlers"
	"github.com/athebyme/catalog-sync/internal/api/middleware"
	"github.com/athebyme/catalog-sync/internal/domain/services"
	"github.com/athebyme/catalog-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter настраивает маршрутизатор
func SetupRouter(
	syncService services.SyncServiceInterface,
	logger interfaces.LoggerPort,
	corsAllowedOrigins []string,
	jwtSecret string,
) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(corsAllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimiter(1000, time.Minute))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Handle("/metrics", promhttp.Handler())

	feedHandler := handlers.NewFeedHandler(syncService, logger)

	// Публичные фиды: их забирают краулеры маркетплейсов без токенов
	r.Route("/feeds/{destination}", func(r chi.Router) {
		r.Get("/products.csv", feedHandler.ServeCSV)
		r.Get("/products.xml", feedHandler.ServeXML)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(jwtSecret, logger))

		syncHandler := handlers.NewSyncHandler(syncService, logger)

		// Маршруты управления синхронизацией
		r.Route("/sync/{destination}", func(r chi.Router) {
			// Запуск полной синхронизации направления
			r.Post("/trigger", syncHandler.Trigger)

			// Последняя запись журнала фидов
			r.Get("/status", syncHandler.Status)

			// Страница журнала фидов
			r.Get("/jobs", syncHandler.Jobs)
		})
	})

	return r
}
