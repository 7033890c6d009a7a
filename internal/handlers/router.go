package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appMiddleware "github.com/sensus/peek/internal/middleware"
	"github.com/sensus/peek/internal/services"
)

// Deps are the services and settings the router is built from. Auth may be nil when
// AuthEnabled is false; the /auth routes are then not mounted.
type Deps struct {
	Profiles *services.ProfileService
	Push     *services.PushService
	Auth     *services.AuthService

	AuthEnabled     bool
	AuthRateLimit   int
	MaxUploadSizeMB int64
	RequestTimeout  time.Duration
}

// NewRouter builds the HTTP surface. With AuthEnabled every per-user route requires a
// bearer token issued for the {id} it addresses.
func NewRouter(d Deps) http.Handler {
	profileHandler := NewProfileHandler(d.Profiles, d.RequestTimeout)
	screenHandler := NewScreenHandler(d.Profiles, d.MaxUploadSizeMB, d.RequestTimeout)
	pushHandler := NewPushHandler(d.Push, d.Profiles, d.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger)
	r.Use(appMiddleware.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", AdminKeyHeader},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/push/vapid_public_key", pushHandler.VAPIDPublicKey)

	if d.AuthEnabled && d.Auth != nil {
		authHandler := NewAuthHandler(d.Auth, d.RequestTimeout)
		limit := d.AuthRateLimit
		if limit <= 0 {
			limit = 10
		}
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(limit, time.Minute))
			r.Post("/create_user", authHandler.CreateUser)
			r.Post("/login", authHandler.Login)
			r.With(appMiddleware.BearerAuth(d.Auth)).Post("/refresh", authHandler.Refresh)
		})
	}

	// Per-user routes
	r.Group(func(r chi.Router) {
		self := func(next http.Handler) http.Handler { return next }
		if d.AuthEnabled && d.Auth != nil {
			r.Use(appMiddleware.BearerAuth(d.Auth))
			self = appMiddleware.RequireSelf("id")
		}

		r.Route("/user/{id}", func(r chi.Router) {
			r.Use(self)
			r.Get("/", profileHandler.GetUser)
			r.Delete("/", profileHandler.DeleteUser)
		})

		r.Route("/data_peek/{id}", func(r chi.Router) {
			r.Use(self)
			r.Get("/", profileHandler.GetData)
			r.Post("/", profileHandler.UpdateData)
			r.Post("/clear", profileHandler.ClearData)
		})

		r.Route("/note_peek/{id}", func(r chi.Router) {
			r.Use(self)
			r.Get("/", profileHandler.GetNote)
			r.Post("/", profileHandler.UpdateNote)
			r.Post("/clear", profileHandler.ClearNote)
		})

		r.Route("/screen_peek/{id}", func(r chi.Router) {
			r.Use(self)
			r.Get("/", screenHandler.Get)
			r.Post("/", screenHandler.Update)
			r.Post("/upload", screenHandler.Upload)
			r.Get("/screenshot", screenHandler.Screenshot)
			r.Post("/clear", screenHandler.Clear)
		})

		r.Route("/commands/{id}", func(r chi.Router) {
			r.Use(self)
			r.Get("/", profileHandler.GetCommand)
			r.Post("/", profileHandler.UpdateCommand)
			r.Post("/clear", profileHandler.ClearCommand)
		})

		r.With(self).Post("/clear_all/{id}", profileHandler.ClearAll)
		r.With(self).Post("/push/subscribe/{id}", pushHandler.Subscribe)
	})

	return r
}
