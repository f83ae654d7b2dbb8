package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/atomic"

	"quillnote.app/cloud/internal/email"
	"quillnote.app/cloud/internal/license"
	"quillnote.app/cloud/internal/ratelimit"
	"quillnote.app/cloud/storage"
)

var validate = validator.New()

// CustomerResolver maps a payment provider customer id to the email it
// belongs to. Ids we never saw at checkout resolve to storage.ErrNotFound
// and the corresponding webhook events are no-ops.
type CustomerResolver interface {
	EmailForCustomer(ctx context.Context, stripeCustomerID string) (string, error)
}

type storageResolver struct {
	store storage.Storage
}

func (r storageResolver) EmailForCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	return r.store.FindEmailByStripeCustomer(ctx, stripeCustomerID)
}

type Options struct {
	AllowedOrigins []string
	WebhookSecret  string
	AdminReset     bool
	Version        string
	Limiter        ratelimit.RateLimit
}

type Server struct {
	Router     chi.Router
	Storage    storage.Storage
	Reconciler *license.Reconciler
	Ready      *atomic.Bool
	Version    string

	// Injectable collaborators. Tests swap these for fakes; production
	// wiring keeps the defaults.
	VerifyWebhook func(payload []byte, sigHeader string) (stripe.Event, error)
	Resolver      CustomerResolver
	SendEmail     func(to, subject, body string) error
}

func NewServer(store storage.Storage, ready *atomic.Bool, opts Options) *Server {
	s := &Server{
		Storage:    store,
		Reconciler: license.NewReconciler(store),
		Ready:      ready,
		Version:    opts.Version,
		Resolver:   storageResolver{store: store},
		SendEmail:  email.Send,
	}

	s.VerifyWebhook = func(payload []byte, sigHeader string) (stripe.Event, error) {
		return webhook.ConstructEvent(payload, sigHeader, opts.WebhookSecret)
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(30, 10*time.Minute)
	}
	limited := ratelimit.Middleware(limiter)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Stripe-Signature"},
		MaxAge:         300,
	}))

	r.Get("/health", s.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/request-license", s.RequestLicense)
		r.Post("/verify-license", s.VerifyLicense)
		r.With(limited).Post("/activate-license", s.ActivateLicense)

		r.Post("/sync/upload", s.UploadData)
		r.Get("/sync/download/{licenseKey}", s.DownloadData)

		r.Post("/webhooks/stripe", s.Stripe)

		if opts.AdminReset {
			r.Delete("/admin/license", s.DeleteLicense)
		}
	})

	s.Router = r
	return s
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.Ready.Load() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   s.Version,
		Ready:     s.Ready.Load(),
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// storeErrorResponse keeps outages and bugs apart: a store outage is a 503
// the caller may retry against, everything else is an opaque 500.
func storeErrorResponse(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrUnavailable) {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Store unavailable")
		return
	}

	sentry.CaptureException(err)
	writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
}
