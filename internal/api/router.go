package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/booking"
	"github.com/hackgods/clinic-scheduling/internal/editor"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/reschedule"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

type RouterConfig struct {
	Store           appointment.Store
	Checker         *availability.Checker
	Bookings        *booking.Service
	Editors         *editor.Service
	Locker          redisclient.Locker
	Notifier        *events.Notifier
	Metrics         *metrics.SchedulingMetrics
	Logger          *logging.Logger
	SlotGranularity time.Duration

	Postgres Pinger        // nil skips the postgres readiness check
	Redis    *redis.Client // nil when the practitioner-day lock is disabled
	Gatherer prometheus.Gatherer

	RateLimitRPS   float64 // zero disables rate limiting
	RateLimitBurst int

	SessionIdleTTL time.Duration // wizards and drags untouched this long are dropped

	Env     string
	Version string
}

// Handler serves the scheduling API. Wizards and drags are kept in memory per process.
type Handler struct {
	cfg      RouterConfig
	logger   *logging.Logger
	validate *validator.Validate
	wizards  *sessions[*booking.Wizard]
	drags    *sessions[*reschedule.Protocol]
}

func newHandler(cfg RouterConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SlotGranularity <= 0 {
		cfg.SlotGranularity = availability.DefaultGranularity
	}
	if cfg.Locker == nil {
		cfg.Locker = redisclient.NewLocalDayLocker()
	}
	h := &Handler{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "api"),
		validate: newValidator(),
	}
	h.wizards = newSessions(cfg.SessionIdleTTL, 0, func(wz *booking.Wizard) {
		h.logger.Info("wizard session expired", "wizard_id", wz.ID().String(), "step", wz.Step().String())
		wz.Close()
	})
	h.drags = newSessions(cfg.SessionIdleTTL, 0, func(p *reschedule.Protocol) {
		if err := p.Abort(); err == nil {
			h.logger.Info("drag session expired")
		}
	})
	return h
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := newHandler(cfg)
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(h.logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// The stream is long-lived and stays outside the rate limiter.
	r.Get("/calendar/stream", h.stream)

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}

		r.Get("/calendar", h.calendar)

		r.Get("/practitioners", h.listPractitioners)
		r.Get("/practitioners/{id}/slots", h.practitionerSlots)
		r.Get("/procedures", h.listProcedures)
		r.Get("/patients", h.searchPatients)

		r.Route("/wizards", func(r chi.Router) {
			r.Post("/", h.startWizard)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getWizard)
				r.Delete("/", h.closeWizard)
				r.Get("/patients", h.wizardPatients)
				r.Post("/patient", h.wizardSelectPatient)
				r.Post("/patient/new", h.wizardCreatePatient)
				r.Post("/block-reason", h.wizardBlockReason)
				r.Post("/practitioner", h.wizardSelectPractitioner)
				r.Post("/procedure", h.wizardSelectProcedure)
				r.Post("/date", h.wizardSetDate)
				r.Get("/slots", h.wizardSlots)
				r.Post("/slot", h.wizardSelectSlot)
				r.Post("/details", h.wizardDetails)
				r.Post("/back", h.wizardBack)
				r.Post("/commit", h.wizardCommit)
				r.Post("/retry-billing", h.wizardRetryBilling)
			})
		})

		r.Route("/drags", func(r chi.Router) {
			r.Post("/", h.pickUp)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getDrag)
				r.Post("/hover", h.hover)
				r.Post("/drop", h.drop)
				r.Delete("/", h.abortDrag)
			})
		})

		r.Route("/appointments/{id}", func(r chi.Router) {
			r.Get("/", h.getAppointment)
			r.Patch("/", h.updateAppointment)
			r.Post("/cancel", h.cancelAppointment)
		})
	})

	return r
}
