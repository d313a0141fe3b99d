package router

import (
	"net/http"
	"strings"

	"isawan/internal/handler"
	"isawan/internal/metrics"
	"isawan/internal/middleware"

	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers served by the router.
type Handlers struct {
	Order   *handler.OrderHandler
	Payment *handler.PaymentHandler
	Health  http.Handler
}

// Options configures the cross-cutting middleware.
type Options struct {
	// APIKey enables GET /orders/{id}. The route is not registered when empty.
	APIKey    string
	RateLimit *middleware.RateLimiter
	Metrics   *metrics.Metrics
}

// New creates a new HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	limited := func(next http.HandlerFunc) http.Handler {
		if opts.RateLimit == nil {
			return next
		}
		return opts.RateLimit.Middleware(logger)(next)
	}

	mux.Handle("/health", h.Health)
	mux.Handle("/metrics", opts.Metrics.Handler())

	mux.Handle("/order", limited(h.Order.Place))
	mux.Handle("/verify-payment", limited(h.Payment.VerifyPayment))
	mux.HandleFunc("/webhook", h.Payment.Webhook)

	if opts.APIKey != "" {
		mux.Handle(handler.OrdersPathPrefix, middleware.APIKeyAuth(opts.APIKey, logger)(http.HandlerFunc(h.Order.GetByID)))
	} else {
		logger.Info().Msg("API_KEY not set, order lookup route disabled")
	}

	// Apply middleware in order: Recovery -> Logging -> Metrics -> CORS
	var handler http.Handler = mux
	handler = middleware.CORS(handler)
	handler = middleware.Metrics(opts.Metrics, routeLabel)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)

	return handler
}

// routeLabel collapses request paths into the fixed set of routes.
func routeLabel(r *http.Request) string {
	switch path := r.URL.Path; {
	case path == "/order", path == "/webhook", path == "/verify-payment", path == "/health", path == "/metrics":
		return path
	case strings.HasPrefix(path, handler.OrdersPathPrefix):
		return "/orders/{id}"
	default:
		return "other"
	}
}
