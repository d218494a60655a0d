// Package api provides the HTTP surface and the process wiring for CommerceBridge.
//
// Run builds every module from its options, starts the messaging transport, the inbound
// dispatcher, the notification outbox and the session sweeper, and serves the REST API
// (accounts, payments, notifications, short URLs, sessions and the Twilio webhook) until
// the context is cancelled.
package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/commercebridge/commercebridge/internal/flow"
	"github.com/commercebridge/commercebridge/internal/genai"
	"github.com/commercebridge/commercebridge/internal/messaging"
	"github.com/commercebridge/commercebridge/internal/notify"
	"github.com/commercebridge/commercebridge/internal/recovery"
	"github.com/commercebridge/commercebridge/internal/session"
	"github.com/commercebridge/commercebridge/internal/shortener"
	"github.com/commercebridge/commercebridge/internal/store"
	"github.com/commercebridge/commercebridge/internal/twiliowhatsapp"
	"github.com/commercebridge/commercebridge/internal/vision"
	"github.com/commercebridge/commercebridge/internal/whatsapp"
)

// API server configuration constants
const (
	// DefaultServerAddress is the default address for the API server
	DefaultServerAddress = ":3001"
	// DefaultFrontendURL is where account creation links point
	DefaultFrontendURL = "http://localhost:5173"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout protects against slow clients
	DefaultReadHeaderTimeout = 10 * time.Second
	// ProviderWhatsApp selects the whatsmeow transport
	ProviderWhatsApp = "whatsapp"
	// ProviderTwilio selects the Twilio transport
	ProviderTwilio = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	FrontendURL    string
	Provider       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTimeout time.Duration
	Workers        int
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithFrontendURL sets the base URL of the account creation frontend.
func WithFrontendURL(u string) Option {
	return func(o *Opts) { o.FrontendURL = u }
}

// WithProvider selects the messaging transport ("whatsapp" or "twilio").
func WithProvider(p string) Option {
	return func(o *Opts) { o.Provider = p }
}

// WithRedis stores sessions in Redis instead of process memory.
func WithRedis(addr, password string, db int) Option {
	return func(o *Opts) {
		o.RedisAddr = addr
		o.RedisPassword = password
		o.RedisDB = db
	}
}

// WithSessionTimeout sets the session inactivity window.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SessionTimeout = d }
}

// WithWorkers sets the number of concurrent conversation workers.
func WithWorkers(n int) Option {
	return func(o *Opts) { o.Workers = n }
}

// Modules carries the per-package options assembled by the entry point.
type Modules struct {
	WhatsApp  []whatsapp.Option
	Twilio    []twiliowhatsapp.Option
	Store     []store.Option
	GenAI     []genai.Option
	Vision    []vision.Option
	Shortener []shortener.Option
	Flow      []flow.Option
}

// Deps are the collaborators the HTTP handlers need.
type Deps struct {
	Store         store.Store
	Sessions      *session.Store
	Notifier      *notify.Service
	Shortener     *shortener.Service
	Vision        HealthChecker
	TwilioWebhook http.HandlerFunc
}

// HealthChecker is implemented by downstream services probed by /health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server holds all dependencies for the API handlers.
type Server struct {
	st          store.Store
	sessions    *session.Store
	notifier    *notify.Service
	shortener   *shortener.Service
	vision      HealthChecker
	webhook     http.HandlerFunc
	frontendURL string
	validate    *validator.Validate
	pages       *template.Template
	now         func() time.Time
}

// NewServer creates a new API server over deps.
func NewServer(deps Deps, frontendURL string) *Server {
	if frontendURL == "" {
		frontendURL = DefaultFrontendURL
	}
	return &Server{
		st:          deps.Store,
		sessions:    deps.Sessions,
		notifier:    deps.Notifier,
		shortener:   deps.Shortener,
		vision:      deps.Vision,
		webhook:     deps.TwilioWebhook,
		frontendURL: frontendURL,
		validate:    newValidator(),
		pages:       paymentPages,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /api/users", s.createUserHandler)
	mux.HandleFunc("GET /api/users/{phone}", s.getUserHandler)
	mux.HandleFunc("GET /api/categories", s.categoriesHandler)

	mux.HandleFunc("POST /api/shorten", s.shortenHandler)
	mux.HandleFunc("GET /api/shorten/{code}/validate", s.validateShortHandler)
	mux.HandleFunc("GET /s/{code}", s.redirectShortHandler)

	mux.HandleFunc("GET /api/pay/dummy/{orderId}", s.payPageHandler)
	mux.HandleFunc("POST /api/pay/dummy/{orderId}/confirm", s.payConfirmHandler)
	mux.HandleFunc("GET /api/pay/dummy/{orderId}/receipt", s.receiptHandler)

	mux.HandleFunc("POST /api/notifications", s.createNotificationHandler)
	mux.HandleFunc("GET /api/notifications", s.listNotificationsHandler)
	mux.HandleFunc("GET /api/notifications/unread-count", s.unreadCountHandler)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.markReadHandler)

	mux.HandleFunc("GET /api/sessions", s.sessionsHandler)
	mux.HandleFunc("POST /api/sessions/{phone}/refresh", s.refreshSessionHandler)

	if s.webhook != nil {
		mux.HandleFunc("POST /webhooks/twilio", s.webhook)
	}
	return mux
}

// Run initializes all modules and starts the API server. It returns once ctx is cancelled
// and every background loop has stopped.
func Run(ctx context.Context, modules Modules, apiOpts ...Option) error {
	cfg := Opts{Addr: DefaultServerAddress, FrontendURL: DefaultFrontendURL, Provider: ProviderWhatsApp}
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	slog.Debug("API.Run: configuration", "addr", cfg.Addr, "provider", cfg.Provider, "redis", cfg.RedisAddr != "")

	st, err := store.New(modules.Store...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("API.Run: store close failed", "error", err)
		}
	}()

	sessions, err := buildSessions(ctx, st, cfg)
	if err != nil {
		return err
	}

	msgService, webhook, disconnect, err := buildTransport(ctx, cfg.Provider, modules)
	if err != nil {
		return err
	}
	defer disconnect()
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	notifier := notify.NewService(st)
	outbox := store.NewNotificationSender(st, notify.NewSendFunc(msgService), 0)

	var llm genai.ClientInterface
	if client, err := genai.NewClient(modules.GenAI...); err != nil {
		slog.Warn("API.Run: OpenAI not configured, support uses canned answers only", "error", err)
	} else {
		llm = client
	}
	visionClient := vision.NewClient(modules.Vision...)
	shortSvc := shortener.NewService(st, modules.Shortener...)

	router := flow.NewRouter(flow.Dependencies{
		Transport:   msgService,
		Persistence: st,
		Notifier:    notifier,
		Support:     genai.NewSupport(llm),
		Vision:      visionClient,
		Shortener:   shortSvc,
	}, modules.Flow...)

	var dispatcherOpts []messaging.DispatcherOption
	dispatcherOpts = append(dispatcherOpts, messaging.WithDedup(st))
	if cfg.Workers > 0 {
		dispatcherOpts = append(dispatcherOpts, messaging.WithWorkers(cfg.Workers))
	}
	dispatcher := messaging.NewDispatcher(msgService, router, sessions, dispatcherOpts...)

	server := NewServer(Deps{
		Store:         st,
		Sessions:      sessions,
		Notifier:      notifier,
		Shortener:     shortSvc,
		Vision:        visionClient,
		TwilioWebhook: webhook,
	}, cfg.FrontendURL)

	rm := recovery.NewManager()
	rm.Register(recovery.Outbox(outbox))
	rm.Register(recovery.Sessions(sessions))
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Warn("API.Run: startup recovery incomplete", "error", err)
	}

	// Loops stop when the server returns for any reason, not only on ctx cancellation.
	loopCtx, stopLoops := context.WithCancel(ctx)
	loops := newBackground(loopCtx)
	loops.Go("dispatcher", func(ctx context.Context) {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("API.Run: dispatcher stopped", "error", err)
		}
	})
	loops.Go("outbox", outbox.Run)
	loops.Go("sweeper", session.NewSweeper(sessions, 0).Run)
	defer loops.Wait()
	defer stopLoops()

	return serve(ctx, cfg.Addr, server.Handler())
}

func buildSessions(ctx context.Context, st store.Store, cfg Opts) (*session.Store, error) {
	var opts []session.Option
	timeout := session.DefaultInactivityTimeout
	if cfg.SessionTimeout > 0 {
		timeout = cfg.SessionTimeout
		opts = append(opts, session.WithInactivityTimeout(timeout))
	}
	if cfg.RedisAddr != "" {
		client, err := session.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session backend: %w", err)
		}
		opts = append(opts, session.WithBackend(session.NewRedisBackend(client, session.WithRedisTTL(timeout))))
		slog.Info("API.Run: sessions stored in redis", "addr", cfg.RedisAddr)
	}
	return session.NewStore(st, opts...), nil
}

// buildTransport returns the messaging service, the inbound webhook (Twilio only) and a
// function that closes the underlying connection.
func buildTransport(ctx context.Context, provider string, modules Modules) (messaging.Service, http.HandlerFunc, func(), error) {
	switch provider {
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(modules.Twilio...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		slog.Info("API.Run: using Twilio transport")
		return svc, svc.TwilioWebhookHandler, func() {}, nil
	case ProviderWhatsApp, "":
		client, err := whatsapp.NewClient(ctx, modules.WhatsApp...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		slog.Info("API.Run: using WhatsApp transport")
		return messaging.NewWhatsAppService(client), nil, client.Disconnect, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown messaging provider %q", provider)
	}
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: DefaultReadHeaderTimeout}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}
