// Package flow routes inbound WhatsApp messages through the onboarding, customer and
// seller conversations.
//
// The Router picks a region from the session flags, and each region looks up a handler
// for the session's current state. Handlers mutate the session they are given and return
// a Reply; the caller persists the session and delivers the reply.
package flow

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

// Defaults for Router options.
const (
	DefaultFrontendURL        = "http://localhost:5173"
	DefaultPaymentBaseURL     = "http://localhost:3001"
	DefaultSupportEmail       = "support@commercebridge.com"
	DefaultSupportPhone       = "+234-XXX-XXX-XXXX"
	DefaultAITimeout          = 30 * time.Second
	DefaultVisionTimeout      = 60 * time.Second
	DefaultShortenerTimeout   = 5 * time.Second
	DefaultPersistenceTimeout = 10 * time.Second
	orderHistoryLimit         = 10
)

// Opts holds configuration for the Router.
type Opts struct {
	FrontendURL        string
	PaymentBaseURL     string
	SupportEmail       string
	SupportPhone       string
	BannerPath         string
	Banner             []byte
	AITimeout          time.Duration
	VisionTimeout      time.Duration
	ShortenerTimeout   time.Duration
	PersistenceTimeout time.Duration
}

// Option defines a configuration option for the Router.
type Option func(*Opts)

// WithFrontendURL sets the base URL of the account creation form.
func WithFrontendURL(u string) Option {
	return func(o *Opts) { o.FrontendURL = u }
}

// WithPaymentBaseURL sets the public base URL that serves payment pages.
func WithPaymentBaseURL(u string) Option {
	return func(o *Opts) { o.PaymentBaseURL = u }
}

// WithSupportContact sets the human support channels listed on escalation.
func WithSupportContact(email, phone string) Option {
	return func(o *Opts) {
		if email != "" {
			o.SupportEmail = email
		}
		if phone != "" {
			o.SupportPhone = phone
		}
	}
}

// WithBannerPath sets the image sent with the onboarding welcome.
func WithBannerPath(path string) Option {
	return func(o *Opts) { o.BannerPath = path }
}

// WithBanner sets the onboarding image bytes directly.
func WithBanner(data []byte) Option {
	return func(o *Opts) { o.Banner = data }
}

// WithAITimeout bounds support and product parsing calls.
func WithAITimeout(d time.Duration) Option {
	return func(o *Opts) { o.AITimeout = d }
}

// WithVisionTimeout bounds product uploads to the vision service.
func WithVisionTimeout(d time.Duration) Option {
	return func(o *Opts) { o.VisionTimeout = d }
}

// WithShortenerTimeout bounds registration link shortening.
func WithShortenerTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShortenerTimeout = d }
}

// WithPersistenceTimeout bounds order reads and writes.
func WithPersistenceTimeout(d time.Duration) Option {
	return func(o *Opts) { o.PersistenceTimeout = d }
}

// Router dispatches one inbound message to the region that owns the session.
type Router struct {
	onboarding *OnboardingFlow
	customer   *CustomerFlow
	seller     *SellerFlow
}

// NewRouter builds the three flows over deps.
func NewRouter(deps Dependencies, opts ...Option) *Router {
	cfg := Opts{
		FrontendURL:        DefaultFrontendURL,
		PaymentBaseURL:     DefaultPaymentBaseURL,
		SupportEmail:       DefaultSupportEmail,
		SupportPhone:       DefaultSupportPhone,
		AITimeout:          DefaultAITimeout,
		VisionTimeout:      DefaultVisionTimeout,
		ShortenerTimeout:   DefaultShortenerTimeout,
		PersistenceTimeout: DefaultPersistenceTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Banner) == 0 && cfg.BannerPath != "" {
		data, err := os.ReadFile(cfg.BannerPath)
		if err != nil {
			slog.Warn("Router.NewRouter: banner unreadable, welcome will be sent as text", "path", cfg.BannerPath, "error", err)
		} else {
			cfg.Banner = data
		}
	}

	b := &base{deps: deps, cfg: cfg}
	if len(cfg.Banner) > 0 {
		b.bannerMime = http.DetectContentType(cfg.Banner)
	}
	return &Router{
		onboarding: newOnboardingFlow(b),
		customer:   newCustomerFlow(b),
		seller:     newSellerFlow(b),
	}
}

// ProcessMessage runs one conversation turn. It never fails: handler errors and panics
// become a fixed error reply and are logged.
func (r *Router) ProcessMessage(ctx context.Context, msg models.InboundMessage, sess *session.Session) (reply Reply) {
	sess.PhoneNumber = session.NormalizePhone(sess.PhoneNumber)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Router.ProcessMessage: recovered from panic", "phone", sess.PhoneNumber, "state", sess.CurrentState, "panic", p)
			reply = TextReply(msgError)
		}
	}()

	slog.Debug("Router.ProcessMessage: dispatching", "phone", sess.PhoneNumber, "state", sess.CurrentState,
		"userType", sess.UserType, "needsAccount", sess.NeedsAccount, "type", msg.Type)

	var err error
	switch {
	case sess.NeedsAccount:
		reply, err = r.onboarding.Handle(ctx, msg, sess)
	case sess.UserType == models.UserTypeCustomer:
		reply, err = r.customer.Handle(ctx, msg, sess)
	case sess.UserType == models.UserTypeSeller:
		reply, err = r.seller.Handle(ctx, msg, sess)
	default:
		// Registered account of unknown type, only reachable through inconsistent external state.
		slog.Warn("Router.ProcessMessage: registered session without a user type", "phone", sess.PhoneNumber)
		return TextReply(onboardingWelcome)
	}
	if err != nil {
		slog.Error("Router.ProcessMessage: flow failed", "phone", sess.PhoneNumber, "state", sess.CurrentState, "error", err)
		return TextReply(msgError)
	}
	return reply
}

// stateHandler handles one message for one state.
type stateHandler func(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error)

// region is a set of state handlers with a main state to fall back to.
type region struct {
	name     string
	main     session.State
	mainMenu string
	handlers map[session.State]stateHandler
}

// dispatch runs the handler for the current state, resetting unknown states to the main menu.
func (rg *region) dispatch(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	h, ok := rg.handlers[sess.CurrentState]
	if !ok {
		slog.Debug("Flow.dispatch: unrecognized state, resetting to main menu", "region", rg.name, "phone", sess.PhoneNumber, "state", sess.CurrentState)
		sess.CurrentState = rg.main
		return TextReply(rg.mainMenu), nil
	}
	return h(ctx, msg, sess)
}
