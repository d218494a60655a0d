package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

const (
	intentPickCustomer  Intent = "pick_customer"
	intentPickSeller    Intent = "pick_seller"
	intentFAQ           Intent = "faq"
	intentContact       Intent = "contact_support"
	intentCreateAccount Intent = "create_account"
	intentFeature       Intent = "feature"
)

var onboardingRules = NewClassifier(
	Rule{Intent: intentPickCustomer, Tokens: []string{"1"}, Phrases: []string{"customer"}},
	Rule{Intent: intentPickSeller, Tokens: []string{"2"}, Phrases: []string{"seller"}},
	Rule{Intent: intentFAQ, Tokens: []string{"3"}, Phrases: []string{"faq"}},
	Rule{Intent: intentContact, Tokens: []string{"4"}, Phrases: []string{"support"}},
	Rule{Intent: intentCreateAccount, Phrases: []string{"create account", "signup", "sign up", "register"}},
	Rule{Intent: intentFeature, Phrases: []string{
		"browse", "product", "cart", "order", "add", "upload", "inventory", "manage", "sales", "report", "help",
	}},
)

// OnboardingFlow handles users who have no account yet.
type OnboardingFlow struct {
	*base
	region *region
}

func newOnboardingFlow(b *base) *OnboardingFlow {
	f := &OnboardingFlow{base: b}
	f.region = &region{
		name:     "onboarding",
		main:     session.StateOnboarding,
		mainMenu: onboardingWelcome,
		handlers: map[session.State]stateHandler{
			session.StateOnboarding:              f.handleMenu,
			session.StateAwaitingAccountCreation: f.handleMenu,
			session.StateSupportMode:             f.handleSupport,
			session.StateEscalatedSupport:        f.handleEscalated,
		},
	}
	return f
}

// Handle processes one message for a session that still needs an account. Any state
// outside the onboarding region is forced to onboarding first.
func (f *OnboardingFlow) Handle(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	if _, ok := f.region.handlers[sess.CurrentState]; !ok {
		sess.CurrentState = session.StateOnboarding
	}
	return f.region.dispatch(ctx, msg, sess)
}

func (f *OnboardingFlow) handleMenu(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	switch onboardingRules.Classify(msg.Body) {
	case intentPickCustomer:
		sess.UserType = models.UserTypeCustomer
		sess.CurrentState = session.StateAwaitingAccountCreation
		return TextReply(msgPickedCustomer), nil
	case intentPickSeller:
		sess.UserType = models.UserTypeSeller
		sess.CurrentState = session.StateAwaitingAccountCreation
		return TextReply(msgPickedSeller), nil
	case intentFAQ:
		return TextReply(msgFAQ), nil
	case intentContact:
		sess.CurrentState = session.StateSupportMode
		return TextReply(supportIntro("🛟 Contact Support")), nil
	case intentCreateAccount:
		return TextReply(registrationLink(f.registrationURL(ctx, sess.PhoneNumber))), nil
	case intentFeature:
		return TextReply(msgNeedAccount), nil
	}
	return f.sendWelcome(ctx, sess), nil
}

func (f *OnboardingFlow) handleSupport(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.supportTurn(ctx, msg, sess, session.StateOnboarding, onboardingWelcome), nil
}

func (f *OnboardingFlow) handleEscalated(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.escalatedTurn(ctx, msg, sess, session.StateOnboarding, onboardingWelcome), nil
}

// sendWelcome delivers the banner with the welcome as caption directly through the transport.
func (f *OnboardingFlow) sendWelcome(ctx context.Context, sess *session.Session) Reply {
	if f.deps.Transport == nil {
		return TextReply(onboardingWelcome)
	}
	if len(f.cfg.Banner) > 0 {
		if err := f.deps.Transport.SendImage(ctx, sess.PhoneNumber, f.cfg.Banner, f.bannerMime, onboardingWelcome); err != nil {
			slog.Warn("OnboardingFlow.sendWelcome: banner send failed, replying with text", "phone", sess.PhoneNumber, "error", err)
			return TextReply(onboardingWelcome)
		}
		return AlreadySent()
	}
	if err := f.deps.Transport.SendMessage(ctx, sess.PhoneNumber, onboardingWelcome); err != nil {
		slog.Warn("OnboardingFlow.sendWelcome: welcome send failed, replying with text", "phone", sess.PhoneNumber, "error", err)
		return TextReply(onboardingWelcome)
	}
	return AlreadySent()
}

// registrationURL builds the phone-bearing sign-up link, shortened when possible.
func (f *OnboardingFlow) registrationURL(ctx context.Context, phone string) string {
	long := fmt.Sprintf("%s/create-account?wa=%s", strings.TrimRight(f.cfg.FrontendURL, "/"), url.QueryEscape(phone))
	if f.deps.Shortener == nil {
		return long
	}
	shortCtx, cancel := context.WithTimeout(ctx, f.cfg.ShortenerTimeout)
	defer cancel()
	short, err := f.deps.Shortener.Shorten(shortCtx, long, phone)
	if err != nil || short == "" {
		slog.Warn("OnboardingFlow.registrationURL: shortener failed, using long URL", "phone", phone, "error", err)
		return long
	}
	return short
}
