package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

func text(body string) models.InboundMessage {
	return models.InboundMessage{From: "2348000000001@c.us", Body: body, Type: models.MessageTypeText}
}

func image(data string) models.InboundMessage {
	return models.InboundMessage{From: "2348000000001@c.us", Type: models.MessageTypeImage, HasMedia: true, MediaType: "image/png", Media: []byte(data)}
}

func newSession(userType models.UserType, needsAccount bool, state session.State) *session.Session {
	return &session.Session{
		UserID:       "user_1_abcdefgh",
		PhoneNumber:  "2348000000001@c.us",
		UserType:     userType,
		CurrentState: state,
		Cart:         []models.CartItem{},
		NeedsAccount: needsAccount,
		IsActive:     true,
	}
}

func TestRouter_NewUserGetsBannerWelcome(t *testing.T) {
	banner := []byte("\x89PNG\r\n\x1a\nbanner")
	r, d := newTestRouter(WithBanner(banner))
	sess := newSession(models.UserTypeUnknown, true, session.StateWelcome)

	reply := r.ProcessMessage(context.Background(), text("hello"), sess)

	if !reply.IsAlreadySent() || reply.ShouldSend() {
		t.Fatalf("reply = %+v, want AlreadySent", reply)
	}
	if len(d.transport.images) != 1 {
		t.Fatalf("images sent = %d, want 1", len(d.transport.images))
	}
	img := d.transport.images[0]
	if img.to != "2348000000001" {
		t.Errorf("banner sent to %q, want normalized phone", img.to)
	}
	if img.caption != onboardingWelcome || img.mime != "image/png" {
		t.Errorf("banner caption/mime = %q/%q", img.caption, img.mime)
	}
	if sess.CurrentState != session.StateOnboarding {
		t.Errorf("state = %q, want onboarding", sess.CurrentState)
	}
	if !sess.NeedsAccount {
		t.Error("needsAccount must stay true until an account exists")
	}
}

func TestRouter_WelcomeWithoutBannerSendsText(t *testing.T) {
	r, d := newTestRouter(WithBannerPath("/nonexistent/banner.jpeg"))
	sess := newSession(models.UserTypeUnknown, true, session.StateWelcome)

	reply := r.ProcessMessage(context.Background(), text("hi"), sess)
	if !reply.IsAlreadySent() {
		t.Fatalf("reply = %+v, want AlreadySent", reply)
	}
	if len(d.transport.messages) != 1 || d.transport.messages[0] != onboardingWelcome {
		t.Errorf("messages = %v, want the welcome text", d.transport.messages)
	}
}

func TestRouter_WelcomeFallsBackToReplyOnTransportError(t *testing.T) {
	r, d := newTestRouter(WithBanner([]byte("img")))
	d.transport.err = errBoom
	reply := r.ProcessMessage(context.Background(), text("hi"), newSession(models.UserTypeUnknown, true, session.StateWelcome))
	if !reply.ShouldSend() || reply.Text() != onboardingWelcome {
		t.Errorf("reply = %+v, want welcome text for the caller to send", reply)
	}
}

func TestRouter_OnboardingPickSeller(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeUnknown, true, session.StateOnboarding)
	sess.PhoneNumber = "2348001112222"

	reply := r.ProcessMessage(context.Background(), text("2"), sess)

	if !strings.Contains(reply.Text(), "seller account") {
		t.Errorf("reply = %q, want seller account-creation prompt", reply.Text())
	}
	if sess.UserType != models.UserTypeSeller {
		t.Errorf("userType = %q, want seller", sess.UserType)
	}
	if sess.CurrentState != session.StateAwaitingAccountCreation {
		t.Errorf("state = %q, want awaiting_account_creation", sess.CurrentState)
	}
}

func TestRouter_OnboardingNeverReachesCustomerFlow(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, true, session.StateCustomerMain)

	reply := r.ProcessMessage(context.Background(), text("browse"), sess)
	if reply.Text() != msgNeedAccount {
		t.Errorf("reply = %q, want the account nudge", reply.Text())
	}
	if sess.CurrentState != session.StateOnboarding {
		t.Errorf("state = %q, want forced to onboarding", sess.CurrentState)
	}
}

func TestRouter_OnboardingMenu(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantText  string
		wantState session.State
	}{
		{"customer", "1", msgPickedCustomer, session.StateAwaitingAccountCreation},
		{"faq", "3", msgFAQ, session.StateOnboarding},
		{"support", "4", supportIntro("🛟 Contact Support"), session.StateSupportMode},
		{"feature nudge", "view my cart", msgNeedAccount, session.StateOnboarding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter()
			sess := newSession(models.UserTypeUnknown, true, session.StateOnboarding)
			reply := r.ProcessMessage(context.Background(), text(tt.body), sess)
			if reply.Text() != tt.wantText {
				t.Errorf("reply = %q, want %q", reply.Text(), tt.wantText)
			}
			if sess.CurrentState != tt.wantState {
				t.Errorf("state = %q, want %q", sess.CurrentState, tt.wantState)
			}
		})
	}
}

func TestRouter_RegistrationLink(t *testing.T) {
	t.Run("shortened", func(t *testing.T) {
		r, d := newTestRouter(WithFrontendURL("https://shop.example/"))
		sess := newSession(models.UserTypeCustomer, true, session.StateAwaitingAccountCreation)
		reply := r.ProcessMessage(context.Background(), text("create account"), sess)
		if !strings.Contains(reply.Text(), "http://localhost:3001/s/abc1234") {
			t.Errorf("reply = %q, want the short link", reply.Text())
		}
		if d.shortener.long != "https://shop.example/create-account?wa=2348000000001" {
			t.Errorf("long URL = %q", d.shortener.long)
		}
	})
	t.Run("shortener failure falls back to long URL", func(t *testing.T) {
		r, d := newTestRouter()
		d.shortener.err = errBoom
		sess := newSession(models.UserTypeCustomer, true, session.StateAwaitingAccountCreation)
		reply := r.ProcessMessage(context.Background(), text("signup"), sess)
		if !strings.Contains(reply.Text(), "http://localhost:5173/create-account?wa=2348000000001") {
			t.Errorf("reply = %q, want the long link", reply.Text())
		}
		if sess.CurrentState != session.StateAwaitingAccountCreation {
			t.Errorf("state changed to %q", sess.CurrentState)
		}
	})
}

func TestRouter_UnknownTypeRegisteredUser(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeUnknown, false, session.StateWelcome)
	reply := r.ProcessMessage(context.Background(), text("1"), sess)
	if reply.Text() != onboardingWelcome {
		t.Errorf("reply = %q, want onboarding welcome", reply.Text())
	}
	if sess.CurrentState != session.StateWelcome || sess.UserType != models.UserTypeUnknown {
		t.Error("session must not be mutated")
	}
}

func TestRouter_StateSelfHealing(t *testing.T) {
	tests := []struct {
		name      string
		userType  models.UserType
		wantMenu  string
		wantState session.State
	}{
		{"customer", models.UserTypeCustomer, customerMenu, session.StateCustomerMain},
		{"seller", models.UserTypeSeller, sellerMenu, session.StateSellerMain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter()
			sess := newSession(tt.userType, false, session.State("not_a_real_state"))
			reply := r.ProcessMessage(context.Background(), text("anything"), sess)
			if reply.Text() != tt.wantMenu {
				t.Errorf("reply = %q, want main menu", reply.Text())
			}
			if sess.CurrentState != tt.wantState {
				t.Errorf("state = %q, want %q", sess.CurrentState, tt.wantState)
			}
		})
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	r, d := newTestRouter()
	d.support.panicMsg = "nil map"
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerSupport)
	reply := r.ProcessMessage(context.Background(), text("where is my parcel"), sess)
	if reply.Text() != msgError {
		t.Errorf("reply = %q, want the generic error message", reply.Text())
	}
}

func TestRouter_EmptyBodyIsNotAnError(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerMain)
	reply := r.ProcessMessage(context.Background(), image("img"), sess)
	if reply.Text() != msgDidNotUnderstand+customerMenu {
		t.Errorf("reply = %q, want menu fallback", reply.Text())
	}
}
