package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/notify"
	"github.com/commercebridge/commercebridge/internal/session"
)

var errNoNotifier = errors.New("notifier not configured")

// base carries the collaborators and settings shared by every flow.
type base struct {
	deps       Dependencies
	cfg        Opts
	bannerMime string
}

// sendNotification queues a best-effort notification and logs a failure.
func (b *base) sendNotification(ctx context.Context, req models.CreateNotificationRequest) notify.Result {
	if b.deps.Notifier == nil {
		return notify.Result{Err: errNoNotifier}
	}
	res := b.deps.Notifier.Create(ctx, req)
	if !res.OK() {
		slog.Warn("Flow.sendNotification: notification not queued", "phone", req.PhoneNumber, "title", req.Title, "error", res.Err)
	}
	return res
}

// supportTurn answers one question in a support state. "back" returns to backState.
func (b *base) supportTurn(ctx context.Context, msg models.InboundMessage, sess *session.Session, backState session.State, backMenu string) Reply {
	question := strings.TrimSpace(msg.Body)
	if isExactly(question, "back", "menu") {
		sess.CurrentState = backState
		return TextReply(backMenu)
	}
	if question == "" {
		return TextReply(italic(`Please type your question, or "back" to return to the main menu.`))
	}
	if b.deps.Support == nil {
		return TextReply(msgSupportError)
	}

	aiCtx, cancel := context.WithTimeout(ctx, b.cfg.AITimeout)
	defer cancel()

	if b.deps.Support.ShouldEscalate(aiCtx, question, sess.UserType) {
		slog.Info("Flow.supportTurn: escalating to human support", "phone", sess.PhoneNumber, "userType", sess.UserType)
		sess.CurrentState = session.StateEscalatedSupport
		return TextReply(escalationMessage(b.cfg.SupportEmail, b.cfg.SupportPhone))
	}

	answer, err := b.deps.Support.Answer(aiCtx, question, sess.UserType, sess.PhoneNumber)
	if err != nil {
		slog.Error("Flow.supportTurn: support answer failed", "phone", sess.PhoneNumber, "error", err)
		return TextReply(msgSupportError)
	}
	return TextReply(wrapAIAnswer(answer))
}

// escalatedTurn records a message sent while a human agent owns the conversation.
func (b *base) escalatedTurn(ctx context.Context, msg models.InboundMessage, sess *session.Session, backState session.State, backMenu string) Reply {
	if isExactly(msg.Body, "back", "menu") {
		sess.CurrentState = backState
		return TextReply(backMenu)
	}
	text := strings.TrimSpace(msg.Body)
	if text == "" && msg.HasMedia {
		text = "[" + string(msg.Type) + "]"
	}
	b.sendNotification(ctx, models.CreateNotificationRequest{
		PhoneNumber: sess.PhoneNumber,
		UserType:    sess.UserType,
		Title:       "Support Request Received",
		Message:     fmt.Sprintf("We received your message: %q. A member of our team will reply here shortly.", text),
		Type:        models.NotificationInfo,
		Category:    models.CategorySupport,
	})
	return TextReply(msgEscalatedAck)
}
