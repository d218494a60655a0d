package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

// healthProbeTimeout bounds the downstream checks made by /health.
const healthProbeTimeout = 3 * time.Second

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"api": "ok"}
	if s.vision != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := s.vision.Health(ctx); err != nil {
			slog.Warn("Server.healthHandler: vision service unhealthy", "error", err)
			status["vision"] = "unavailable"
		} else {
			status["vision"] = "ok"
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

// createUserHandler upserts an account created through the registration form, then
// rebuilds the user's chat session so the next message lands in the right main menu.
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createUserHandler: processing account request", "method", r.Method, "path", r.URL.Path)
	var req models.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.createUserHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserType == "" {
		req.UserType = models.UserTypeCustomer
	}
	if err := s.validate.Struct(req); err != nil {
		slog.Warn("Server.createUserHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}
	if req.UserType == models.UserTypeSeller && len(req.StoreCategories) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("validation failed: storeCategories: required"))
		return
	}

	phone := session.NormalizePhone(req.PhoneNumber)
	account, err := s.st.UpsertAccount(r.Context(), models.Account{
		PhoneNumber:      phone,
		Name:             req.Name,
		Email:            req.Email,
		UserType:         req.UserType,
		StoreName:        req.StoreName,
		StoreDescription: req.StoreDescription,
		StoreAddress:     req.StoreAddress,
		StoreCategories:  req.StoreCategories,
	})
	if err != nil {
		slog.Error("Server.createUserHandler: upsert failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save account"))
		return
	}

	sess := s.sessions.RefreshSession(r.Context(), phone)
	slog.Info("Server.createUserHandler: account saved", "phone", phone, "userType", account.UserType, "state", sess.CurrentState)

	if res := s.notifier.Create(r.Context(), welcomeNotification(account)); !res.OK() {
		slog.Warn("Server.createUserHandler: welcome notification not queued", "phone", phone, "error", res.Err)
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Account saved", account))
}

func welcomeNotification(a models.Account) models.CreateNotificationRequest {
	msg := fmt.Sprintf("Hi %s, your customer account is ready. Reply *menu* to browse products, view your cart and track orders.", a.Name)
	if a.UserType == models.UserTypeSeller {
		msg = fmt.Sprintf("Hi %s, %s is now open on CommerceBridge. Reply *menu* to upload products, manage orders and view sales.", a.Name, a.StoreName)
	}
	return models.CreateNotificationRequest{
		PhoneNumber: a.PhoneNumber,
		UserType:    a.UserType,
		Title:       "Welcome to CommerceBridge!",
		Message:     msg,
		Type:        models.NotificationSuccess,
		Category:    models.CategorySystem,
	}
}

func (s *Server) getUserHandler(w http.ResponseWriter, r *http.Request) {
	phone := session.NormalizePhone(r.PathValue("phone"))
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyPhone.Error()))
		return
	}
	account, err := s.st.FindAccountByPhone(r.Context(), phone)
	if err != nil {
		slog.Error("Server.getUserHandler: lookup failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch account"))
		return
	}
	if account == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Account not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(account))
}

func (s *Server) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(models.StoreCategories))
}

func (s *Server) createNotificationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.createNotificationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}
	req.PhoneNumber = session.NormalizePhone(req.PhoneNumber)
	res := s.notifier.Create(r.Context(), req)
	if !res.OK() {
		if errors.Is(res.Err, models.ErrInvalidNotification) || errors.Is(res.Err, models.ErrEmptyRecipient) ||
			errors.Is(res.Err, models.ErrEmptyTitle) || errors.Is(res.Err, models.ErrEmptyMessage) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(res.Err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to queue notification"))
		return
	}
	writeJSONResponse(w, http.StatusAccepted, models.Queued("Notification queued", map[string]string{"id": res.ID}))
}

func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	phone := session.NormalizePhone(r.URL.Query().Get("phone"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.notifier.List(r.Context(), phone, limit)
	if errors.Is(err, models.ErrEmptyRecipient) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required query parameter: phone"))
		return
	}
	if err != nil {
		slog.Error("Server.listNotificationsHandler: list failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch notifications"))
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

func (s *Server) unreadCountHandler(w http.ResponseWriter, r *http.Request) {
	phone := session.NormalizePhone(r.URL.Query().Get("phone"))
	count, err := s.notifier.UnreadCount(r.Context(), phone)
	if errors.Is(err, models.ErrEmptyRecipient) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required query parameter: phone"))
		return
	}
	if err != nil {
		slog.Error("Server.unreadCountHandler: count failed", "phone", phone, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to count notifications"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"count": count}))
}

func (s *Server) markReadHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.notifier.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Notification not found"))
			return
		}
		slog.Error("Server.markReadHandler: update failed", "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update notification"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Notification marked as read", nil))
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	active, err := s.sessions.ActiveSessions(r.Context())
	if err != nil {
		slog.Error("Server.sessionsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	count, err := s.sessions.Count(r.Context())
	if err != nil {
		slog.Error("Server.sessionsHandler: count failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to count sessions"))
		return
	}
	listing := make([]sessionListing, 0, len(active))
	for _, sess := range active {
		listing = append(listing, newSessionListing(sess))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"count":    count,
		"sessions": listing,
	}))
}

// sessionListing is a session without its product draft. Draft images are raw base64
// photos, so the listing carries only how many there are.
type sessionListing struct {
	session.Session
	DraftImages int `json:"draftImages,omitempty"`
}

func newSessionListing(sess *session.Session) sessionListing {
	l := sessionListing{Session: *sess}
	if sess.ProductDraft != nil {
		l.DraftImages = len(sess.ProductDraft.Images)
	}
	l.ProductDraft = nil
	return l
}

func (s *Server) refreshSessionHandler(w http.ResponseWriter, r *http.Request) {
	phone := session.NormalizePhone(r.PathValue("phone"))
	if phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyPhone.Error()))
		return
	}
	sess := s.sessions.RefreshSession(r.Context(), phone)
	slog.Info("Server.refreshSessionHandler: session refreshed", "phone", phone, "state", sess.CurrentState)
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}
