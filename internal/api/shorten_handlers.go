package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/shortener"
)

// shortenResult is returned by POST /api/shorten.
type shortenResult struct {
	Code      string    `json:"code"`
	ShortURL  string    `json:"shortUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) shortenHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ShortenRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.shortenHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}
	u, err := s.shortener.Create(r.Context(), req.URL, "", createdBy, time.Duration(req.ExpiryMinutes)*time.Minute)
	if err != nil {
		if errors.Is(err, shortener.ErrInvalidURL) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.shortenHandler: create failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create short URL"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(shortenResult{
		Code:      u.Code,
		ShortURL:  s.shortener.Link(u.Code),
		ExpiresAt: u.ExpiresAt,
	}))
}

// redirectShortHandler sends the user to the account creation form, carrying their
// WhatsApp number, or to the expired-link page.
func (s *Server) redirectShortHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	u, err := s.shortener.Resolve(r.Context(), code)
	target := s.frontendURL + "/create-account?expired=1"
	switch {
	case err == nil:
		q := url.Values{}
		q.Set("wa", u.Phone)
		q.Set("code", u.Code)
		target = s.frontendURL + "/create-account?" + q.Encode()
	case errors.Is(err, shortener.ErrNotFound), errors.Is(err, shortener.ErrExpired):
		slog.Info("Server.redirectShortHandler: link unusable", "code", code, "error", err)
	default:
		slog.Error("Server.redirectShortHandler: resolve failed", "code", code, "error", err)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) validateShortHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	u, err := s.shortener.Resolve(r.Context(), code)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
			"valid":     true,
			"phone":     u.Phone,
			"expiresAt": u.ExpiresAt,
		}))
	case errors.Is(err, shortener.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("not_found"))
	case errors.Is(err, shortener.ErrExpired):
		writeJSONResponse(w, http.StatusGone, models.Error("expired"))
	default:
		slog.Error("Server.validateShortHandler: resolve failed", "code", code, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to validate code"))
	}
}
