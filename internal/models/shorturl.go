package models

import "time"

// ShortURL maps a short code to a registration link.
type ShortURL struct {
	Code      string    `json:"code"`
	TargetURL string    `json:"target_url"`
	Phone     string    `json:"phone,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its expiry at t.
func (s ShortURL) Expired(t time.Time) bool {
	return !s.ExpiresAt.IsZero() && !t.Before(s.ExpiresAt)
}

// ShortenRequest is the payload accepted by POST /api/shorten.
type ShortenRequest struct {
	URL           string `json:"url" validate:"required,url"`
	CreatedBy     string `json:"createdBy,omitempty"`
	ExpiryMinutes int    `json:"expiryMinutes,omitempty" validate:"gte=0,lte=525600"`
}
