// Package shortener issues and resolves short registration links.
package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/store"
	"github.com/commercebridge/commercebridge/internal/util"
)

const (
	// DefaultExpiry is how long a code stays valid.
	DefaultExpiry = 1440 * time.Minute
	// DefaultPublicBaseURL prefixes every short link.
	DefaultPublicBaseURL = "http://localhost:3001"

	maxCodeAttempts = 5
)

var (
	ErrNotFound   = errors.New("short url not found")
	ErrExpired    = errors.New("short url expired")
	ErrInvalidURL = errors.New("invalid target url")
)

// Opts holds configuration options for the shortener.
type Opts struct {
	PublicBaseURL string
	Expiry        time.Duration
	Now           func() time.Time
	NewCode       func() string
}

// Option defines a configuration option for the shortener.
type Option func(*Opts)

// WithPublicBaseURL sets the host that serves /s/{code}.
func WithPublicBaseURL(u string) Option {
	return func(o *Opts) { o.PublicBaseURL = u }
}

// WithExpiry sets the default lifetime of new codes.
func WithExpiry(d time.Duration) Option {
	return func(o *Opts) { o.Expiry = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// WithCodeGenerator overrides the random code source.
func WithCodeGenerator(gen func() string) Option {
	return func(o *Opts) { o.NewCode = gen }
}

// Service creates short URLs backed by a ShortURLRepo.
type Service struct {
	repo    store.ShortURLRepo
	baseURL string
	expiry  time.Duration
	now     func() time.Time
	newCode func() string
}

// NewService creates a shortener over repo.
func NewService(repo store.ShortURLRepo, opts ...Option) *Service {
	cfg := Opts{
		PublicBaseURL: DefaultPublicBaseURL,
		Expiry:        DefaultExpiry,
		Now:           time.Now,
		NewCode:       util.GenerateShortCode,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		repo:    repo,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		expiry:  cfg.Expiry,
		now:     cfg.Now,
		newCode: cfg.NewCode,
	}
}

// Shorten stores longURL under a fresh code and returns <PublicBaseURL>/s/<code>.
func (s *Service) Shorten(ctx context.Context, longURL, phone string) (string, error) {
	u, err := s.Create(ctx, longURL, phone, "whatsapp", 0)
	if err != nil {
		return "", err
	}
	return s.Link(u.Code), nil
}

// Create stores a short URL. A zero expiry uses the service default.
func (s *Service) Create(ctx context.Context, longURL, phone, createdBy string, expiry time.Duration) (models.ShortURL, error) {
	parsed, err := url.Parse(longURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return models.ShortURL{}, fmt.Errorf("%w: %q", ErrInvalidURL, longURL)
	}
	if expiry <= 0 {
		expiry = s.expiry
	}
	if phone == "" {
		phone = parsed.Query().Get("wa")
	}
	now := s.now().UTC()
	u := models.ShortURL{
		TargetURL: longURL,
		Phone:     phone,
		CreatedBy: createdBy,
		CreatedAt: now,
		ExpiresAt: now.Add(expiry),
	}
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		u.Code = s.newCode()
		err := s.repo.SaveShortURL(ctx, u)
		if err == nil {
			slog.Debug("Shortener.Create: short url created", "code", u.Code, "phone", phone, "expiresAt", u.ExpiresAt)
			return u, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			return models.ShortURL{}, fmt.Errorf("save short url: %w", err)
		}
		slog.Debug("Shortener.Create: code collision, regenerating", "code", u.Code, "attempt", attempt)
	}
	return models.ShortURL{}, fmt.Errorf("save short url: %w after %d attempts", store.ErrDuplicateCode, maxCodeAttempts)
}

// Link renders the public short URL for code.
func (s *Service) Link(code string) string {
	return s.baseURL + "/s/" + code
}

// Resolve returns the stored record, or ErrNotFound / ErrExpired.
func (s *Service) Resolve(ctx context.Context, code string) (*models.ShortURL, error) {
	u, err := s.repo.GetShortURL(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get short url: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	if u.Expired(s.now()) {
		return u, ErrExpired
	}
	return u, nil
}
