// Package vision is the client for the product image server, which embeds product photos,
// rejects duplicates and stores the listing.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

const (
	// DefaultBaseURL is the image server address when none is configured.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds one upload including all images.
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrServer is returned when the image server answers with a non-2xx status.
	ErrServer = errors.New("vision server error")
	// ErrNoImages is returned when AddProduct is called without images.
	ErrNoImages = errors.New("no product images")
)

// Opts holds configuration options for the vision client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the vision client.
type Option func(*Opts)

// WithBaseURL sets the image server address.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client uploads products to the image server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a vision client.
func NewClient(opts ...Option) *Client {
	cfg := Opts{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: cfg.HTTPClient}
}

// AddProduct posts the images and details as one multipart form to /add_product.
func (c *Client) AddProduct(ctx context.Context, images [][]byte, details models.ProductDetails, sellerID string) (models.ProductUploadResult, error) {
	if len(images) == 0 {
		return models.ProductUploadResult{}, ErrNoImages
	}
	body, contentType, err := encodeForm(images, details, sellerID)
	if err != nil {
		return models.ProductUploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/add_product", body)
	if err != nil {
		return models.ProductUploadResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.ProductUploadResult{}, fmt.Errorf("add product request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.ProductUploadResult{}, fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res models.ProductUploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return models.ProductUploadResult{}, fmt.Errorf("decode add product response: %w", err)
	}
	slog.Info("vision.AddProduct: upload complete", "seller", sellerID, "product", details.Name,
		"images", len(images), "added", res.Added, "duplicates", res.Duplicates, "duration", time.Since(start))
	return res, nil
}

func encodeForm(images [][]byte, details models.ProductDetails, sellerID string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename="image_%d"`, i+1))
		h.Set("Content-Type", http.DetectContentType(img))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}
	fields := [][2]string{
		{"name", details.Name},
		{"price", strconv.FormatFloat(details.Price, 'f', -1, 64)},
		{"description", details.Description},
		{"seller", sellerID},
	}
	if details.Category != "" {
		fields = append(fields, [2]string{"category", details.Category})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrServer, resp.StatusCode)
	}
	return nil
}
