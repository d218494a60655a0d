package flow

import (
	"context"
	"errors"
	"sync"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/notify"
)

type sentImage struct {
	to, mime, caption string
	data              []byte
}

type mockTransport struct {
	mu       sync.Mutex
	messages []string
	images   []sentImage
	err      error
}

func (m *mockTransport) SendMessage(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, body)
	return nil
}

func (m *mockTransport) SendImage(_ context.Context, to string, data []byte, mime, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.images = append(m.images, sentImage{to: to, mime: mime, caption: caption, data: data})
	return nil
}

type mockPersistence struct {
	orders    []models.Order
	createErr error
	findErr   error
}

func (m *mockPersistence) FindAccountByPhone(_ context.Context, _ string) (*models.Account, error) {
	return nil, nil
}

func (m *mockPersistence) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	if m.createErr != nil {
		return models.Order{}, m.createErr
	}
	m.orders = append(m.orders, o)
	return o, nil
}

func (m *mockPersistence) FindOrdersByPhone(_ context.Context, phone string, limit int) ([]models.Order, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []models.Order
	for _, o := range m.orders {
		if o.PhoneNumber == phone && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

type mockNotifier struct {
	requests []models.CreateNotificationRequest
	err      error
}

func (m *mockNotifier) Create(_ context.Context, req models.CreateNotificationRequest) notify.Result {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return notify.Result{Err: m.err}
	}
	return notify.Result{ID: "ntf_test"}
}

type mockSupport struct {
	escalate  bool
	answer    string
	answerErr error
	details   models.ProductDetails
	parseErr  error
	panicMsg  string
	questions []string
}

func (m *mockSupport) ShouldEscalate(_ context.Context, question string, _ models.UserType) bool {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.questions = append(m.questions, question)
	return m.escalate
}

func (m *mockSupport) Answer(_ context.Context, _ string, _ models.UserType, _ string) (string, error) {
	return m.answer, m.answerErr
}

func (m *mockSupport) ParseProduct(_ context.Context, _ string) (models.ProductDetails, error) {
	return m.details, m.parseErr
}

type mockVision struct {
	images   [][]byte
	details  models.ProductDetails
	seller   string
	result   models.ProductUploadResult
	err      error
	uploaded int
}

func (m *mockVision) AddProduct(_ context.Context, images [][]byte, details models.ProductDetails, sellerID string) (models.ProductUploadResult, error) {
	if m.err != nil {
		return models.ProductUploadResult{}, m.err
	}
	m.uploaded++
	m.images, m.details, m.seller = images, details, sellerID
	return m.result, nil
}

type mockShortener struct {
	short string
	err   error
	long  string
}

func (m *mockShortener) Shorten(_ context.Context, longURL, _ string) (string, error) {
	m.long = longURL
	return m.short, m.err
}

var errBoom = errors.New("boom")

type testDeps struct {
	transport   *mockTransport
	persistence *mockPersistence
	notifier    *mockNotifier
	support     *mockSupport
	vision      *mockVision
	shortener   *mockShortener
}

func newTestRouter(opts ...Option) (*Router, *testDeps) {
	d := &testDeps{
		transport:   &mockTransport{},
		persistence: &mockPersistence{},
		notifier:    &mockNotifier{},
		support:     &mockSupport{answer: "Type *1* to browse."},
		vision:      &mockVision{result: models.ProductUploadResult{Added: 4}},
		shortener:   &mockShortener{short: "http://localhost:3001/s/abc1234"},
	}
	r := NewRouter(Dependencies{
		Transport:   d.transport,
		Persistence: d.persistence,
		Notifier:    d.notifier,
		Support:     d.support,
		Vision:      d.vision,
		Shortener:   d.shortener,
	}, opts...)
	return r, d
}
