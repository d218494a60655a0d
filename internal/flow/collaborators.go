package flow

import (
	"context"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/notify"
)

// Transport sends messages back to the user.
type Transport interface {
	SendMessage(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error
}

// Persistence is the slice of the store the flows read and write.
type Persistence interface {
	FindAccountByPhone(ctx context.Context, phone string) (*models.Account, error)
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)
	FindOrdersByPhone(ctx context.Context, phone string, limit int) ([]models.Order, error)
}

// Notifier queues best-effort notifications.
type Notifier interface {
	Create(ctx context.Context, req models.CreateNotificationRequest) notify.Result
}

// Support answers help questions and parses free-form product details.
type Support interface {
	ShouldEscalate(ctx context.Context, question string, userType models.UserType) bool
	Answer(ctx context.Context, question string, userType models.UserType, phone string) (string, error)
	ParseProduct(ctx context.Context, text string) (models.ProductDetails, error)
}

// Vision registers product images with the similarity search service.
type Vision interface {
	AddProduct(ctx context.Context, images [][]byte, details models.ProductDetails, sellerID string) (models.ProductUploadResult, error)
}

// Shortener turns long registration links into short ones.
type Shortener interface {
	Shorten(ctx context.Context, longURL, phone string) (string, error)
}

// Dependencies are the collaborators the flows call into. Nil collaborators degrade the
// matching feature instead of failing the turn.
type Dependencies struct {
	Transport   Transport
	Persistence Persistence
	Notifier    Notifier
	Support     Support
	Vision      Vision
	Shortener   Shortener
}
