// Package session holds per-user conversation state for the WhatsApp bot.
//
// A Session is keyed by normalized phone number. The Store serializes every
// read-modify-write for one phone behind a per-phone mutex, so two messages from the
// same user never interleave, while different users proceed in parallel.
package session

import (
	"errors"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
)

// State identifies which flow handler owns the next inbound message.
type State string

// Onboarding region.
const (
	StateWelcome                 State = "welcome"
	StateOnboarding              State = "onboarding"
	StateAwaitingAccountCreation State = "awaiting_account_creation"
	StateSupportMode             State = "support_mode"
	StateEscalatedSupport        State = "escalated_support"
)

// Customer region.
const (
	StateCustomerMain      State = "customer_main"
	StateBrowsingProducts  State = "browsing_products"
	StateSearchingProducts State = "searching_products"
	StateCartManagement    State = "cart_management"
	StateCheckout          State = "checkout"
	StateCustomerSupport   State = "customer_support"
)

// Seller region.
const (
	StateSellerMain       State = "seller_main"
	StateAddingProduct    State = "adding_product"
	StateManagingProducts State = "managing_products"
	StateOrderManagement  State = "order_management"
	StateSellerSupport    State = "seller_support"
)

// Preferences are per-user display settings.
type Preferences struct {
	Language      string `json:"language"`
	Currency      string `json:"currency"`
	Notifications bool   `json:"notifications"`
}

// DefaultPreferences returns the preferences every new session starts with.
func DefaultPreferences() Preferences {
	return Preferences{Language: "en", Currency: "USD", Notifications: true}
}

// PreferencesPatch updates only the non-nil fields.
type PreferencesPatch struct {
	Language      *string `json:"language,omitempty"`
	Currency      *string `json:"currency,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
}

// Apply merges the patch into p.
func (pp PreferencesPatch) Apply(p Preferences) Preferences {
	if pp.Language != nil {
		p.Language = *pp.Language
	}
	if pp.Currency != nil {
		p.Currency = *pp.Currency
	}
	if pp.Notifications != nil {
		p.Notifications = *pp.Notifications
	}
	return p
}

// Session is one user's conversation record.
type Session struct {
	UserID       string            `json:"userId"`
	PhoneNumber  string            `json:"phoneNumber"`
	UserType     models.UserType   `json:"userType"`
	CurrentState State             `json:"currentState"`
	Context      map[string]string `json:"context,omitempty"`
	ProductDraft *ProductDraft     `json:"productDraft,omitempty"`
	Cart         []models.CartItem `json:"cart"`
	OrderHistory []string          `json:"orderHistory"`
	Preferences  Preferences       `json:"preferences"`
	NeedsAccount bool              `json:"needsAccount"`
	LastActivity time.Time         `json:"lastActivity"`
	IsActive     bool              `json:"isActive"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// AddToCart appends item, or sums its quantity into an existing line with the same productId.
// The existing line keeps the price captured when it was first added.
func (s *Session) AddToCart(item models.CartItem) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	for i := range s.Cart {
		if s.Cart[i].ProductID == item.ProductID {
			s.Cart[i].Quantity += item.Quantity
			return
		}
	}
	s.Cart = append(s.Cart, item)
}

// RemoveFromCart drops every line with productID and reports whether anything was removed.
func (s *Session) RemoveFromCart(productID string) bool {
	kept := s.Cart[:0]
	removed := false
	for _, it := range s.Cart {
		if it.ProductID == productID {
			removed = true
			continue
		}
		kept = append(kept, it)
	}
	s.Cart = kept
	return removed
}

// ClearCart empties the cart.
func (s *Session) ClearCart() {
	s.Cart = []models.CartItem{}
}

// CartTotal is the sum of price*quantity over the cart.
func (s *Session) CartTotal() float64 {
	return models.CartTotal(s.Cart)
}

// AddToOrderHistory appends an order id.
func (s *Session) AddToOrderHistory(orderID string) {
	s.OrderHistory = append(s.OrderHistory, orderID)
}

// SetContext stores a scratch value; an empty value deletes the key.
func (s *Session) SetContext(key, value string) {
	if value == "" {
		delete(s.Context, key)
		return
	}
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

// Clone returns a deep copy so backends never share mutable state with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Cart = append([]models.CartItem(nil), s.Cart...)
	c.OrderHistory = append([]string(nil), s.OrderHistory...)
	if s.Context != nil {
		c.Context = make(map[string]string, len(s.Context))
		for k, v := range s.Context {
			c.Context[k] = v
		}
	}
	if s.ProductDraft != nil {
		d := *s.ProductDraft
		d.Images = append([]ProductImage(nil), s.ProductDraft.Images...)
		c.ProductDraft = &d
	}
	return &c
}

// DraftPhase is the step of the seller product upload.
type DraftPhase string

const (
	DraftCollectingImages DraftPhase = "collecting_images"
	DraftAwaitingDetails  DraftPhase = "awaiting_details"
)

// MinProductImages is the number of photos required before product details are accepted.
const MinProductImages = 4

// ErrNotEnoughImages is returned when advancing a draft with too few photos.
var ErrNotEnoughImages = errors.New("not enough product images")

// ProductImage is an uploaded photo. Data is base64 so sessions stay JSON-serializable.
type ProductImage struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ProductDraft is the seller's in-progress upload. A nil draft means no upload is in progress.
type ProductDraft struct {
	Phase  DraftPhase     `json:"phase"`
	Images []ProductImage `json:"images"`
}

// NewProductDraft starts an upload in the image collection phase.
func NewProductDraft() *ProductDraft {
	return &ProductDraft{Phase: DraftCollectingImages, Images: []ProductImage{}}
}

// AddImage appends a photo and returns the running count.
func (d *ProductDraft) AddImage(img ProductImage) int {
	d.Images = append(d.Images, img)
	return len(d.Images)
}

// AdvanceToDetails moves to the details phase once MinProductImages photos are present.
func (d *ProductDraft) AdvanceToDetails() error {
	if len(d.Images) < MinProductImages {
		return ErrNotEnoughImages
	}
	d.Phase = DraftAwaitingDetails
	return nil
}
