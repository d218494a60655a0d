package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

const (
	intentBrowse   Intent = "browse"
	intentSearch   Intent = "search"
	intentCart     Intent = "cart"
	intentOrders   Intent = "orders"
	intentHelp     Intent = "help"
	intentBack     Intent = "back"
	intentCheckout Intent = "checkout"
	intentRemove   Intent = "remove"
	intentClear    Intent = "clear"
	intentConfirm  Intent = "confirm"
	intentCancel   Intent = "cancel"
)

var (
	customerMainRules = NewClassifier(
		Rule{Intent: intentBrowse, Tokens: []string{"1"}, Phrases: []string{"browse", "product"}},
		Rule{Intent: intentSearch, Tokens: []string{"2"}, Phrases: []string{"search", "find"}},
		Rule{Intent: intentCart, Tokens: []string{"3"}, Phrases: []string{"cart"}},
		Rule{Intent: intentOrders, Tokens: []string{"4"}, Phrases: []string{"order"}},
		Rule{Intent: intentHelp, Tokens: []string{"5"}, Phrases: []string{"help", "support"}},
	)
	browseRules = NewClassifier(
		Rule{Intent: intentCart, Phrases: []string{"view cart", "cart"}},
		Rule{Intent: intentCheckout, Tokens: []string{"checkout"}},
		Rule{Intent: intentBack, Tokens: []string{"back", "menu"}},
	)
	cartRules = NewClassifier(
		Rule{Intent: intentCheckout, Tokens: []string{"checkout", "pay"}},
		Rule{Intent: intentRemove, Tokens: []string{"remove", "delete"}},
		Rule{Intent: intentClear, Phrases: []string{"clear cart", "empty cart"}},
		Rule{Intent: intentBack, Tokens: []string{"back", "menu"}},
	)
	checkoutRules = NewClassifier(
		Rule{Intent: intentConfirm, Tokens: []string{"confirm", "yes"}},
		Rule{Intent: intentCancel, Tokens: []string{"cancel", "no"}},
	)
	backRules = NewClassifier(
		Rule{Intent: intentBack, Tokens: []string{"back", "menu"}},
	)

	removeCommand = regexp.MustCompile(`(?:remove|delete)\s+#?(\d+)`)
)

// CustomerFlow handles registered customers: browsing, cart, checkout and support.
type CustomerFlow struct {
	*base
	region *region
}

func newCustomerFlow(b *base) *CustomerFlow {
	f := &CustomerFlow{base: b}
	f.region = &region{
		name:     "customer",
		main:     session.StateCustomerMain,
		mainMenu: customerMenu,
		handlers: map[session.State]stateHandler{
			session.StateCustomerMain:      f.handleMain,
			session.StateBrowsingProducts:  f.handleBrowsing,
			session.StateSearchingProducts: f.handleSearch,
			session.StateCartManagement:    f.handleCart,
			session.StateCheckout:          f.handleCheckout,
			session.StateCustomerSupport:   f.handleSupport,
			session.StateEscalatedSupport:  f.handleEscalated,
		},
	}
	return f
}

// Handle processes one message for a registered customer.
func (f *CustomerFlow) Handle(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.region.dispatch(ctx, msg, sess)
}

func (f *CustomerFlow) handleMain(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	switch customerMainRules.Classify(msg.Body) {
	case intentBrowse:
		sess.CurrentState = session.StateBrowsingProducts
		return TextReply(productCatalog()), nil
	case intentSearch:
		sess.CurrentState = session.StateSearchingProducts
		return TextReply(msgSearchPrompt), nil
	case intentCart:
		sess.CurrentState = session.StateCartManagement
		return TextReply(cartSummary(sess.Cart)), nil
	case intentOrders:
		return TextReply(f.orderHistory(ctx, sess)), nil
	case intentHelp:
		sess.CurrentState = session.StateCustomerSupport
		return TextReply(supportIntro("🆘 Customer Support")), nil
	}
	return TextReply(msgDidNotUnderstand + customerMenu), nil
}

func (f *CustomerFlow) handleBrowsing(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	if p, ok := findProduct(msg.Body); ok {
		sess.AddToCart(models.CartItem{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: 1})
		f.sendNotification(ctx, models.CreateNotificationRequest{
			PhoneNumber: sess.PhoneNumber,
			UserType:    models.UserTypeCustomer,
			Title:       "Product Added to Cart",
			Message:     fmt.Sprintf("%s has been added to your cart. Continue shopping or proceed to checkout!", p.Name),
			Type:        models.NotificationSuccess,
			Category:    models.CategoryProduct,
		})
		return TextReply(addedToCart(p.Name)), nil
	}
	switch browseRules.Classify(msg.Body) {
	case intentCart:
		sess.CurrentState = session.StateCartManagement
		return TextReply(cartSummary(sess.Cart)), nil
	case intentCheckout:
		return TextReply(f.enterCheckout(sess)), nil
	case intentBack:
		sess.CurrentState = session.StateCustomerMain
		return TextReply(customerMenu), nil
	}
	return TextReply(productCatalog()), nil
}

func (f *CustomerFlow) handleSearch(_ context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	if backRules.Classify(msg.Body) == intentBack {
		sess.CurrentState = session.StateCustomerMain
		return TextReply(customerMenu), nil
	}
	query := strings.TrimSpace(msg.Body)
	if query == "" {
		return TextReply(msgSearchPrompt), nil
	}
	return TextReply(searchResults(query)), nil
}

func (f *CustomerFlow) handleCart(_ context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	switch cartRules.Classify(msg.Body) {
	case intentCheckout:
		return TextReply(f.enterCheckout(sess)), nil
	case intentRemove:
		return TextReply(f.removeItem(msg.Body, sess)), nil
	case intentClear:
		sess.ClearCart()
		return TextReply(msgCartCleared), nil
	case intentBack:
		sess.CurrentState = session.StateCustomerMain
		return TextReply(customerMenu), nil
	}
	return TextReply(cartSummary(sess.Cart)), nil
}

func (f *CustomerFlow) handleCheckout(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	if len(sess.Cart) == 0 {
		sess.CurrentState = session.StateCartManagement
		return TextReply(msgCartEmpty), nil
	}
	switch checkoutRules.Classify(msg.Body) {
	case intentConfirm:
		return f.initiateCheckout(ctx, sess)
	case intentCancel:
		sess.CurrentState = session.StateCartManagement
		return TextReply(cartSummary(sess.Cart)), nil
	}
	return TextReply(checkoutSummary(sess.Cart)), nil
}

func (f *CustomerFlow) handleSupport(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.supportTurn(ctx, msg, sess, session.StateCustomerMain, customerMenu), nil
}

func (f *CustomerFlow) handleEscalated(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.escalatedTurn(ctx, msg, sess, session.StateCustomerMain, customerMenu), nil
}

// enterCheckout moves to the checkout state and shows the confirm prompt.
func (f *CustomerFlow) enterCheckout(sess *session.Session) string {
	if len(sess.Cart) == 0 {
		sess.CurrentState = session.StateCartManagement
		return msgCartEmpty
	}
	sess.CurrentState = session.StateCheckout
	return checkoutSummary(sess.Cart)
}

// removeItem handles "remove N", where N is the 1-based line in the cart summary.
func (f *CustomerFlow) removeItem(text string, sess *session.Session) string {
	m := removeCommand.FindStringSubmatch(normalizeText(text))
	if m == nil {
		return msgInvalidRemove
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 1 || idx > len(sess.Cart) {
		return invalidItemNumber(len(sess.Cart))
	}
	item := sess.Cart[idx-1]
	sess.RemoveFromCart(item.ProductID)
	return itemRemoved(item.Name)
}

// initiateCheckout persists the order, empties the cart and returns the payment link.
// A persistence failure leaves the cart untouched so the user can retry.
func (f *CustomerFlow) initiateCheckout(ctx context.Context, sess *session.Session) (Reply, error) {
	if len(sess.Cart) == 0 {
		sess.CurrentState = session.StateCartManagement
		return TextReply(msgCartEmpty), nil
	}
	if f.deps.Persistence == nil {
		return TextReply(msgCheckoutError), nil
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Reply{}, fmt.Errorf("generate order id: %w", err)
	}
	order := models.Order{
		ID:          id.String(),
		PhoneNumber: sess.PhoneNumber,
		UserID:      sess.UserID,
		Items:       models.OrderItemsFromCart(sess.Cart),
		Total:       sess.CartTotal(),
		CreatedAt:   time.Now().UTC(),
	}

	dbCtx, cancel := context.WithTimeout(ctx, f.cfg.PersistenceTimeout)
	defer cancel()
	saved, err := f.deps.Persistence.CreateOrder(dbCtx, order)
	if err != nil {
		slog.Error("CustomerFlow.initiateCheckout: failed to save order", "phone", sess.PhoneNumber, "orderId", order.ID, "error", err)
		return TextReply(msgCheckoutError), nil
	}
	slog.Info("CustomerFlow.initiateCheckout: order created", "phone", sess.PhoneNumber, "orderId", saved.ID, "total", saved.Total)

	f.sendNotification(ctx, models.CreateNotificationRequest{
		PhoneNumber: sess.PhoneNumber,
		UserType:    models.UserTypeCustomer,
		Title:       "Order Confirmed!",
		Message:     fmt.Sprintf("Your order #%s has been created successfully. Total: %s.", saved.ID, formatPrice(saved.Total)),
		Type:        models.NotificationSuccess,
		Category:    models.CategoryOrder,
	})

	sess.AddToOrderHistory(saved.ID)
	sess.ClearCart()
	sess.CurrentState = session.StateCustomerMain
	link := strings.TrimRight(f.cfg.PaymentBaseURL, "/") + "/api/pay/dummy/" + saved.ID
	return TextReply(checkoutLink(saved.Total, link)), nil
}

func (f *CustomerFlow) orderHistory(ctx context.Context, sess *session.Session) string {
	if f.deps.Persistence == nil {
		return msgOrderHistoryError
	}
	dbCtx, cancel := context.WithTimeout(ctx, f.cfg.PersistenceTimeout)
	defer cancel()
	orders, err := f.deps.Persistence.FindOrdersByPhone(dbCtx, sess.PhoneNumber, orderHistoryLimit)
	if err != nil {
		slog.Error("CustomerFlow.orderHistory: failed to load orders", "phone", sess.PhoneNumber, "error", err)
		return msgOrderHistoryError
	}
	if len(orders) == 0 {
		return msgNoOrders
	}
	return orderHistory(orders)
}
