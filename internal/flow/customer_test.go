package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

func TestCustomer_BrowseAddTwiceMerges(t *testing.T) {
	r, d := newTestRouter()
	ctx := context.Background()
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerMain)

	if reply := r.ProcessMessage(ctx, text("1"), sess); !strings.Contains(reply.Text(), "Product Catalog") {
		t.Fatalf("reply = %q, want catalog", reply.Text())
	}
	if sess.CurrentState != session.StateBrowsingProducts {
		t.Fatalf("state = %q, want browsing_products", sess.CurrentState)
	}

	for i := 0; i < 2; i++ {
		reply := r.ProcessMessage(ctx, text("1"), sess)
		if !strings.Contains(reply.Text(), "Fashion & Clothing added to your cart!") {
			t.Fatalf("reply = %q, want add confirmation", reply.Text())
		}
	}
	if len(sess.Cart) != 1 || sess.Cart[0].Quantity != 2 {
		t.Fatalf("cart = %+v, want one line with quantity 2", sess.Cart)
	}
	if len(d.notifier.requests) != 2 {
		t.Errorf("notifications = %d, want 2", len(d.notifier.requests))
	}
	if req := d.notifier.requests[0]; req.Title != "Product Added to Cart" || req.Type != models.NotificationSuccess || req.Category != models.CategoryProduct {
		t.Errorf("notification = %+v", req)
	}

	reply := r.ProcessMessage(ctx, text("view cart"), sess)
	if !strings.Contains(reply.Text(), "Total: $50") {
		t.Errorf("cart summary = %q, want total $50", reply.Text())
	}
	if sess.CurrentState != session.StateCartManagement {
		t.Errorf("state = %q, want cart_management", sess.CurrentState)
	}
}

func TestCustomer_NotificationFailureDoesNotBlockReply(t *testing.T) {
	r, d := newTestRouter()
	d.notifier.err = errBoom
	sess := newSession(models.UserTypeCustomer, false, session.StateBrowsingProducts)
	reply := r.ProcessMessage(context.Background(), text("2"), sess)
	if !strings.Contains(reply.Text(), "Electronics added") {
		t.Errorf("reply = %q", reply.Text())
	}
	if len(sess.Cart) != 1 {
		t.Error("cart should still be updated")
	}
}

func TestCustomer_CartTotalMatchesItems(t *testing.T) {
	sess := newSession(models.UserTypeCustomer, false, session.StateCartManagement)
	sess.Cart = []models.CartItem{
		{ProductID: "2", Name: "Electronics", Price: 120, Quantity: 1},
		{ProductID: "4", Name: "Beauty & Health", Price: 30, Quantity: 3},
	}
	r, _ := newTestRouter()
	reply := r.ProcessMessage(context.Background(), text("anything"), sess)
	for _, want := range []string{"1. *Electronics* x1 - ```$120```", "2. *Beauty & Health* x3 - ```$90```", "Total: $210"} {
		if !strings.Contains(reply.Text(), want) {
			t.Errorf("summary missing %q:\n%s", want, reply.Text())
		}
	}
}

func TestCustomer_CheckoutConfirm(t *testing.T) {
	r, d := newTestRouter(WithPaymentBaseURL("https://pay.example"))
	ctx := context.Background()
	sess := newSession(models.UserTypeCustomer, false, session.StateCartManagement)
	sess.Cart = []models.CartItem{{ProductID: "3", Name: "Home & Garden", Price: 45, Quantity: 1}}

	reply := r.ProcessMessage(ctx, text("checkout"), sess)
	if sess.CurrentState != session.StateCheckout || !strings.Contains(reply.Text(), "Checkout Summary") {
		t.Fatalf("state = %q reply = %q, want checkout summary", sess.CurrentState, reply.Text())
	}

	reply = r.ProcessMessage(ctx, text("confirm"), sess)
	if len(d.persistence.orders) != 1 {
		t.Fatalf("orders persisted = %d, want 1", len(d.persistence.orders))
	}
	order := d.persistence.orders[0]
	if !strings.Contains(reply.Text(), "https://pay.example/api/pay/dummy/"+order.ID) {
		t.Errorf("reply = %q, want payment link for order %s", reply.Text(), order.ID)
	}
	if order.Paid || order.Total != 45 || len(order.Items) != 1 || order.PhoneNumber != "2348000000001" {
		t.Errorf("order = %+v", order)
	}
	if len(sess.Cart) != 0 || sess.CartTotal() != 0 {
		t.Errorf("cart should be empty after checkout, got %+v", sess.Cart)
	}
	if len(sess.OrderHistory) != 1 || sess.OrderHistory[0] != order.ID {
		t.Errorf("order history = %v", sess.OrderHistory)
	}
	if sess.CurrentState != session.StateCustomerMain {
		t.Errorf("state = %q, want customer_main", sess.CurrentState)
	}
	last := d.notifier.requests[len(d.notifier.requests)-1]
	if last.Title != "Order Confirmed!" || last.Category != models.CategoryOrder {
		t.Errorf("notification = %+v", last)
	}
}

func TestCustomer_CheckoutCancel(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCheckout)
	sess.Cart = []models.CartItem{{ProductID: "1", Name: "Fashion & Clothing", Price: 25, Quantity: 1}}

	reply := r.ProcessMessage(context.Background(), text("cancel"), sess)
	if sess.CurrentState != session.StateCartManagement {
		t.Errorf("state = %q, want cart_management", sess.CurrentState)
	}
	if !strings.Contains(reply.Text(), "Your Cart") || len(sess.Cart) != 1 {
		t.Errorf("reply = %q cart = %+v", reply.Text(), sess.Cart)
	}
}

func TestCustomer_CheckoutPersistenceFailureKeepsCart(t *testing.T) {
	r, d := newTestRouter()
	d.persistence.createErr = errBoom
	sess := newSession(models.UserTypeCustomer, false, session.StateCheckout)
	sess.Cart = []models.CartItem{{ProductID: "1", Name: "Fashion & Clothing", Price: 25, Quantity: 1}}

	reply := r.ProcessMessage(context.Background(), text("yes"), sess)
	if reply.Text() != msgCheckoutError {
		t.Errorf("reply = %q, want checkout error", reply.Text())
	}
	if len(sess.Cart) != 1 || sess.CurrentState != session.StateCheckout {
		t.Errorf("cart/state changed: %+v %q", sess.Cart, sess.CurrentState)
	}
}

func TestCustomer_CheckoutEmptyCart(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCheckout)
	reply := r.ProcessMessage(context.Background(), text("confirm"), sess)
	if reply.Text() != msgCartEmpty || sess.CurrentState != session.StateCartManagement {
		t.Errorf("reply = %q state = %q", reply.Text(), sess.CurrentState)
	}
}

func TestCustomer_RemoveItem(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		wantLeft int
	}{
		{"valid", "remove 1", itemRemoved("Fashion & Clothing"), 1},
		{"delete alias", "delete 2", itemRemoved("Electronics"), 1},
		{"out of range", "remove 5", invalidItemNumber(2), 2},
		{"missing number", "remove", msgInvalidRemove, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter()
			sess := newSession(models.UserTypeCustomer, false, session.StateCartManagement)
			sess.Cart = []models.CartItem{
				{ProductID: "1", Name: "Fashion & Clothing", Price: 25, Quantity: 1},
				{ProductID: "2", Name: "Electronics", Price: 120, Quantity: 1},
			}
			reply := r.ProcessMessage(context.Background(), text(tt.body), sess)
			if reply.Text() != tt.want {
				t.Errorf("reply = %q, want %q", reply.Text(), tt.want)
			}
			if len(sess.Cart) != tt.wantLeft {
				t.Errorf("cart lines = %d, want %d", len(sess.Cart), tt.wantLeft)
			}
		})
	}
}

func TestCustomer_ClearCart(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCartManagement)
	sess.Cart = []models.CartItem{{ProductID: "1", Price: 25, Quantity: 2}}
	if reply := r.ProcessMessage(context.Background(), text("clear cart"), sess); reply.Text() != msgCartCleared {
		t.Errorf("reply = %q", reply.Text())
	}
	if len(sess.Cart) != 0 {
		t.Error("cart should be empty")
	}
}

func TestCustomer_OrderHistory(t *testing.T) {
	r, d := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerMain)

	if reply := r.ProcessMessage(context.Background(), text("4"), sess); reply.Text() != msgNoOrders {
		t.Errorf("reply = %q, want no orders", reply.Text())
	}

	d.persistence.orders = []models.Order{{ID: "ord-1", PhoneNumber: "2348000000001", Total: 45, Paid: true}}
	reply := r.ProcessMessage(context.Background(), text("my orders"), sess)
	if !strings.Contains(reply.Text(), "Order #ord-1") || !strings.Contains(reply.Text(), "_Paid_") {
		t.Errorf("reply = %q", reply.Text())
	}
	if sess.CurrentState != session.StateCustomerMain {
		t.Errorf("order history should not change state, got %q", sess.CurrentState)
	}

	d.persistence.findErr = errBoom
	if reply := r.ProcessMessage(context.Background(), text("4"), sess); reply.Text() != msgOrderHistoryError {
		t.Errorf("reply = %q, want fetch error", reply.Text())
	}
}

func TestCustomer_SearchAndBack(t *testing.T) {
	r, _ := newTestRouter()
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerMain)
	r.ProcessMessage(context.Background(), text("2"), sess)
	if sess.CurrentState != session.StateSearchingProducts {
		t.Fatalf("state = %q", sess.CurrentState)
	}
	if reply := r.ProcessMessage(context.Background(), text("red shoes"), sess); !strings.Contains(reply.Text(), `"red shoes"`) {
		t.Errorf("reply = %q", reply.Text())
	}
	if reply := r.ProcessMessage(context.Background(), text("back"), sess); reply.Text() != customerMenu {
		t.Errorf("reply = %q, want menu", reply.Text())
	}
}

func TestCustomer_SupportEscalation(t *testing.T) {
	r, d := newTestRouter(WithSupportContact("help@shop.example", "+1-555"))
	ctx := context.Background()
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerMain)

	r.ProcessMessage(ctx, text("5"), sess)
	if sess.CurrentState != session.StateCustomerSupport {
		t.Fatalf("state = %q, want customer_support", sess.CurrentState)
	}

	reply := r.ProcessMessage(ctx, text("how do I browse?"), sess)
	if reply.Text() != wrapAIAnswer("Type *1* to browse.") {
		t.Errorf("reply = %q, want wrapped AI answer", reply.Text())
	}

	d.support.escalate = true
	reply = r.ProcessMessage(ctx, text("I was charged twice, refund now!"), sess)
	if sess.CurrentState != session.StateEscalatedSupport {
		t.Fatalf("state = %q, want escalated_support", sess.CurrentState)
	}
	if !strings.Contains(reply.Text(), "help@shop.example") || !strings.Contains(reply.Text(), "+1-555") {
		t.Errorf("escalation reply missing contact channels: %q", reply.Text())
	}

	reply = r.ProcessMessage(ctx, text("order 123"), sess)
	if reply.Text() != msgEscalatedAck {
		t.Errorf("reply = %q, want ack", reply.Text())
	}
	last := d.notifier.requests[len(d.notifier.requests)-1]
	if last.Category != models.CategorySupport {
		t.Errorf("notification category = %q, want support", last.Category)
	}

	if reply := r.ProcessMessage(ctx, text("back"), sess); reply.Text() != customerMenu || sess.CurrentState != session.StateCustomerMain {
		t.Errorf("back from escalation: reply = %q state = %q", reply.Text(), sess.CurrentState)
	}
}

func TestCustomer_SupportAnswerError(t *testing.T) {
	r, d := newTestRouter()
	d.support.answerErr = errBoom
	sess := newSession(models.UserTypeCustomer, false, session.StateCustomerSupport)
	if reply := r.ProcessMessage(context.Background(), text("how do refunds work"), sess); reply.Text() != msgSupportError {
		t.Errorf("reply = %q, want support error", reply.Text())
	}
	if sess.CurrentState != session.StateCustomerSupport {
		t.Errorf("state = %q", sess.CurrentState)
	}
}
