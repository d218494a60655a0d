package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/commercebridge/commercebridge/internal/models"
)

func seedOrder(t *testing.T, env *testEnv) models.Order {
	t.Helper()
	o, err := env.st.CreateOrder(context.Background(), models.Order{
		ID:          "ord-1",
		PhoneNumber: "2348000000001",
		Items:       []models.OrderItem{{ProductID: "1", Name: "Red Sneakers", Price: 25, Quantity: 2}},
		Total:       50,
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func TestPaymentFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedOrder(t, env)

	rr := env.do(t, "GET", "/api/pay/dummy/ord-1/receipt", "")
	assertHTTPStatus(t, http.StatusNotFound, rr.Code, "receipt before payment")

	rr = env.do(t, "GET", "/api/pay/dummy/ord-1", "")
	assertHTTPStatus(t, http.StatusOK, rr.Code, "pay page")
	body := rr.Body.String()
	if !strings.Contains(body, "Complete your payment") || !strings.Contains(body, "$50.00") || !strings.Contains(body, "Red Sneakers") {
		t.Errorf("pay page missing order details: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}

	rr = env.do(t, "POST", "/api/pay/dummy/ord-1/confirm", "")
	assertHTTPStatus(t, http.StatusOK, rr.Code, "confirm")
	if !strings.Contains(rr.Body.String(), "Payment received") {
		t.Errorf("confirm should render the receipt: %s", rr.Body.String())
	}

	order, _ := env.st.GetOrder(ctx, "ord-1")
	if !order.Paid || order.PaidAt == nil {
		t.Fatalf("expected order marked paid, got %+v", order)
	}

	list, _ := env.notifier.List(ctx, "2348000000001", 10)
	if len(list) != 1 || list[0].Category != models.CategoryPayment {
		t.Fatalf("expected one payment notification, got %+v", list)
	}
	if !strings.Contains(list[0].Message, "Total paid: $50.00") {
		t.Errorf("receipt notification missing total: %q", list[0].Message)
	}

	// Confirming again does not queue a second notification.
	env.do(t, "POST", "/api/pay/dummy/ord-1/confirm", "")
	if list, _ := env.notifier.List(ctx, "2348000000001", 10); len(list) != 1 {
		t.Errorf("expected still one notification, got %d", len(list))
	}

	rr = env.do(t, "GET", "/api/pay/dummy/ord-1", "")
	assertHTTPStatus(t, http.StatusSeeOther, rr.Code, "pay page after payment")
	if loc := rr.Header().Get("Location"); loc != "/api/pay/dummy/ord-1/receipt" {
		t.Errorf("unexpected redirect %q", loc)
	}

	rr = env.do(t, "GET", "/api/pay/dummy/ord-1/receipt", "")
	assertHTTPStatus(t, http.StatusOK, rr.Code, "receipt after payment")
}

func TestPaymentConcurrentConfirmNotifiesOnce(t *testing.T) {
	env := newTestEnv(t)
	seedOrder(t, env)

	const confirms = 8
	codes := make(chan int, confirms)
	var wg sync.WaitGroup
	for i := 0; i < confirms; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, httptest.NewRequest("POST", "/api/pay/dummy/ord-1/confirm", nil))
			codes <- rr.Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assertHTTPStatus(t, http.StatusOK, code, "concurrent confirm")
	}

	list, _ := env.notifier.List(context.Background(), "2348000000001", 10)
	if len(list) != 1 {
		t.Errorf("expected exactly one payment notification, got %d", len(list))
	}
}

func TestPaymentUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/pay/dummy/missing"},
		{"POST", "/api/pay/dummy/missing/confirm"},
		{"GET", "/api/pay/dummy/missing/receipt"},
	} {
		rr := env.do(t, tc.method, tc.path, "")
		assertHTTPStatus(t, http.StatusNotFound, rr.Code, tc.method+" "+tc.path)
		if !strings.Contains(rr.Body.String(), "Order not found") {
			t.Errorf("%s: expected not found page", tc.path)
		}
	}
}
