package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
)

// renderPage executes a named page into a buffer first so template errors never leave a
// half-written response.
func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Server.renderPage: template failed", "page", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Server.renderPage: write failed", "page", name, "error", err)
	}
}

// loadOrder fetches the order named in the path, rendering the not-found page itself when
// it does not exist.
func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	id := r.PathValue("orderId")
	order, err := s.st.GetOrder(r.Context(), id)
	if err != nil {
		slog.Error("Server.loadOrder: lookup failed", "orderId", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	if order == nil {
		s.renderPage(w, http.StatusNotFound, "notfound", fmt.Sprintf("We could not find order %s.", id))
		return nil, false
	}
	return order, true
}

func (s *Server) payPageHandler(w http.ResponseWriter, r *http.Request) {
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if order.Paid {
		http.Redirect(w, r, "/api/pay/dummy/"+order.ID+"/receipt", http.StatusSeeOther)
		return
	}
	s.renderPage(w, http.StatusOK, "pay", order)
}

// payConfirmHandler marks the order paid and queues the payment notification. Only the
// confirm that flips the order notifies; repeats just show the receipt again.
func (s *Server) payConfirmHandler(w http.ResponseWriter, r *http.Request) {
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if !order.Paid {
		changed, err := s.st.MarkOrderPaid(r.Context(), order.ID, s.now())
		if err != nil {
			slog.Error("Server.payConfirmHandler: mark paid failed", "orderId", order.ID, "error", err)
			http.Error(w, "Failed to record payment", http.StatusInternalServerError)
			return
		}
		if order, ok = s.loadOrder(w, r); !ok {
			return
		}
		if changed {
			slog.Info("Server.payConfirmHandler: order paid", "orderId", order.ID, "phone", order.PhoneNumber, "total", order.Total)
			if res := s.notifier.Create(r.Context(), paymentNotification(*order)); !res.OK() {
				slog.Warn("Server.payConfirmHandler: payment notification not queued", "orderId", order.ID, "error", res.Err)
			}
		}
	}
	s.renderPage(w, http.StatusOK, "receipt", order)
}

func (s *Server) receiptHandler(w http.ResponseWriter, r *http.Request) {
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if !order.Paid {
		s.renderPage(w, http.StatusNotFound, "notfound", fmt.Sprintf("Order %s has not been paid yet.", order.ID))
		return
	}
	s.renderPage(w, http.StatusOK, "receipt", order)
}

// paymentNotification renders the WhatsApp receipt for a paid order.
func paymentNotification(o models.Order) models.CreateNotificationRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Order ID: %s\n\n", o.ID)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "• %s x%d: $%.2f\n", it.Name, it.Quantity, it.Price*float64(it.Quantity))
	}
	fmt.Fprintf(&b, "\nTotal paid: $%.2f\n\nThank you for shopping with CommerceBridge!", o.Total)
	return models.CreateNotificationRequest{
		PhoneNumber: o.PhoneNumber,
		UserType:    models.UserTypeCustomer,
		Title:       "Payment Received",
		Message:     b.String(),
		Type:        models.NotificationSuccess,
		Category:    models.CategoryPayment,
	}
}
