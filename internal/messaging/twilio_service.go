package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	client   twiliowhatsapp.TwilioWhatsAppSender // Could be real Twilio client or MockClient
	receipts chan models.Receipt
	messages chan models.InboundMessage
	done     chan struct{}
	mu       sync.RWMutex
	stopped  bool
}

// NewTwilioService creates a new TwilioService around client.
func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{
		client:   client,
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("TwilioService", strings.TrimPrefix(recipient, "whatsapp:"))
}

// Start is a no-op for Twilio; inbound messages arrive through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.receipts)
	close(s.messages)
	return nil
}

func (s *TwilioService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// SendMessage sends a message via Twilio and emits a receipt
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// SendImage delegates to the client, which falls back to the caption.
func (s *TwilioService) SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendImage(ctx, canonicalTo, data, mimeType, caption); err != nil {
		return err
	}
	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Messages returns the channel fed by TwilioWebhookHandler.
func (s *TwilioService) Messages() <-chan models.InboundMessage {
	return s.messages
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	emit(s.receipts, receipt)
}

// TwilioWebhookHandler handles inbound Twilio webhook requests and emits them on Messages().
// The first attached image (MediaUrl0) is downloaded with the account credentials.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	msg, err := s.parseWebhook(r)
	if err != nil {
		slog.Warn("Twilio webhook rejected", "error", err)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}
	slog.Info("Inbound WhatsApp message from Twilio", "from", msg.From, "type", msg.Type, "id", msg.ID)

	s.safeEmitMessage(msg)

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *TwilioService) parseWebhook(r *http.Request) (models.InboundMessage, error) {
	from := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	body := r.FormValue("Body")
	numMedia, _ := strconv.Atoi(r.FormValue("NumMedia"))
	mediaURL := r.FormValue("MediaUrl0")

	if from == "" || (body == "" && mediaURL == "") {
		return models.InboundMessage{}, fmt.Errorf("missing From or Body/MediaUrl0")
	}

	msg := models.InboundMessage{
		ID:   r.FormValue("MessageSid"),
		From: from,
		Body: body,
		Type: models.MessageTypeText,
		Time: time.Now().Unix(),
	}
	if numMedia == 0 && mediaURL == "" {
		return msg, nil
	}

	contentType := r.FormValue("MediaContentType0")
	msg.HasMedia = true
	msg.MediaType = contentType
	msg.Type = mediaTypeFor(contentType)
	if numMedia > 1 && msg.Type == models.MessageTypeImage {
		msg.Type = models.MessageTypeAlbum
	}
	if msg.Type == models.MessageTypeImage || msg.Type == models.MessageTypeAlbum {
		data, fetched, err := s.client.FetchMedia(r.Context(), mediaURL)
		if err != nil {
			slog.Error("TwilioService media download failed", "from", from, "url", mediaURL, "error", err)
		} else {
			msg.Media = data
			if msg.MediaType == "" {
				msg.MediaType = fetched
			}
		}
	}
	return msg, nil
}

func mediaTypeFor(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageTypeAudio
	case contentType == "":
		return models.MessageTypeUnknown
	default:
		return models.MessageTypeDocument
	}
}

// safeEmitMessage pushes an inbound message unless the service has stopped.
func (s *TwilioService) safeEmitMessage(msg models.InboundMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", msg.From)
		return
	}
	if !emit(s.messages, msg) {
		slog.Warn("TwilioService messages channel blocked, dropping message", "from", msg.From)
	}
}
