package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/whatsapp"
)

// mediaDownloader fetches inbound media bytes; *whatsapp.Client implements it.
type mediaDownloader interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client     whatsapp.WhatsAppSender
	waClient   *whatsapp.Client // Access to underlying client for event handling
	downloader mediaDownloader
	receipts   chan models.Receipt
	messages   chan models.InboundMessage
	done       chan struct{}
	mu         sync.RWMutex
	stopped    bool
	handlerID  uint32
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client:   client,
		receipts: make(chan models.Receipt, DefaultChannelBufferSize),
		messages: make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:     make(chan struct{}),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		service.downloader = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}
	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeRecipient("WhatsAppService", recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop removes the event handler and closes the channels.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if s.waClient != nil && s.waClient.GetClient() != nil && s.handlerID != 0 {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	close(s.done)
	close(s.receipts)
	close(s.messages)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

func (s *WhatsAppService) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// SendImage sends an image message and emits a sent receipt.
func (s *WhatsAppService) SendImage(ctx context.Context, to string, data []byte, mimeType, caption string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if err := s.client.SendImage(ctx, canonicalTo, data, mimeType, caption); err != nil {
		slog.Error("WhatsAppService SendImage error", "error", err, "to", canonicalTo)
		return err
	}
	s.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Messages returns a channel of inbound messages.
func (s *WhatsAppService) Messages() <-chan models.InboundMessage {
	return s.messages
}

func (s *WhatsAppService) emitReceipt(r models.Receipt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	if !emit(s.receipts, r) {
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "to", r.To)
	}
}

func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	msg, ok := toInbound(ctx, evt, s.downloader)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}
	if emit(s.messages, msg) {
		slog.Debug("WhatsAppService incoming message forwarded", "from", msg.From, "type", msg.Type)
	} else {
		slog.Warn("WhatsAppService messages channel blocked, dropping message", "from", msg.From)
	}
}

// toInbound converts a whatsmeow message event. Own messages, group messages and
// unsupported types are skipped.
func toInbound(ctx context.Context, evt *events.Message, dl mediaDownloader) (models.InboundMessage, bool) {
	if evt == nil || evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return models.InboundMessage{}, false
	}
	msg := models.InboundMessage{
		ID:   evt.Info.ID,
		From: evt.Info.Sender.User,
		Time: evt.Info.Timestamp.Unix(),
	}
	m := evt.Message
	switch {
	case m.GetConversation() != "":
		msg.Type = models.MessageTypeText
		msg.Body = m.GetConversation()
	case m.GetExtendedTextMessage().GetText() != "":
		msg.Type = models.MessageTypeText
		msg.Body = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		msg.Type = models.MessageTypeImage
		msg.HasMedia = true
		msg.Body = img.GetCaption()
		msg.MediaType = img.GetMimetype()
		msg.Media = downloadImage(ctx, dl, img, msg.From)
	case m.GetVideoMessage() != nil:
		msg.Type, msg.HasMedia = models.MessageTypeVideo, true
	case m.GetAudioMessage() != nil:
		msg.Type, msg.HasMedia = models.MessageTypeAudio, true
	case m.GetDocumentMessage() != nil:
		msg.Type, msg.HasMedia = models.MessageTypeDocument, true
	default:
		slog.Debug("WhatsAppService ignoring unsupported message", "from", msg.From)
		return models.InboundMessage{}, false
	}
	msg.MediaType = strings.TrimSpace(strings.Split(msg.MediaType, ";")[0])
	return msg, true
}

func downloadImage(ctx context.Context, dl mediaDownloader, img *waE2E.ImageMessage, from string) []byte {
	if dl == nil {
		return nil
	}
	data, err := dl.Download(ctx, img)
	if err != nil {
		slog.Error("WhatsAppService image download failed", "from", from, "error", err)
		return nil
	}
	return data
}

func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	s.emitReceipt(models.Receipt{To: evt.MessageSource.Sender.User, Status: status, Time: evt.Timestamp.Unix()})
}
