package flow

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/commercebridge/commercebridge/internal/models"
	"github.com/commercebridge/commercebridge/internal/session"
)

const (
	intentAddProduct Intent = "add_product"
	intentMyProducts Intent = "my_products"
	intentReport     Intent = "report"
)

var sellerMainRules = NewClassifier(
	Rule{Intent: intentAddProduct, Tokens: []string{"1"}, Phrases: []string{"add", "upload"}},
	Rule{Intent: intentMyProducts, Tokens: []string{"2"}, Phrases: []string{"my product", "inventory"}},
	Rule{Intent: intentOrders, Tokens: []string{"3"}, Phrases: []string{"order"}},
	Rule{Intent: intentReport, Tokens: []string{"4"}, Phrases: []string{"report", "sales"}},
	Rule{Intent: intentHelp, Tokens: []string{"5"}, Phrases: []string{"help", "support"}},
)

// SellerFlow handles registered sellers: product upload, listings and support.
type SellerFlow struct {
	*base
	region *region
}

func newSellerFlow(b *base) *SellerFlow {
	f := &SellerFlow{base: b}
	f.region = &region{
		name:     "seller",
		main:     session.StateSellerMain,
		mainMenu: sellerMenu,
		handlers: map[session.State]stateHandler{
			session.StateSellerMain:       f.handleMain,
			session.StateAddingProduct:    f.handleAddingProduct,
			session.StateManagingProducts: f.handleListing(msgSellerProducts),
			session.StateOrderManagement:  f.handleListing(msgSellerOrders),
			session.StateSellerSupport:    f.handleSupport,
			session.StateEscalatedSupport: f.handleEscalated,
		},
	}
	return f
}

// Handle processes one message for a registered seller.
func (f *SellerFlow) Handle(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.region.dispatch(ctx, msg, sess)
}

func (f *SellerFlow) handleMain(_ context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	switch sellerMainRules.Classify(msg.Body) {
	case intentAddProduct:
		sess.CurrentState = session.StateAddingProduct
		sess.ProductDraft = session.NewProductDraft()
		return TextReply(msgAddProduct), nil
	case intentMyProducts:
		sess.CurrentState = session.StateManagingProducts
		return TextReply(msgSellerProducts), nil
	case intentOrders:
		sess.CurrentState = session.StateOrderManagement
		return TextReply(msgSellerOrders), nil
	case intentReport:
		return TextReply(msgSalesReport), nil
	case intentHelp:
		sess.CurrentState = session.StateSellerSupport
		return TextReply(supportIntro("🆘 Seller Support")), nil
	}
	return TextReply(msgDidNotUnderstand + sellerMenu), nil
}

// handleListing serves the placeholder listings until "back" or "menu".
func (f *SellerFlow) handleListing(listing string) stateHandler {
	return func(_ context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
		if backRules.Classify(msg.Body) == intentBack {
			sess.CurrentState = session.StateSellerMain
			return TextReply(sellerMenu), nil
		}
		return TextReply(listing), nil
	}
}

func (f *SellerFlow) handleSupport(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.supportTurn(ctx, msg, sess, session.StateSellerMain, sellerMenu), nil
}

func (f *SellerFlow) handleEscalated(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	return f.escalatedTurn(ctx, msg, sess, session.StateSellerMain, sellerMenu), nil
}

// handleAddingProduct drives the upload: collect at least MinProductImages photos, then
// accept one free-form details message and forward everything to the vision service.
func (f *SellerFlow) handleAddingProduct(ctx context.Context, msg models.InboundMessage, sess *session.Session) (Reply, error) {
	if !msg.IsImage() && isExactly(msg.Body, "back", "menu", "cancel") {
		cancelled := sess.ProductDraft != nil
		sess.ProductDraft = nil
		sess.CurrentState = session.StateSellerMain
		if cancelled {
			return TextReply(msgUploadCancelled + sellerMenu), nil
		}
		return TextReply(sellerMenu), nil
	}
	if sess.ProductDraft == nil {
		sess.ProductDraft = session.NewProductDraft()
	}

	switch sess.ProductDraft.Phase {
	case session.DraftAwaitingDetails:
		return f.collectDetails(ctx, msg, sess), nil
	default:
		return f.collectImages(msg, sess), nil
	}
}

func (f *SellerFlow) collectImages(msg models.InboundMessage, sess *session.Session) Reply {
	draft := sess.ProductDraft
	if msg.IsImage() {
		mime := msg.MediaType
		if mime == "" {
			mime = "image/jpeg"
		}
		count := draft.AddImage(session.ProductImage{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(msg.Media),
		})
		slog.Debug("SellerFlow.collectImages: image received", "phone", sess.PhoneNumber, "count", count)
		return TextReply(imageReceived(count))
	}
	if isExactly(msg.Body, "done", "next") {
		if err := draft.AdvanceToDetails(); err != nil {
			return TextReply(notEnoughImages(len(draft.Images)))
		}
		slog.Debug("SellerFlow.collectImages: advancing to details", "phone", sess.PhoneNumber, "images", len(draft.Images))
		return TextReply(msgProductDetailsPrompt)
	}
	// Anything else while collecting is ignored.
	return TextReply("")
}

func (f *SellerFlow) collectDetails(ctx context.Context, msg models.InboundMessage, sess *session.Session) Reply {
	text := strings.TrimSpace(msg.Body)
	if text == "" || isExactly(text, "done", "next") {
		return TextReply(msgProductDetailsPrompt)
	}
	if f.deps.Support == nil {
		return TextReply(msgProductParseError)
	}

	aiCtx, cancel := context.WithTimeout(ctx, f.cfg.AITimeout)
	details, err := f.deps.Support.ParseProduct(aiCtx, text)
	cancel()
	if err == nil {
		err = details.Validate()
	}
	if err != nil {
		slog.Warn("SellerFlow.collectDetails: could not parse product details", "phone", sess.PhoneNumber, "error", err)
		return TextReply(msgProductParseError)
	}

	images := decodeImages(sess.ProductDraft.Images)
	if f.deps.Vision == nil {
		return TextReply(msgProductUploadError)
	}
	visionCtx, cancel := context.WithTimeout(ctx, f.cfg.VisionTimeout)
	defer cancel()
	res, err := f.deps.Vision.AddProduct(visionCtx, images, details, sess.UserID)
	if err != nil {
		slog.Error("SellerFlow.collectDetails: vision upload failed", "phone", sess.PhoneNumber, "product", details.Name, "error", err)
		return TextReply(msgProductUploadError)
	}

	slog.Info("SellerFlow.collectDetails: product uploaded", "phone", sess.PhoneNumber, "product", details.Name,
		"added", res.Added, "duplicates", res.Duplicates, "errors", len(res.Errors))
	sess.ProductDraft = nil
	f.sendNotification(ctx, models.CreateNotificationRequest{
		PhoneNumber: sess.PhoneNumber,
		UserType:    models.UserTypeSeller,
		Title:       "Product Upload Successful!",
		Message:     fmt.Sprintf("%s has been successfully uploaded to your store. Images added: %d", details.Name, res.Added),
		Type:        models.NotificationSuccess,
		Category:    models.CategoryProduct,
	})
	return TextReply(uploadResult(res))
}

func decodeImages(images []session.ProductImage) [][]byte {
	out := make([][]byte, 0, len(images))
	for i, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			slog.Warn("SellerFlow.decodeImages: skipping undecodable image", "index", i, "error", err)
			continue
		}
		out = append(out, data)
	}
	return out
}
