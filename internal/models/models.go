// Package models defines the core data structures for CommerceBridge.
//
// It includes accounts, orders, notifications, short URLs, inbound messages and the
// JSON envelope used by the REST API. These are shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables shared by the store, API and flow layers.
var (
	ErrNotFound        = errors.New("record not found")
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyPhone      = errors.New("phone number cannot be empty")
	ErrInvalidUserType = errors.New("invalid user type")
	ErrEmptyCart       = errors.New("cart is empty")
)

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusQueued indicates the request produced work that will be delivered later.
	APIStatusQueued APIStatus = "queued"
)

// Receipt is a delivery/read receipt reported by a transport.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// MessageType classifies an inbound message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAlbum    MessageType = "album"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeUnknown  MessageType = "unknown"
)

// InboundMessage is a message delivered by a transport. Body is empty for pure-media messages.
type InboundMessage struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Body      string      `json:"body"`
	Type      MessageType `json:"type"`
	HasMedia  bool        `json:"has_media"`
	MediaType string      `json:"media_type,omitempty"` // MIME type
	Media     []byte      `json:"-"`
	Time      int64       `json:"time"`
}

// IsImage reports whether the message carries image bytes.
func (m InboundMessage) IsImage() bool {
	return (m.Type == MessageTypeImage || m.Type == MessageTypeAlbum) && m.HasMedia && len(m.Media) > 0
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}

// Queued creates a response for work handed to the notification outbox.
func Queued(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusQueued).WithMessage(message).WithResult(result).Build()
}

// Now is the clock used by model helpers. Tests may replace it.
var Now = func() time.Time { return time.Now().UTC() }
