package flow

// Reply is the outcome of one conversation turn: either text for the transport to send,
// or a marker that the handler already delivered its response itself.
type Reply struct {
	text        string
	alreadySent bool
}

// TextReply wraps a text response. An empty text means there is nothing to send.
func TextReply(text string) Reply {
	return Reply{text: text}
}

// AlreadySent reports that the handler sent its response directly through the transport.
func AlreadySent() Reply {
	return Reply{alreadySent: true}
}

// Text returns the reply body.
func (r Reply) Text() string {
	return r.text
}

// IsAlreadySent reports whether the handler delivered the response itself.
func (r Reply) IsAlreadySent() bool {
	return r.alreadySent
}

// ShouldSend reports whether the caller must deliver Text.
func (r Reply) ShouldSend() bool {
	return !r.alreadySent && r.text != ""
}
