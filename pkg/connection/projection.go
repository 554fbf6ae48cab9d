package connection

import "github.com/aryo/wabridge/pkg/wa"

const (
	// unknownUserName stands in when a message carries no push name.
	unknownUserName = "Unknown User"
	// nonTextFallback stands in when no plain text field can be extracted.
	nonTextFallback = "Media/Unknown"
)

// Message is the observer-facing projection of one inbound message.
type Message struct {
	RemoteJID string `json:"remoteJid"`
	PushName  string `json:"pushName"`
	Text      string `json:"text"`
}

// Project turns a raw inbound message into its observer projection. It
// reports false for messages that must not be forwarded: self-sent ones and
// protocol events without a message payload.
func Project(raw wa.RawMessage) (Message, bool) {
	if raw.FromMe || !raw.HasContent {
		return Message{}, false
	}

	text := raw.Conversation
	if text == "" {
		text = raw.ExtendedText
	}
	if text == "" {
		text = nonTextFallback
	}

	name := raw.PushName
	if name == "" {
		name = unknownUserName
	}

	return Message{
		RemoteJID: raw.RemoteJID,
		PushName:  name,
		Text:      text,
	}, true
}
