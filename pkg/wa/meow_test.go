package wa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func upstreamMessage(fromMe bool, pushName string, payload *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("628123", types.DefaultUserServer),
				IsFromMe: fromMe,
			},
			PushName: pushName,
		},
		Message: payload,
	}
}

func TestTranslateMapsUpstreamEvents(t *testing.T) {
	m := &meowClient{handlers: make(map[uint32]EventHandler)}

	var got []any
	m.AddEventHandler(func(evt any) { got = append(got, evt) })

	m.translate(&events.Connected{})
	m.translate(&events.PairSuccess{})
	m.translate(&events.LoggedOut{})
	m.translate(&events.StreamReplaced{})
	m.translate(&events.Disconnected{})
	m.translate(&events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable})

	assert.Equal(t, []any{
		ConnectionUpdate{State: ConnStateOpen},
		CredentialsUpdate{},
		ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseLoggedOut},
		ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseStreamReplaced},
		ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseConnectionLost},
		ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseReason(503)},
	}, got)
}

func TestRemoveEventHandler(t *testing.T) {
	m := &meowClient{handlers: make(map[uint32]EventHandler)}

	id := m.AddEventHandler(func(evt any) {})
	assert.True(t, m.RemoveEventHandler(id))
	assert.False(t, m.RemoveEventHandler(id))
}

func TestProjectUpstreamPlainText(t *testing.T) {
	raw := projectUpstream(upstreamMessage(false, "Alice", &waE2E.Message{
		Conversation: proto.String("ping"),
	}))

	assert.Equal(t, RawMessage{
		FromMe:       false,
		RemoteJID:    "628123@s.whatsapp.net",
		PushName:     "Alice",
		Conversation: "ping",
		HasContent:   true,
	}, raw)
}

func TestProjectUpstreamExtendedText(t *testing.T) {
	raw := projectUpstream(upstreamMessage(false, "Bob", &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("quoted reply"),
		},
	}))

	assert.Empty(t, raw.Conversation)
	assert.Equal(t, "quoted reply", raw.ExtendedText)
	assert.True(t, raw.HasContent)
}

func TestProjectUpstreamSelfSent(t *testing.T) {
	raw := projectUpstream(upstreamMessage(true, "", &waE2E.Message{
		Conversation: proto.String("mine"),
	}))

	assert.True(t, raw.FromMe)
}

func TestProjectUpstreamNoPayload(t *testing.T) {
	raw := projectUpstream(upstreamMessage(false, "Carol", nil))

	assert.False(t, raw.HasContent)
	assert.Empty(t, raw.Conversation)
	assert.Empty(t, raw.ExtendedText)
}

func TestProjectUpstreamMediaPayload(t *testing.T) {
	raw := projectUpstream(upstreamMessage(false, "Dave", &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{},
	}))

	assert.True(t, raw.HasContent)
	assert.Empty(t, raw.Conversation)
	assert.Empty(t, raw.ExtendedText)
}
