package wa

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// meowClient implements Client on top of whatsmeow. It translates the
// library's typed events into the narrow contract the connection manager
// consumes, and pumps fresh QR payloads out of the library's QR channel as
// ConnectionUpdate events.
type meowClient struct {
	cli *whatsmeow.Client
	log zerolog.Logger

	mu       sync.Mutex
	handlers map[uint32]EventHandler
	nextID   uint32

	qrCancel context.CancelFunc
}

// NewMeowClient builds a Client around a loaded device identity. Automatic
// reconnection inside whatsmeow is disabled; the connection manager owns the
// reconnect policy.
func NewMeowClient(device *store.Device, log zerolog.Logger) Client {
	cli := whatsmeow.NewClient(device, NewWALogger(log.With().Str("component", "whatsmeow").Logger()))
	cli.EnableAutoReconnect = false

	m := &meowClient{
		cli:      cli,
		log:      log,
		handlers: make(map[uint32]EventHandler),
	}
	cli.AddEventHandler(m.translate)
	return m
}

func (m *meowClient) AddEventHandler(h EventHandler) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers[id] = h
	return id
}

func (m *meowClient) RemoveEventHandler(id uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.handlers[id]
	delete(m.handlers, id)
	return ok
}

func (m *meowClient) Connect(ctx context.Context) error {
	if !m.Registered() {
		qrCtx, cancel := context.WithCancel(ctx)
		qrChan, err := m.cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			if !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
				return err
			}
		} else {
			m.qrCancel = cancel
			go m.pumpQR(qrChan)
		}
	}
	return m.cli.Connect()
}

func (m *meowClient) Disconnect() {
	if m.qrCancel != nil {
		m.qrCancel()
		m.qrCancel = nil
	}
	m.cli.Disconnect()
}

func (m *meowClient) Registered() bool {
	return m.cli.Store.ID != nil
}

func (m *meowClient) PairPhone(ctx context.Context, number string) (string, error) {
	return m.cli.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

func (m *meowClient) SendText(ctx context.Context, jid string, text string) error {
	target, err := types.ParseJID(jid)
	if err != nil {
		return err
	}
	_, err = m.cli.SendMessage(ctx, target, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

// pumpQR forwards fresh QR payloads. Timeouts and successes are not
// forwarded here: whatsmeow follows them with its own lifecycle events,
// which translate covers.
func (m *meowClient) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if item.Event == "code" {
			m.dispatch(ConnectionUpdate{State: ConnStateConnecting, QRCode: item.Code})
		}
	}
}

// translate maps whatsmeow events onto the client contract.
func (m *meowClient) translate(raw any) {
	switch evt := raw.(type) {
	case *events.Connected:
		m.dispatch(ConnectionUpdate{State: ConnStateOpen})
	case *events.PairSuccess:
		m.dispatch(CredentialsUpdate{})
	case *events.LoggedOut:
		m.dispatch(ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseLoggedOut})
	case *events.StreamReplaced:
		m.dispatch(ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseStreamReplaced})
	case *events.ConnectFailure:
		m.dispatch(ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseReason(int(evt.Reason))})
	case *events.Disconnected:
		m.dispatch(ConnectionUpdate{State: ConnStateClosed, ReasonCode: CloseConnectionLost})
	case *events.Message:
		m.dispatch(MessageBatch{Messages: []RawMessage{projectUpstream(evt)}})
	}
}

// dispatch invokes registered handlers sequentially in registration order so
// events reach the manager in emission order.
func (m *meowClient) dispatch(evt any) {
	m.mu.Lock()
	ids := make([]uint32, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]EventHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, m.handlers[id])
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func projectUpstream(evt *events.Message) RawMessage {
	return RawMessage{
		FromMe:       evt.Info.IsFromMe,
		RemoteJID:    evt.Info.Chat.String(),
		PushName:     evt.Info.PushName,
		Conversation: evt.Message.GetConversation(),
		ExtendedText: evt.Message.GetExtendedTextMessage().GetText(),
		HasContent:   evt.Message != nil,
	}
}
