package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saravenpi/chatterbox/internal/gateway"
	"github.com/saravenpi/chatterbox/internal/models"
	"github.com/saravenpi/chatterbox/internal/pubsub"
	"github.com/saravenpi/chatterbox/internal/transport"
)

var (
	alice = models.Contact{ID: "A", FullName: "Alice"}
	bob   = models.Contact{ID: "B", FullName: "Bob"}
	carol = models.Contact{ID: "C", FullName: "Carol"}
)

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *recordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ListContacts(ctx context.Context) ([]models.Contact, error) {
	args := m.Called(ctx)
	contacts, _ := args.Get(0).([]models.Contact)
	return contacts, args.Error(1)
}

func (m *mockGateway) ListMessages(ctx context.Context, contactID string) ([]models.Message, error) {
	args := m.Called(ctx, contactID)
	messages, _ := args.Get(0).([]models.Message)
	return messages, args.Error(1)
}

func (m *mockGateway) SendMessage(ctx context.Context, contactID string, payload models.SendPayload) (models.Message, error) {
	args := m.Called(ctx, contactID, payload)
	msg, _ := args.Get(0).(models.Message)
	return msg, args.Error(1)
}

type fixture struct {
	gw       *gateway.Memory
	tr       *transport.Loopback
	notifier *recordingNotifier
	store    *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gw:       gateway.NewMemory("me", alice, bob, carol),
		tr:       transport.NewLoopback(),
		notifier: &recordingNotifier{},
	}
	f.store = New(f.gw, f.tr, WithNotifier(f.notifier))
	t.Cleanup(f.store.Close)
	return f
}

func (f *fixture) push(t *testing.T, msg models.Message) {
	t.Helper()
	_, err := f.tr.Emit(transport.EventNewMessage, msg)
	require.NoError(t, err)
}

func incoming(id, sender, content string) models.Message {
	return models.Message{ID: id, SenderID: sender, ReceiverID: "me", Content: content}
}

// Unread, select, load, live append and routing to another contact, in one session.
func TestStore_LiveMessageRouting(t *testing.T) {
	f := newFixture(t)
	f.gw.Record(incoming("h1", "A", "earlier"))
	f.store.SubscribeToTransport()

	f.push(t, incoming("m1", "A", "ping"))
	snap := f.store.Snapshot()
	require.Equal(t, map[string]int{"A": 1}, snap.Unread)
	require.Empty(t, snap.Messages)
	require.Equal(t, []string{"New message received"}, f.notifier.Infos())

	f.store.SelectContact(alice)
	require.Empty(t, f.store.Snapshot().Unread)

	f.store.LoadConversation(context.Background(), "A")
	snap = f.store.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "earlier", snap.Messages[0].Content)

	f.push(t, incoming("m2", "A", "hi"))
	snap = f.store.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "hi", snap.Messages[1].Content)
	require.Empty(t, snap.Unread)

	f.push(t, incoming("m3", "B", "hey"))
	snap = f.store.Snapshot()
	require.Equal(t, map[string]int{"B": 1}, snap.Unread)
	require.Len(t, snap.Messages, 2)
}

func TestStore_SendFailureLeavesBufferUnchanged(t *testing.T) {
	f := newFixture(t)
	f.gw.Record(incoming("h1", "A", "earlier"))
	f.store.SelectContact(alice)
	f.store.LoadConversation(context.Background(), "A")
	before := f.store.Snapshot().Messages

	f.gw.Fail(gateway.OpSendMessage, errors.New("connection refused"))
	f.store.SendMessage(context.Background(), models.SendPayload{Content: "hello"})

	require.Equal(t, before, f.store.Snapshot().Messages)
	require.Equal(t, []string{"Failed to send message"}, f.notifier.Errors())
}

func TestStore_SendFailureUsesServerMessage(t *testing.T) {
	f := newFixture(t)
	f.store.SelectContact(alice)
	f.gw.Fail(gateway.OpSendMessage, &gateway.Error{Op: gateway.OpSendMessage, Status: 413, Message: "Image too large"})

	f.store.SendMessage(context.Background(), models.SendPayload{Content: "hello"})

	require.Empty(t, f.store.Snapshot().Messages)
	require.Equal(t, []string{"Image too large"}, f.notifier.Errors())
}

func TestStore_ResubscribeKeepsSingleHandler(t *testing.T) {
	f := newFixture(t)

	f.store.UnsubscribeFromTransport()
	f.store.SubscribeToTransport()
	f.store.SubscribeToTransport()

	f.push(t, incoming("m1", "C", "yo"))

	require.Equal(t, 1, f.store.Snapshot().Unread["C"])
	require.True(t, f.store.Subscribed())
	require.Equal(t, 2, f.tr.Count(), "newMessage and getOnlineUsers")
}

func TestStore_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeToTransport()
	f.store.UnsubscribeFromTransport()
	f.store.UnsubscribeFromTransport()

	handled, err := f.tr.Emit(transport.EventNewMessage, incoming("m1", "C", "yo"))
	require.NoError(t, err)
	require.False(t, handled)
	require.False(t, f.store.Subscribed())
	require.Empty(t, f.store.Snapshot().Unread)
}

func TestStore_SendAppendsReturnedMessage(t *testing.T) {
	f := newFixture(t)
	f.store.SelectContact(bob)

	f.store.SendMessage(context.Background(), models.SendPayload{Content: "hello"})

	snap := f.store.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "me", snap.Messages[0].SenderID)
	require.Equal(t, "B", snap.Messages[0].ReceiverID)
	require.Empty(t, f.notifier.Errors())
}

func TestStore_SendWithoutSelectionFailsSafely(t *testing.T) {
	gw := &mockGateway{}
	notifier := &recordingNotifier{}
	store := New(gw, transport.NewLoopback(), WithNotifier(notifier))
	defer store.Close()

	store.SendMessage(context.Background(), models.SendPayload{Content: "hello"})

	gw.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	require.Empty(t, store.Snapshot().Messages)
	require.Equal(t, []string{"Select a contact first"}, notifier.Errors())
}

func TestStore_SendEmptyPayloadRejected(t *testing.T) {
	gw := &mockGateway{}
	notifier := &recordingNotifier{}
	store := New(gw, transport.NewLoopback(), WithNotifier(notifier))
	defer store.Close()

	store.SelectContact(alice)
	store.SendMessage(context.Background(), models.SendPayload{Content: "  \n"})

	gw.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
	require.Equal(t, []string{"Message is empty"}, notifier.Errors())
}

func TestStore_SendResultDroppedAfterSelectionMoves(t *testing.T) {
	gw := &mockGateway{}
	store := New(gw, transport.NewLoopback())
	defer store.Close()

	store.SelectContact(alice)
	payload := models.SendPayload{Content: "hello"}
	gw.On("SendMessage", mock.Anything, "A", payload).
		Run(func(mock.Arguments) { store.SelectContact(bob) }).
		Return(models.Message{ID: "s1", SenderID: "me", ReceiverID: "A"}, nil)

	store.SendMessage(context.Background(), payload)

	snap := store.Snapshot()
	require.Equal(t, "B", snap.SelectedID())
	require.Empty(t, snap.Messages)
}

func TestStore_LoadContacts(t *testing.T) {
	f := newFixture(t)

	f.store.LoadContacts(context.Background())

	snap := f.store.Snapshot()
	require.Equal(t, []models.Contact{alice, bob, carol}, snap.Contacts)
	require.False(t, snap.ContactsLoading)
}

func TestStore_LoadContactsFailureKeepsPreviousList(t *testing.T) {
	f := newFixture(t)
	f.store.LoadContacts(context.Background())

	f.gw.Fail(gateway.OpListContacts, &gateway.Error{Op: gateway.OpListContacts, Status: 401, Message: "Unauthorized"})
	f.store.LoadContacts(context.Background())

	snap := f.store.Snapshot()
	require.Len(t, snap.Contacts, 3)
	require.False(t, snap.ContactsLoading)
	require.Equal(t, []string{"Unauthorized"}, f.notifier.Errors())
}

func TestStore_LoadingFlagsSetDuringCall(t *testing.T) {
	gw := &mockGateway{}
	store := New(gw, transport.NewLoopback())
	defer store.Close()
	store.SelectContact(alice)

	var duringContacts, duringMessages bool
	gw.On("ListContacts", mock.Anything).
		Run(func(mock.Arguments) { duringContacts = store.Snapshot().ContactsLoading }).
		Return(nil, errors.New("boom"))
	gw.On("ListMessages", mock.Anything, "A").
		Run(func(mock.Arguments) { duringMessages = store.Snapshot().MessagesLoading }).
		Return([]models.Message{}, nil)

	store.LoadContacts(context.Background())
	store.LoadConversation(context.Background(), "A")

	require.True(t, duringContacts)
	require.True(t, duringMessages)
	snap := store.Snapshot()
	require.False(t, snap.ContactsLoading)
	require.False(t, snap.MessagesLoading)
}

func TestStore_LoadConversationFailureKeepsBuffer(t *testing.T) {
	f := newFixture(t)
	f.gw.Record(incoming("h1", "A", "earlier"))
	f.store.SelectContact(alice)
	f.store.LoadConversation(context.Background(), "A")

	f.gw.Fail(gateway.OpListMessages, errors.New("timeout"))
	f.store.LoadConversation(context.Background(), "A")

	snap := f.store.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.False(t, snap.MessagesLoading)
	require.Equal(t, []string{"Error fetching messages"}, f.notifier.Errors())
}

func TestStore_SelectContactReplacesBuffer(t *testing.T) {
	f := newFixture(t)
	f.gw.Record(incoming("h1", "A", "from alice"))
	f.store.SelectContact(alice)
	f.store.LoadConversation(context.Background(), "A")
	require.Len(t, f.store.Snapshot().Messages, 1)

	f.store.SelectContact(alice)
	require.Len(t, f.store.Snapshot().Messages, 1, "reselecting keeps the buffer")

	f.store.SelectContact(bob)
	require.Empty(t, f.store.Snapshot().Messages)

	f.store.ClearSelection()
	snap := f.store.Snapshot()
	require.Nil(t, snap.Selected)
	require.Empty(t, snap.Messages)
}

func TestStore_LoadConversationWithoutSelectionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.gw.Record(incoming("h1", "A", "from alice"))

	f.store.LoadConversation(context.Background(), "A")

	snap := f.store.Snapshot()
	require.Empty(t, snap.Messages)
	require.False(t, snap.MessagesLoading)
}

func TestStore_IncrementAndClearUnread(t *testing.T) {
	f := newFixture(t)

	for range 12 {
		f.store.IncrementUnread("B")
	}
	require.Equal(t, 12, f.store.Snapshot().UnreadFor("B"))

	f.store.ClearUnread("B")
	_, present := f.store.Snapshot().Unread["B"]
	require.False(t, present)

	f.store.SelectContact(alice)
	f.store.IncrementUnread("A")
	require.Equal(t, 0, f.store.Snapshot().UnreadFor("A"), "selected contact never accrues unread")
}

func TestStore_StaleConversationResponseDropped(t *testing.T) {
	gw := &mockGateway{}
	store := New(gw, transport.NewLoopback())
	defer store.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.On("ListMessages", mock.Anything, "A").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]models.Message{incoming("a1", "A", "old")}, nil).Once()
	gw.On("ListMessages", mock.Anything, "B").
		Return([]models.Message{incoming("b1", "B", "fresh")}, nil).Once()

	store.SelectContact(alice)
	done := make(chan struct{})
	go func() {
		store.LoadConversation(context.Background(), "A")
		close(done)
	}()
	<-entered

	store.SelectContact(bob)
	store.LoadConversation(context.Background(), "B")
	close(release)
	<-done

	snap := store.Snapshot()
	require.Equal(t, "B", snap.SelectedID())
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "b1", snap.Messages[0].ID)
	require.False(t, snap.MessagesLoading)
}

func TestStore_LiveMessageSurvivesSlowFetch(t *testing.T) {
	gw := &mockGateway{}
	tr := transport.NewLoopback()
	store := New(gw, tr)
	defer store.Close()
	store.SubscribeToTransport()

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.On("ListMessages", mock.Anything, "A").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]models.Message{incoming("h1", "A", "history")}, nil)

	store.SelectContact(alice)
	done := make(chan struct{})
	go func() {
		store.LoadConversation(context.Background(), "A")
		close(done)
	}()
	<-entered

	_, err := tr.Emit(transport.EventNewMessage, incoming("live", "A", "just now"))
	require.NoError(t, err)
	require.Len(t, store.Snapshot().Messages, 1)

	close(release)
	<-done

	snap := store.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "h1", snap.Messages[0].ID)
	require.Equal(t, "live", snap.Messages[1].ID)
}

func TestStore_LiveMessageAlreadyInFetchNotDuplicated(t *testing.T) {
	gw := &mockGateway{}
	tr := transport.NewLoopback()
	store := New(gw, tr)
	defer store.Close()
	store.SubscribeToTransport()

	entered := make(chan struct{})
	release := make(chan struct{})
	live := incoming("live", "A", "just now")
	gw.On("ListMessages", mock.Anything, "A").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]models.Message{incoming("h1", "A", "history"), live}, nil)

	store.SelectContact(alice)
	done := make(chan struct{})
	go func() {
		store.LoadConversation(context.Background(), "A")
		close(done)
	}()
	<-entered

	_, err := tr.Emit(transport.EventNewMessage, live)
	require.NoError(t, err)
	close(release)
	<-done

	require.Len(t, store.Snapshot().Messages, 2)
}

func TestStore_OnlineUsers(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeToTransport()

	_, err := f.tr.Emit(transport.EventOnlineUsers, []string{"A", "C"})
	require.NoError(t, err)

	snap := f.store.Snapshot()
	require.True(t, snap.IsOnline("A"))
	require.False(t, snap.IsOnline("B"))
	require.True(t, snap.IsOnline("C"))
}

func TestStore_MalformedPayloadIgnored(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeToTransport()

	handled, err := f.tr.Emit(transport.EventNewMessage, "not a message")
	require.NoError(t, err)
	require.True(t, handled)
	require.Empty(t, f.store.Snapshot().Unread)
}

func TestStore_PublishesChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := pubsub.NewContinuousListener[Snapshot](ctx, f.store)
	f.store.SelectContact(alice)

	event, ok := listener.Listen()().(pubsub.Event[Snapshot])
	require.True(t, ok)
	require.Equal(t, EventSelection, event.Type)
	require.Equal(t, "A", event.Payload.SelectedID())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	f := newFixture(t)
	f.store.IncrementUnread("B")

	snap := f.store.Snapshot()
	snap.Unread["B"] = 99

	require.Equal(t, 1, f.store.Snapshot().UnreadFor("B"))
}

func TestStore_CloseDiscardsStateAndStopsWork(t *testing.T) {
	f := newFixture(t)
	f.store.SubscribeToTransport()
	f.store.LoadContacts(context.Background())
	f.store.IncrementUnread("B")
	changes := f.store.Subscribe(context.Background())

	f.store.Close()
	f.store.Close()

	snap := f.store.Snapshot()
	require.Empty(t, snap.Contacts)
	require.Empty(t, snap.Unread)
	require.False(t, snap.Subscribed)
	require.Equal(t, 0, f.tr.Count())

	f.store.LoadContacts(context.Background())
	require.Empty(t, f.store.Snapshot().Contacts)

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestStore_NotifierFunc(t *testing.T) {
	type notice struct {
		msg     string
		isError bool
	}
	var got []notice
	tr := transport.NewLoopback()
	store := New(gateway.NewMemory("me", alice), tr, WithNotifier(NotifierFunc(func(msg string, isError bool) {
		got = append(got, notice{msg, isError})
	})))
	defer store.Close()
	store.SubscribeToTransport()

	store.SendMessage(context.Background(), models.SendPayload{Content: "hi"})
	_, err := tr.Emit(transport.EventNewMessage, incoming("m1", "A", "yo"))
	require.NoError(t, err)

	require.Equal(t, []notice{
		{"Select a contact first", true},
		{"New message received", false},
	}, got)
}

func TestStore_SharedBroker(t *testing.T) {
	broker := pubsub.NewBroker[Snapshot]()
	store := New(gateway.NewMemory("me", alice), transport.NewLoopback(), WithBroker(broker))
	events := broker.Subscribe(context.Background())

	store.IncrementUnread("A")

	event := <-events
	require.Equal(t, EventUnread, event.Type)
	require.Equal(t, 1, event.Payload.UnreadFor("A"))

	store.Close()
	require.Equal(t, 0, broker.SubscriberCount())
}
