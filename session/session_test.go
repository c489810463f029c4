package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chattertools/chattergo/chat"
	"github.com/chattertools/chattergo/chatter"
	"github.com/chattertools/chattergo/wire"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:  time.Unix(1000, 0),
		tick: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	return &fakeTicker{c: c.tick}
}

// Tick blocks until the polling loop receives it.
func (c *fakeClock) Tick() {
	c.tick <- time.Time{}
}

type fakeTicker struct {
	c chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()                  {}

type chatsResult struct {
	recs map[string][]wire.RawRecord
	err  error
}

type tellCall struct {
	token, username, recipient, msg string
}

type fakeTransport struct {
	mu sync.Mutex

	token     string
	tokenGate chan struct{} // when set, GetToken blocks until closed
	exchanges int

	account map[string]map[string][]string

	chatsQueue []chatsResult
	afters     []int64
	chatsCh    chan struct{}

	tells []tellCall
	sends []tellCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		token:   "tok-1",
		account: map[string]map[string][]string{"alice": {"general": {"alice"}}},
		chatsCh: make(chan struct{}, 16),
	}
}

func (f *fakeTransport) GetToken(ctx context.Context, pass string) (string, error) {
	if f.tokenGate != nil {
		select {
		case <-f.tokenGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	return f.token, nil
}

func (f *fakeTransport) CreateTell(ctx context.Context, token, username, recipient, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tells = append(f.tells, tellCall{token, username, recipient, msg})
	return nil
}

func (f *fakeTransport) CreateChannelMessage(ctx context.Context, token, username, channel, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, tellCall{token, username, channel, msg})
	return nil
}

func (f *fakeTransport) Chats(ctx context.Context, token string, usernames []string, after int64) (map[string][]wire.RawRecord, error) {
	f.mu.Lock()
	f.afters = append(f.afters, after)
	var res chatsResult
	if len(f.chatsQueue) > 0 {
		res = f.chatsQueue[0]
		f.chatsQueue = f.chatsQueue[1:]
	}
	f.mu.Unlock()
	f.chatsCh <- struct{}{}
	return res.recs, res.err
}

func (f *fakeTransport) AccountData(ctx context.Context, token string) (map[string]map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

func (f *fakeTransport) queueChats(recs map[string][]wire.RawRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatsQueue = append(f.chatsQueue, chatsResult{recs: recs, err: err})
}

func (f *fakeTransport) recordedAfters() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.afters...)
}

func waitChats(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case <-f.chatsCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chats fetch")
	}
}

func waitBatch(t *testing.T, ch <-chan []chat.Message) []chat.Message {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func newTestSession(t *testing.T, transport *fakeTransport, cfg Config) *Session {
	t.Helper()
	if cfg.Clock == nil {
		cfg.Clock = newFakeClock()
	}
	if cfg.Token == "" && cfg.Pass == "" {
		cfg.Token = "tok-1"
	}
	s, err := New(transport, cfg)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresExactlyOneCredential(t *testing.T) {
	transport := newFakeTransport()

	_, err := New(transport, Config{})
	require.Error(t, err)

	_, err = New(transport, Config{Token: "tok", Pass: "abcde"})
	require.Error(t, err)

	_, err = New(nil, Config{Token: "tok"})
	require.Error(t, err)
}

func TestStart_ExchangesPassAndFiresStartObservers(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSession(t, transport, Config{Pass: "abcde", Users: []string{"alice"}})
	defer s.Stop()

	var order []string
	s.OnStart(func(token string) {
		require.Equal(t, "tok-1", token)
		order = append(order, "first")
	})
	s.OnStart(func(token string) {
		order = append(order, "second")
	})

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, []string{"first", "second"}, order)
	require.Equal(t, 1, transport.exchanges)

	// Late registration fires immediately with the resolved token.
	fired := false
	s.OnStart(func(token string) {
		require.Equal(t, "tok-1", token)
		fired = true
	})
	require.True(t, fired)
}

func TestStart_DiscoversTrackedUsers(t *testing.T) {
	transport := newFakeTransport()
	transport.account = map[string]map[string][]string{
		"alice": {"general": {"alice", "bob"}},
		"bob":   {"general": {"alice", "bob"}},
	}
	s := newTestSession(t, transport, Config{Token: "tok-1"})
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	require.ElementsMatch(t, []string{"alice", "bob"}, s.TrackedUsers())
}

func TestPoll_DispatchesBatchAndAdvancesHighWater(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {
			{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"},
			{ID: "b", Time: 1200, FromUser: "bob", Msg: "again", Channel: "general"},
		},
	}, nil)

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})
	defer s.Stop()

	batches := make(chan []chat.Message, 4)
	s.OnMessage(func(batch []chat.Message) { batches <- batch })

	require.NoError(t, s.Start(context.Background()))

	clock.Tick()
	waitChats(t, transport)
	batch := waitBatch(t, batches)
	require.Len(t, batch, 2)
	require.Equal(t, "a", batch[0].ID)
	require.Equal(t, "b", batch[1].ID)

	// Next fetch starts at the last dispatched timestamp.
	clock.Tick()
	waitChats(t, transport)
	afters := transport.recordedAfters()
	require.Equal(t, int64(1000), afters[0]) // initial high-water-mark
	require.Equal(t, int64(1200), afters[1])
}

func TestPoll_DropsOverlapBoundaryDuplicate(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {
			{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"},
		},
	}, nil)
	// The second window overlaps: "a" comes back, followed by a new message.
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {
			{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"},
			{ID: "c", Time: 1300, FromUser: "bob", Msg: "new", Channel: "general"},
		},
	}, nil)

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})
	defer s.Stop()

	batches := make(chan []chat.Message, 4)
	s.OnMessage(func(batch []chat.Message) { batches <- batch })

	require.NoError(t, s.Start(context.Background()))

	clock.Tick()
	waitChats(t, transport)
	first := waitBatch(t, batches)
	require.Len(t, first, 1)
	require.Equal(t, "a", first[0].ID)

	clock.Tick()
	waitChats(t, transport)
	second := waitBatch(t, batches)
	require.Len(t, second, 1)
	require.Equal(t, "c", second[0].ID)
}

func TestPoll_DuplicateOnlyFetchDispatchesNothing(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"}},
	}, nil)
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"}},
	}, nil)

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})
	defer s.Stop()

	batches := make(chan []chat.Message, 4)
	s.OnMessage(func(batch []chat.Message) { batches <- batch })

	require.NoError(t, s.Start(context.Background()))

	clock.Tick()
	waitChats(t, transport)
	waitBatch(t, batches)

	clock.Tick()
	waitChats(t, transport)
	select {
	case batch := <-batches:
		t.Fatalf("unexpected dispatch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPoll_EmptyFetchAdvancesHighWaterToNow(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})
	defer s.Stop()

	dispatched := make(chan []chat.Message, 1)
	s.OnMessage(func(batch []chat.Message) { dispatched <- batch })

	require.NoError(t, s.Start(context.Background()))

	clock.Set(time.Unix(5000, 0))
	clock.Tick()
	waitChats(t, transport)

	clock.Tick()
	waitChats(t, transport)

	afters := transport.recordedAfters()
	require.Equal(t, int64(1000), afters[0])
	require.Equal(t, int64(5000), afters[1])
	require.Empty(t, dispatched)
}

func TestPoll_AuthFailureStopsLoop(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.queueChats(nil, &chatter.AuthError{Message: "expired or invalid token"})

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})

	require.NoError(t, s.Start(context.Background()))

	clock.Tick()
	waitChats(t, transport)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on auth failure")
	}

	var authErr *chatter.AuthError
	require.ErrorAs(t, s.Err(), &authErr)
}

func TestPoll_TransientFailureKeepsLoopAlive(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport()
	transport.queueChats(nil, errors.New("connection reset"))
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {{ID: "a", Time: 1100, FromUser: "bob", Msg: "hi", Channel: "general"}},
	}, nil)

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}, Clock: clock})
	defer s.Stop()

	batches := make(chan []chat.Message, 1)
	s.OnMessage(func(batch []chat.Message) { batches <- batch })

	require.NoError(t, s.Start(context.Background()))

	clock.Tick()
	waitChats(t, transport)

	clock.Tick()
	waitChats(t, transport)
	batch := waitBatch(t, batches)
	require.Equal(t, "a", batch[0].ID)
	require.NoError(t, s.Err())
}

func TestTell_DeferredUntilReady(t *testing.T) {
	transport := newFakeTransport()
	transport.tokenGate = make(chan struct{})

	s := newTestSession(t, transport, Config{Pass: "abcde", Users: []string{"alice"}})
	defer s.Stop()

	tellDone := make(chan error, 1)
	go func() {
		tellDone <- s.Tell(context.Background(), "alice", "bob", "hello")
	}()

	startDone := make(chan error, 1)
	go func() {
		startDone <- s.Start(context.Background())
	}()

	// The tell must not go out before the token resolves.
	select {
	case err := <-tellDone:
		t.Fatalf("tell completed before ready: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(transport.tokenGate)
	require.NoError(t, <-startDone)
	require.NoError(t, <-tellDone)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.tells, 1)
	require.Equal(t, tellCall{"tok-1", "alice", "bob", "hello"}, transport.tells[0])
}

func TestTell_AfterStop(t *testing.T) {
	transport := newFakeTransport()

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}})
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	// The token resolved before the stop, so sends still go through.
	require.NoError(t, s.Tell(context.Background(), "alice", "bob", "late"))

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.tells, 1)
	require.Equal(t, tellCall{"tok-1", "alice", "bob", "late"}, transport.tells[0])
}

func TestMessages_Passthrough(t *testing.T) {
	transport := newFakeTransport()
	transport.queueChats(map[string][]wire.RawRecord{
		"alice": {{ID: "a", Time: 1100, FromUser: "bob", ToUser: "alice", Msg: "psst"}},
	}, nil)

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}})
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	out, err := s.Messages(context.Background(), []string{"alice"}, 42)
	waitChats(t, transport)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, chat.KindTell, out[0].Kind)

	afters := transport.recordedAfters()
	require.Equal(t, int64(42), afters[len(afters)-1])
}

func TestChannels_Passthrough(t *testing.T) {
	transport := newFakeTransport()
	transport.account = map[string]map[string][]string{
		"alice": {"general": {"alice", "bob"}},
	}

	s := newTestSession(t, transport, Config{Token: "tok-1", Users: []string{"alice"}})
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	m, err := s.Channels(context.Background(), true)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"general"}, m.Channels("alice"))
	require.ElementsMatch(t, []string{"alice", "bob"}, m.Users("general"))
}
