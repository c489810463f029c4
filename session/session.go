// Package session drives the recurring fetch-normalize-dispatch cycle
// against the Chatter service. A Session owns the auth token, the tracked
// users, the high-water-mark timestamp and the registered observers;
// independent sessions share nothing and may run concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chattertools/chattergo/chat"
	"github.com/chattertools/chattergo/chatter"
	"github.com/chattertools/chattergo/wire"
)

// Transport is the part of the Chatter API the session needs.
// *chatter.Client satisfies it.
type Transport interface {
	GetToken(ctx context.Context, pass string) (string, error)
	CreateTell(ctx context.Context, token, username, recipient, msg string) error
	CreateChannelMessage(ctx context.Context, token, username, channel, msg string) error
	Chats(ctx context.Context, token string, usernames []string, after int64) (map[string][]wire.RawRecord, error)
	AccountData(ctx context.Context, token string) (map[string]map[string][]string, error)
}

// DefaultPollInterval is how often the session fetches new messages.
const DefaultPollInterval = 2 * time.Second

// StartFunc receives the resolved chat token once the session is ready.
type StartFunc func(token string)

// MessageFunc receives every non-empty normalized batch from the polling
// loop, in non-decreasing timestamp order across calls.
type MessageFunc func(batch []chat.Message)

// Config configures a Session. Exactly one of Token and Pass must be set:
// a long-lived token makes the session ready immediately, a short pass is
// exchanged through get_token first.
type Config struct {
	Token string
	Pass  string

	// Users are the tracked usernames. When empty they are discovered from
	// account_data at start.
	Users []string

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// Archive, when set, records every dispatched message.
	Archive *Store

	Logger zerolog.Logger
	Clock  Clock
}

// Session is a polling session against the Chatter service.
type Session struct {
	client   Transport
	pass     string
	users    []string
	interval time.Duration
	archive  *Store
	log      zerolog.Logger
	clock    Clock

	mu        sync.Mutex
	token     string
	resolved  bool
	startObs  []StartFunc
	msgObs    []MessageFunc
	tracked   []string
	highWater int64
	lastID    string
	err       error

	readyCh chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a session. It performs no I/O; call Start to authenticate and
// begin polling.
func New(client Transport, cfg Config) (*Session, error) {
	if client == nil {
		return nil, errors.New("session: client is required")
	}
	if (cfg.Token == "") == (cfg.Pass == "") {
		return nil, errors.New("session: exactly one of Token and Pass is required")
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	log := cfg.Logger.With().Str("session_id", uuid.NewString()).Logger()

	return &Session{
		client:   client,
		pass:     cfg.Pass,
		token:    cfg.Token,
		users:    cfg.Users,
		interval: interval,
		archive:  cfg.Archive,
		log:      log,
		clock:    clock,
		readyCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnStart registers a callback for the resolved auth token. Before the
// session is ready the callback is queued; once ready it is invoked
// immediately, so late registration never misses the token.
func (s *Session) OnStart(fn StartFunc) {
	s.mu.Lock()
	if !s.resolved {
		s.startObs = append(s.startObs, fn)
		s.mu.Unlock()
		return
	}
	token := s.token
	s.mu.Unlock()
	fn(token)
}

// OnMessage registers a persistent observer for future poll batches. It
// never replays history. Observers run in registration order on the
// session's polling goroutine.
func (s *Session) OnMessage(fn MessageFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgObs = append(s.msgObs, fn)
}

// Start authenticates if needed, discovers tracked users, fires the queued
// start observers and launches the polling loop. It returns once the
// session is ready; the loop runs until Stop, ctx cancellation, or an auth
// failure.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	token := s.token
	if token == "" {
		t, err := s.client.GetToken(ctx, s.pass)
		if err != nil {
			return fmt.Errorf("exchange pass: %w", err)
		}
		token = t
	}

	tracked := s.users
	if len(tracked) == 0 {
		raw, err := s.client.AccountData(ctx, token)
		if err != nil {
			return fmt.Errorf("fetch account data: %w", err)
		}
		for user := range raw {
			tracked = append(tracked, user)
		}
	}
	if len(tracked) == 0 {
		return errors.New("session: no tracked users")
	}

	s.resolve(token, tracked)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)

	s.log.Info().Strs("users", tracked).Dur("interval", s.interval).Msg("session ready")
	return nil
}

// resolve transitions the session to ready exactly once, firing the queued
// start observers in registration order.
func (s *Session) resolve(token string, tracked []string) {
	s.mu.Lock()
	s.token = token
	s.tracked = tracked
	s.resolved = true
	s.highWater = s.clock.Now().Unix()
	queued := s.startObs
	s.startObs = nil
	s.mu.Unlock()

	close(s.readyCh)
	for _, fn := range queued {
		fn(token)
	}
}

// Stop cancels the polling loop and waits for it to exit. Safe to call
// multiple times.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Done is closed when the polling loop has exited; Err reports why.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// Err returns the terminal loop error, if any. An auth failure stops the
// loop and is reported here; transient fetch failures are not.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Tell sends a direct message. Before the session is ready the call waits
// for the token to resolve, then issues the request, so the caller always
// sees the eventual result.
func (s *Session) Tell(ctx context.Context, sender, recipient, body string) error {
	token, err := s.waitReady(ctx)
	if err != nil {
		return err
	}
	return s.client.CreateTell(ctx, token, sender, recipient, body)
}

// Send broadcasts a message to a channel. Like Tell it defers until the
// session is ready.
func (s *Session) Send(ctx context.Context, sender, channel, body string) error {
	token, err := s.waitReady(ctx)
	if err != nil {
		return err
	}
	return s.client.CreateChannelMessage(ctx, token, sender, channel, body)
}

// Messages fetches and normalizes records for the given users since the
// given epoch-second timestamp, independent of the polling loop.
func (s *Session) Messages(ctx context.Context, users []string, since int64) ([]chat.Message, error) {
	token, err := s.waitReady(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Chats(ctx, token, users, since)
	if err != nil {
		return nil, err
	}
	return chat.Normalize(raw), nil
}

// Channels fetches the account's channel membership. The channel index is
// only populated when includeChannelIndex is set.
func (s *Session) Channels(ctx context.Context, includeChannelIndex bool) (chat.Membership, error) {
	token, err := s.waitReady(ctx)
	if err != nil {
		return chat.Membership{}, err
	}
	raw, err := s.client.AccountData(ctx, token)
	if err != nil {
		return chat.Membership{}, err
	}
	return chat.MapChannels(raw, includeChannelIndex), nil
}

// TrackedUsers returns the users the polling loop fetches for. Empty until
// the session is ready.
func (s *Session) TrackedUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tracked...)
}

func (s *Session) waitReady(ctx context.Context) (string, error) {
	// A resolved token stays usable after the loop exits, so the ready
	// state wins over doneCh when both channels are closed.
	select {
	case <-s.readyCh:
	default:
		select {
		case <-s.readyCh:
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.doneCh:
			if err := s.Err(); err != nil {
				return "", err
			}
			return "", errors.New("session: stopped")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// loop issues one fetch at a time: a tick that arrives while a fetch is in
// flight waits, keeping high-water-mark updates strictly ordered.
func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.doneCh)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		if err := s.pollOnce(ctx); err != nil {
			var authErr *chatter.AuthError
			if errors.As(err, &authErr) {
				s.log.Error().Err(err).Msg("token rejected, stopping poll loop")
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Msg("poll failed, retrying next tick")
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	tracked := s.tracked
	since := s.highWater
	lastID := s.lastID
	s.mu.Unlock()

	raw, err := s.client.Chats(ctx, token, tracked, since)
	if err != nil {
		return err
	}

	batch := chat.Normalize(raw)

	// The fetch window starts at the last dispatched timestamp, so a message
	// landing exactly on the boundary comes back again; drop it rather than
	// redeliver.
	if len(batch) > 0 && batch[0].ID == lastID {
		batch = batch[1:]
	}

	if len(batch) == 0 {
		s.mu.Lock()
		s.highWater = s.clock.Now().Unix()
		s.mu.Unlock()
		return nil
	}

	last := batch[len(batch)-1]
	s.mu.Lock()
	s.highWater = last.Time
	s.lastID = last.ID
	observers := append([]MessageFunc(nil), s.msgObs...)
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Record(batch); err != nil {
			s.log.Warn().Err(err).Msg("archive write failed")
		}
	}

	s.log.Debug().Int("messages", len(batch)).Int64("high_water", last.Time).Msg("dispatching batch")
	for _, fn := range observers {
		fn(batch)
	}
	return nil
}
