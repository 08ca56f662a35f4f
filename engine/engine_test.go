package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/config"
	"github.com/uibridge/uibridge/engine/conversation"
	"github.com/uibridge/uibridge/engine/retry"
	"github.com/uibridge/uibridge/engine/surface"
	"github.com/uibridge/uibridge/store"
	"github.com/uibridge/uibridge/testutil"
	"github.com/uibridge/uibridge/types"
)

const engineThreadURL = "https://claude.ai/chat/0a9f5d3e-1b2c-4d5e-8f90-123456789abc"

// threadDriver behaves like the real page: any navigation lands on a URL
// already carrying the thread identifier, so discovery succeeds immediately.
type threadDriver struct {
	*testutil.FakeDriver
}

func newThreadDriver() *threadDriver {
	return &threadDriver{FakeDriver: testutil.NewFakeDriver()}
}

func (d *threadDriver) Navigate(ctx context.Context, url string) error {
	if err := d.FakeDriver.Navigate(ctx, url); err != nil {
		return err
	}
	d.URL = engineThreadURL
	return nil
}

type fakeSessions struct {
	interactive *threadDriver
	data        *testutil.FakeDriver
	opened      []*threadDriver
	connected   bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		interactive: newThreadDriver(),
		data:        testutil.NewFakeDriver(),
	}
}

func (s *fakeSessions) Connect(ctx context.Context) error { s.connected = true; return nil }
func (s *fakeSessions) Interactive() surface.Driver       { return s.interactive }
func (s *fakeSessions) DataPage() surface.Driver          { return s.data }

func (s *fakeSessions) OpenPage(ctx context.Context) (surface.Driver, error) {
	d := newThreadDriver()
	s.opened = append(s.opened, d)
	return d, nil
}

func (s *fakeSessions) EnsureLoaded(ctx context.Context, d surface.Driver) error { return nil }
func (s *fakeSessions) Reload(ctx context.Context, d surface.Driver) error       { return d.Reload(ctx) }
func (s *fakeSessions) Close() error                                             { return nil }

type pollResult struct {
	msg conversation.Message
	err error
}

type fakePoller struct {
	queue []pollResult
}

func (p *fakePoller) Await(ctx context.Context, c *conversation.Controller) (conversation.Message, error) {
	if len(p.queue) == 0 {
		return conversation.Message{}, types.NewError(types.ErrNoResponse, "poll queue empty")
	}
	head := p.queue[0]
	p.queue = p.queue[1:]
	return head.msg, head.err
}

func reply(index int, text string) pollResult {
	return pollResult{msg: conversation.Message{
		Index:  index,
		Sender: conversation.SenderAssistant,
		Text:   text,
	}}
}

// noSleepRetryer keeps the retry semantics but skips the real pauses.
func noSleepRetryer(t *testing.T, cfg *config.Config) retry.Retryer {
	t.Helper()
	return retry.NewRetryer(&retry.Policy{
		MaxAttempts:       cfg.Engine.RetryAttempts,
		DelayMin:          cfg.Engine.RetryDelayMin,
		DelayMax:          cfg.Engine.RetryDelayMax,
		RateLimitMargin:   cfg.Engine.RateLimitMargin,
		RateLimitFallback: cfg.Engine.RateLimitFallback,
	}, zap.NewNop(), retry.WithClock(time.Now, func(ctx context.Context, d time.Duration) error {
		return nil
	}))
}

func newTestEngine(t *testing.T, poller *fakePoller, opts ...Option) (*Engine, *fakeSessions) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser.MaxPages = 3

	sessions := newFakeSessions()
	opts = append([]Option{WithPoller(poller)}, opts...)
	e := New(cfg, sessions, zap.NewNop(), opts...)
	e.retryer = noSleepRetryer(t, cfg)

	require.NoError(t, e.Start(context.Background()))
	require.True(t, sessions.connected)
	return e, sessions
}

func TestCompleteHappyPath(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{reply(1, "hi there")}}
	e, sessions := newTestEngine(t, poller)

	res, err := e.Complete(context.Background(), Params{Prompt: "user: hi"})
	require.NoError(t, err)

	assert.Equal(t, "hi there", res.Reply)
	assert.False(t, res.Truncated)
	assert.Equal(t, "claude-3-5-sonnet-20240620", res.Model)

	// the prompt went through the interactive page composer
	injected := ""
	for _, c := range sessions.interactive.Calls() {
		if c.Method == "Fill" {
			injected = c.Text
		}
	}
	assert.Equal(t, "user: hi", injected)
}

func TestCompleteRejectsUnknownModel(t *testing.T) {
	e, sessions := newTestEngine(t, &fakePoller{})

	_, err := e.Complete(context.Background(), Params{Prompt: "user: hi", Model: "gpt-4"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidModel, types.GetErrorCode(err))

	// rejected before the browser was touched
	assert.Empty(t, sessions.interactive.Calls())
}

func TestCompleteRetriesRetryableFailure(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{
		{err: types.NewError(types.ErrNoResponse, "nothing yet").WithRetryable(true)},
		reply(1, "eventually"),
	}}
	e, sessions := newTestEngine(t, poller)

	res, err := e.Complete(context.Background(), Params{Prompt: "user: hi"})
	require.NoError(t, err)
	assert.Equal(t, "eventually", res.Reply)

	// the failed attempt recovered through a reload
	assert.GreaterOrEqual(t, sessions.interactive.CallCount("Reload"), 1)
}

func TestCompleteResumesAfterRateLimit(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{
		{err: types.NewError(types.ErrRateLimited, "throttled").
			WithRetryable(true).
			WithResetAt(time.Now().Add(time.Hour))},
		reply(1, "after the wait"),
	}}
	e, sessions := newTestEngine(t, poller)

	res, err := e.Complete(context.Background(), Params{Prompt: "user: hi"})
	require.NoError(t, err)
	assert.Equal(t, "after the wait", res.Reply)

	// rate limiting leaves the page alone; no recovery reload
	assert.Equal(t, 0, sessions.interactive.CallCount("Reload"))
}

func TestCompleteTruncatesReply(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{reply(1, "one two three four")}}
	e, _ := newTestEngine(t, poller)

	res, err := e.Complete(context.Background(), Params{Prompt: "user: hi", MaxTokens: 2})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, "one two [truncated]", res.Reply)
}

func TestModelPinnedAcrossSends(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{reply(1, "first"), reply(2, "second")}}
	e, sessions := newTestEngine(t, poller)

	_, err := e.Complete(context.Background(), Params{Prompt: "user: a", Model: "claude-2.1"})
	require.NoError(t, err)
	_, err = e.Complete(context.Background(), Params{Prompt: "user: b", Model: "claude-2.1"})
	require.NoError(t, err)

	picker := surface.DefaultSelectors().ModelPicker
	clicks := 0
	for _, c := range sessions.interactive.Calls() {
		if c.Method == "Click" && c.Arg == picker {
			clicks++
		}
	}
	assert.Equal(t, 1, clicks, "picker driven once, not per send")
}

func TestModelNameCasingDoesNotRestartThread(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{reply(1, "first"), reply(2, "second")}}
	e, sessions := newTestEngine(t, poller)

	_, err := e.Complete(context.Background(), Params{Prompt: "user: a", Model: "claude-2.1"})
	require.NoError(t, err)

	res, err := e.Complete(context.Background(), Params{Prompt: "user: b", Model: "CLAUDE-2.1"})
	require.NoError(t, err)
	assert.Equal(t, "claude-2.1", res.Model, "allowlist casing is authoritative")

	picker := surface.DefaultSelectors().ModelPicker
	clicks := 0
	for _, c := range sessions.interactive.Calls() {
		if c.Method == "Click" && c.Arg == picker {
			clicks++
		}
	}
	assert.Equal(t, 1, clicks, "a cased alias must not re-drive the picker")
}

func TestNamedConversationsShareThePageBudget(t *testing.T) {
	poller := &fakePoller{queue: []pollResult{reply(1, "a"), reply(1, "b")}}
	e, sessions := newTestEngine(t, poller)

	_, err := e.Complete(context.Background(), Params{Prompt: "user: a"})
	require.NoError(t, err)

	_, err = e.Complete(context.Background(), Params{Prompt: "user: b", Conversation: "side"})
	require.NoError(t, err)
	require.Len(t, sessions.opened, 1)

	// MaxPages 3 leaves room for exactly one named thread
	_, err = e.Complete(context.Background(), Params{Prompt: "user: c", Conversation: "another"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Len(t, sessions.opened, 1)
}

func TestHistoryUnknownConversation(t *testing.T) {
	e, _ := newTestEngine(t, &fakePoller{})

	_, _, err := e.History(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestCompleteArchivesExchange(t *testing.T) {
	archive, err := store.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "archive.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = archive.Close() })

	poller := &fakePoller{queue: []pollResult{reply(1, "archived reply")}}
	e, _ := newTestEngine(t, poller, WithArchive(archive))

	_, err = e.Complete(context.Background(), Params{Prompt: "user: hi"})
	require.NoError(t, err)

	rows, err := archive.ByConversation(context.Background(), DefaultConversation, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "user: hi", rows[0].Prompt)
	assert.Equal(t, "archived reply", rows[0].Reply)
	assert.Equal(t, 2, rows[0].PromptTokens)
	assert.Equal(t, 2, rows[0].CompletionTokens)
}

func TestModels(t *testing.T) {
	e, _ := newTestEngine(t, &fakePoller{})

	models := e.Models()
	assert.Contains(t, models, "claude-2.1")

	// the returned slice is a copy
	models[0] = "mutated"
	assert.NotContains(t, e.Models(), "mutated")
}
