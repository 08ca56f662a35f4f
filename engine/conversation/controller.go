package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/engine/retry"
	"github.com/uibridge/uibridge/engine/surface"
	"github.com/uibridge/uibridge/types"
)

// PageSession is the slice of the session connector a controller needs.
type PageSession interface {
	EnsureLoaded(ctx context.Context, d surface.Driver) error
	Reload(ctx context.Context, d surface.Driver) error
}

// Poller recognizes the assistant's reply to the message just sent. Await
// blocks until a message authored by the assistant with index greater than
// the thread's high-water mark is complete, or the attempt budget runs out.
type Poller interface {
	Await(ctx context.Context, c *Controller) (Message, error)
}

// ControllerParams collects the controller's collaborators.
type ControllerParams struct {
	Name      string
	Config    Config
	Page      surface.Driver
	Data      surface.Driver
	Session   PageSession
	Poller    Poller
	Selectors surface.Selectors
	Logger    *zap.Logger
}

// Controller drives one conversation thread. All operations serialize on an
// internal mutex; the high-water advance and the reply return therefore
// happen atomically with respect to any concurrent operation on the thread.
type Controller struct {
	cfg    Config
	sel    surface.Selectors
	page   surface.Driver
	data   surface.Driver
	sess   PageSession
	poller Poller
	logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu              sync.Mutex
	state           State
	conv            Conversation
	cooldownPending bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSleep overrides the sleeper used for cooldowns and discovery pauses.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ControllerOption {
	return func(c *Controller) { c.sleep = fn }
}

// NewController creates a Controller in the uninitialized state.
func NewController(p ControllerParams, opts ...ControllerOption) *Controller {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Config.IDAttempts <= 0 {
		p.Config.IDAttempts = 5
	}
	if p.Config.IDInterval <= 0 {
		p.Config.IDInterval = 500 * time.Millisecond
	}
	if p.Config.NavigationTimeout <= 0 {
		p.Config.NavigationTimeout = 60 * time.Second
	}
	if p.Config.InputTimeout <= 0 {
		p.Config.InputTimeout = 15 * time.Second
	}

	c := &Controller{
		cfg:    p.Config,
		sel:    p.Selectors,
		page:   p.Page,
		data:   p.Data,
		sess:   p.Session,
		poller: p.Poller,
		logger: logger.With(
			zap.String("component", "conversation"),
			zap.String("thread", p.Name),
		),
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
		state: StateUninitialized,
		conv:  Conversation{Name: p.Name},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the thread record.
func (c *Controller) Snapshot() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state transition",
		zap.Stringer("from", c.state),
		zap.Stringer("to", s),
	)
	c.state = s
}

// Start opens a fresh thread: navigate to the new-chat URL, wait for the
// composer, and reset the thread record.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	c.setState(StateStarting)

	url := c.cfg.BaseURL + c.cfg.NewChatPath
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	err := c.page.Navigate(navCtx, url)
	cancel()
	if err != nil {
		c.setState(StateError)
		return types.NewError(types.ErrStartFailed, "open new thread").
			WithCause(err).WithRetryable(true)
	}
	if err := c.sess.EnsureLoaded(ctx, c.page); err != nil {
		c.setState(StateError)
		return types.NewError(types.ErrStartFailed, "settle new thread").
			WithCause(err).WithRetryable(true)
	}

	if err := c.waitInput(ctx); err != nil {
		// One reload before giving the attempt up; the composer missing
		// usually means a half-rendered page.
		c.logger.Warn("composer missing after start, reloading", zap.Error(err))
		if rerr := c.sess.Reload(ctx, c.page); rerr == nil {
			err = c.waitInput(ctx)
		}
		if err != nil {
			c.setState(StateError)
			return types.NewError(types.ErrStartFailed, "composer not found on new thread").
				WithCause(err).WithRetryable(true)
		}
	}

	c.conv.RemoteID = ""
	c.conv.HighWater = 0
	c.conv.Sent = 0
	c.cooldownPending = false
	c.setState(StateReady)
	c.logger.Info("thread started", zap.String("model", c.conv.Model))
	return nil
}

func (c *Controller) waitInput(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.InputTimeout)
	defer cancel()
	return c.page.WaitVisible(waitCtx, c.sel.Input)
}

// Model returns the model the thread is pinned to.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Model
}

// SetModel validates the model name, drives the model picker, and starts a
// fresh thread pinned to it. An unknown model is rejected before the page
// is touched, leaving all state exactly as it was.
func (c *Controller) SetModel(ctx context.Context, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !containsModel(c.cfg.Models, model) {
		return types.NewError(types.ErrInvalidModel,
			fmt.Sprintf("model %q is not available", model))
	}
	if c.conv.Model == model && c.state == StateReady {
		return nil
	}

	if err := c.page.Click(ctx, c.sel.ModelPicker); err != nil {
		c.setState(StateError)
		return types.NewError(types.ErrStartFailed, "open model picker").
			WithCause(err).WithRetryable(true)
	}

	option := c.sel.OptionFor(model)
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.InputTimeout)
	err := c.page.WaitVisible(waitCtx, option)
	cancel()
	if err == nil {
		err = c.page.Click(ctx, option)
	}
	if err != nil {
		c.setState(StateError)
		return types.NewError(types.ErrStartFailed,
			fmt.Sprintf("select model %q", model)).
			WithCause(err).WithRetryable(true)
	}

	c.conv.Model = model

	// A model switch starts over: fresh thread, fresh high-water mark.
	return c.startLocked(ctx)
}

// Send runs the send protocol and returns the assistant's reply text.
func (c *Controller) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReady {
		if err := c.startLocked(ctx); err != nil {
			return "", err
		}
	}

	if c.cooldownPending {
		c.logger.Info("send ceiling reached, cooling down",
			zap.Duration("cooldown", c.cfg.ThrottleCooldown))
		if err := c.sleep(ctx, c.cfg.ThrottleCooldown); err != nil {
			return "", err
		}
		if err := c.sess.Reload(ctx, c.page); err != nil {
			c.logger.Warn("reload after cooldown failed", zap.Error(err))
		}
		c.cooldownPending = false
		c.conv.Sent = 0
	}

	if err := c.sess.EnsureLoaded(ctx, c.page); err != nil {
		return "", c.failSend(ctx, types.NewError(types.ErrInputNotFound, "page did not settle").
			WithCause(err).WithRetryable(true))
	}
	if err := c.waitInput(ctx); err != nil {
		return "", c.failSend(ctx, types.NewError(types.ErrInputNotFound, "composer not found").
			WithCause(err).WithRetryable(true))
	}

	c.setState(StateSending)

	if err := c.inject(ctx, text); err != nil {
		return "", c.failSend(ctx, types.NewError(types.ErrInputNotFound, "inject prompt").
			WithCause(err).WithRetryable(true))
	}
	if err := c.page.Click(ctx, c.sel.SendButton); err != nil {
		return "", c.failSend(ctx, types.NewError(types.ErrInputNotFound, "click send").
			WithCause(err).WithRetryable(true))
	}

	// The app sometimes refuses the send outright under load and shows a
	// capacity notice instead of a reply. Dismiss it and hand the attempt
	// back to the retry loop.
	if busy, _ := c.page.Exists(ctx, c.sel.CapacityNotice); busy {
		c.logger.Warn("capacity notice after send, dismissing")
		if err := c.page.Click(ctx, c.sel.CapacityDismiss); err != nil {
			c.logger.Warn("dismiss capacity notice failed", zap.Error(err))
		}
		c.setState(StateReady)
		return "", types.NewError(types.ErrCapacity, "app at capacity, send not accepted").
			WithRetryable(true)
	}

	c.setState(StateAwaiting)

	c.discoverRemoteID(ctx)

	c.conv.Sent++
	if c.cfg.ThrottleEvery > 0 && c.conv.Sent >= c.cfg.ThrottleEvery {
		c.cooldownPending = true
	}

	msg, err := c.poller.Await(ctx, c)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrRateLimited {
			// The page is fine; the account is throttled. Stay ready so
			// the scheduled resumption can reuse the thread.
			c.setState(StateReady)
			return "", err
		}
		return "", c.failSend(ctx, err)
	}

	if msg.Index > c.conv.HighWater {
		c.conv.HighWater = msg.Index
	}
	c.setState(StateReady)
	return msg.Text, nil
}

// failSend reloads the page (best effort), marks the thread errored, and
// passes the error through.
func (c *Controller) failSend(ctx context.Context, err error) error {
	if rerr := c.sess.Reload(ctx, c.page); rerr != nil {
		c.logger.Warn("recovery reload failed", zap.Error(rerr))
	}
	c.setState(StateError)
	return err
}

func (c *Controller) inject(ctx context.Context, text string) error {
	if c.cfg.TypingCadence {
		return c.page.Type(ctx, c.sel.Input, text)
	}
	return c.page.Fill(ctx, c.sel.Input, text)
}

// discoverRemoteID extracts the thread identifier from the page URL. The
// URL changes only once the app has persisted the thread, so a few spaced
// attempts are made; failure here is tolerated because the poller retries
// discovery on every poll.
func (c *Controller) discoverRemoteID(ctx context.Context) {
	if c.conv.RemoteID != "" {
		return
	}
	for attempt := 0; attempt < c.cfg.IDAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.cfg.IDInterval); err != nil {
				return
			}
		}
		loc, err := c.page.Location(ctx)
		if err != nil {
			continue
		}
		if id, ok := ExtractRemoteID(loc); ok {
			c.conv.RemoteID = id
			c.logger.Info("thread identifier discovered", zap.String("remote_id", id))
			return
		}
	}
	c.logger.Warn("thread identifier not discovered yet")
}

// History fetches the full remote transcript through the side channel.
func (c *Controller) History(ctx context.Context) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr, err := c.fetchTranscript(ctx)
	if err != nil {
		return nil, err
	}
	return tr.ChatMessages, nil
}

// transcript is the thread document the app's own data endpoint returns.
type transcript struct {
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	ChatMessages []Message `json:"chat_messages"`
}

// fetchResult is what the in-page fetch wrapper hands back: status plus raw
// body, so HTTP failures travel as data instead of JS exceptions.
type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// fetchTranscript runs a same-origin fetch on the data page. The browser
// attaches the human session's cookies, so no credentials live in the
// bridge. The data page is raised during the fetch and the interactive page
// restored afterwards.
func (c *Controller) fetchTranscript(ctx context.Context) (*transcript, error) {
	if c.conv.RemoteID == "" {
		c.discoverRemoteID(ctx)
	}
	if c.conv.RemoteID == "" {
		return nil, types.NewError(types.ErrNoResponse, "thread identifier unknown").
			WithRetryable(true)
	}

	url := fmt.Sprintf("%s/api/organizations/%s/chat_conversations/%s",
		c.cfg.BaseURL, c.cfg.OrganizationID, c.conv.RemoteID)
	expr := fmt.Sprintf(
		`fetch(%q).then(r => r.text().then(t => ({status: r.status, body: t})))`, url)

	if err := c.data.BringToFront(ctx); err != nil {
		c.logger.Debug("raise data page failed", zap.Error(err))
	}
	defer func() {
		if err := c.page.BringToFront(ctx); err != nil {
			c.logger.Debug("restore interactive page failed", zap.Error(err))
		}
	}()

	var res fetchResult
	if err := c.data.Evaluate(ctx, expr, &res); err != nil {
		return nil, types.NewError(types.ErrNoResponse, "side-channel fetch failed").
			WithCause(err).WithRetryable(true)
	}

	switch {
	case res.Status == 429:
		e := types.NewError(types.ErrRateLimited, "rate limited by remote app").
			WithRetryable(true)
		if at, ok := retry.ParseResetAt(res.Body); ok {
			e = e.WithResetAt(at)
		}
		return nil, e
	case res.Status != 200:
		return nil, types.NewError(types.ErrNoResponse,
			fmt.Sprintf("side-channel fetch returned status %d", res.Status)).
			WithRetryable(true)
	}

	var tr transcript
	if err := json.Unmarshal([]byte(res.Body), &tr); err != nil {
		return nil, types.NewError(types.ErrNoResponse, "decode thread document").
			WithCause(err).WithRetryable(true)
	}
	return &tr, nil
}

// generating reports whether the interactive page still shows the
// reply-in-progress indicator.
func (c *Controller) generating(ctx context.Context) bool {
	busy, err := c.page.Exists(ctx, c.sel.GeneratingIndicator)
	if err != nil {
		return false
	}
	return busy
}

func containsModel(models []string, m string) bool {
	for _, v := range models {
		if strings.EqualFold(v, m) {
			return true
		}
	}
	return false
}
