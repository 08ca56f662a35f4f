package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/uibridge/uibridge/adapter"
	"github.com/uibridge/uibridge/config"
	"github.com/uibridge/uibridge/engine/conversation"
	"github.com/uibridge/uibridge/engine/retry"
	"github.com/uibridge/uibridge/engine/surface"
	"github.com/uibridge/uibridge/internal/metrics"
	"github.com/uibridge/uibridge/store"
	"github.com/uibridge/uibridge/types"
)

// DefaultConversation is the thread used when a request names none.
const DefaultConversation = "default"

// Sessions is the slice of the session connector the engine needs.
type Sessions interface {
	Connect(ctx context.Context) error
	Interactive() surface.Driver
	DataPage() surface.Driver
	OpenPage(ctx context.Context) (surface.Driver, error)
	EnsureLoaded(ctx context.Context, d surface.Driver) error
	Reload(ctx context.Context, d surface.Driver) error
	Close() error
}

// Params describes one completion request after adaptation.
type Params struct {
	// Conversation names the thread; empty means DefaultConversation.
	Conversation string
	// Model must be on the allowlist; empty means the default model.
	Model string
	// Prompt is the flattened prompt text.
	Prompt string
	// MaxTokens caps the reply in whitespace tokens; 0 means uncapped.
	MaxTokens int
}

// Result is a finished exchange.
type Result struct {
	Reply     string
	Truncated bool
	Model     string
}

// Engine owns the conversation registry and drives exchanges end to end.
type Engine struct {
	cfg     *config.Config
	sel     surface.Selectors
	session Sessions
	retryer retry.Retryer
	poller  conversation.Poller
	archive *store.TranscriptStore
	metrics *metrics.Collector
	logger  *zap.Logger

	// extraPages bounds pages taken by named conversations beyond the
	// interactive and data pages the connector always holds.
	extraPages *semaphore.Weighted

	mu    chan struct{} // acquired-style mutex so registry ops honor ctx
	convs map[string]*conversation.Controller
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchive attaches the transcript archive. A nil archive is ignored.
func WithArchive(s *store.TranscriptStore) Option {
	return func(e *Engine) { e.archive = s }
}

// WithMetrics attaches the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRetryer overrides the retryer.
func WithRetryer(r retry.Retryer) Option {
	return func(e *Engine) { e.retryer = r }
}

// WithPoller overrides the response poller.
func WithPoller(p conversation.Poller) Option {
	return func(e *Engine) { e.poller = p }
}

// New assembles an Engine from the configuration and a session connector.
func New(cfg *config.Config, session Sessions, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	extra := int64(cfg.Browser.MaxPages) - 2
	if extra < 0 {
		extra = 0
	}

	e := &Engine{
		cfg:        cfg,
		sel:        selectorsFromConfig(cfg.Browser.Selectors),
		session:    session,
		logger:     logger.With(zap.String("component", "engine")),
		extraPages: semaphore.NewWeighted(extra),
		mu:         make(chan struct{}, 1),
		convs:      make(map[string]*conversation.Controller),
	}

	e.retryer = retry.NewRetryer(&retry.Policy{
		MaxAttempts:       cfg.Engine.RetryAttempts,
		DelayMin:          cfg.Engine.RetryDelayMin,
		DelayMax:          cfg.Engine.RetryDelayMax,
		RateLimitMargin:   cfg.Engine.RateLimitMargin,
		RateLimitFallback: cfg.Engine.RateLimitFallback,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			e.recordRetry(err)
		},
	}, logger)

	switch cfg.Engine.PollStrategy {
	case "dom":
		e.poller = conversation.NewDOMPoller(cfg.Engine.PollInterval, cfg.Engine.PollAttempts, logger)
	default:
		e.poller = conversation.NewSideChannelPoller(cfg.Engine.PollInterval, cfg.Engine.PollAttempts, logger)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func selectorsFromConfig(sc config.SelectorsConfig) surface.Selectors {
	return surface.DefaultSelectors().Merge(surface.Selectors{
		Input:               sc.Input,
		SendButton:          sc.SendButton,
		ModelPicker:         sc.ModelPicker,
		ModelOption:         sc.ModelOption,
		AssistantMessage:    sc.AssistantMessage,
		GeneratingIndicator: sc.GeneratingIndicator,
		CapacityNotice:      sc.CapacityNotice,
		CapacityDismiss:     sc.CapacityDismiss,
	})
}

// Start connects the browser session.
func (e *Engine) Start(ctx context.Context) error {
	return e.session.Connect(ctx)
}

// Close shuts the session down.
func (e *Engine) Close() error {
	return e.session.Close()
}

// Models returns the model allowlist.
func (e *Engine) Models() []string {
	out := make([]string, len(e.cfg.Engine.Models))
	copy(out, e.cfg.Engine.Models)
	return out
}

// ValidModel reports whether model is on the allowlist.
func (e *Engine) ValidModel(model string) bool {
	return e.canonicalModel(model) != ""
}

// canonicalModel maps model to the allowlist entry's spelling, or returns
// "" when it is not listed. Matching is case-insensitive but the allowlist
// casing is authoritative: a differently-cased alias must not read as a
// model change and restart the thread.
func (e *Engine) canonicalModel(model string) string {
	for _, m := range e.cfg.Engine.Models {
		if strings.EqualFold(m, model) {
			return m
		}
	}
	return ""
}

func (e *Engine) lock(ctx context.Context) error {
	select {
	case e.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) unlock() { <-e.mu }

// controller returns the controller for a thread, creating it on first use.
// The default thread drives the connector's interactive page; named threads
// each take a page from the budget.
func (e *Engine) controller(ctx context.Context, name string) (*conversation.Controller, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	if c, ok := e.convs[name]; ok {
		return c, nil
	}

	var page surface.Driver
	if name == DefaultConversation {
		page = e.session.Interactive()
	} else {
		if !e.extraPages.TryAcquire(1) {
			return nil, types.NewError(types.ErrInvalidRequest,
				"conversation limit reached for the configured page budget")
		}
		p, err := e.session.OpenPage(ctx)
		if err != nil {
			e.extraPages.Release(1)
			return nil, err
		}
		page = p
	}

	c := conversation.NewController(conversation.ControllerParams{
		Name: name,
		Config: conversation.Config{
			BaseURL:           e.cfg.Browser.BaseURL,
			NewChatPath:       e.cfg.Browser.NewChatPath,
			OrganizationID:    e.cfg.Browser.OrganizationID,
			Models:            e.cfg.Engine.Models,
			NavigationTimeout: e.cfg.Browser.NavigationTimeout,
			InputTimeout:      e.cfg.Engine.InputTimeout,
			TypingCadence:     e.cfg.Browser.TypingCadence,
			ThrottleEvery:     e.cfg.Engine.ThrottleEvery,
			ThrottleCooldown:  e.cfg.Engine.ThrottleCooldown,
		},
		Page:      page,
		Data:      e.session.DataPage(),
		Session:   e.session,
		Poller:    e.poller,
		Selectors: e.sel,
		Logger:    e.logger,
	})
	e.convs[name] = c
	e.logger.Info("conversation registered", zap.String("thread", name))
	return c, nil
}

// Complete runs one full exchange and returns the shaped reply.
func (e *Engine) Complete(ctx context.Context, p Params) (*Result, error) {
	name := p.Conversation
	if name == "" {
		name = DefaultConversation
	}
	model := p.Model
	if model == "" {
		model = e.cfg.Engine.DefaultModel
	}
	canonical := e.canonicalModel(model)
	if canonical == "" {
		return nil, types.NewError(types.ErrInvalidModel,
			"model "+model+" is not available")
	}
	model = canonical

	c, err := e.controller(ctx, name)
	if err != nil {
		return nil, err
	}

	if c.Model() != model {
		if err := c.SetModel(ctx, model); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	reply, err := retry.DoWithResultTyped(e.retryer, ctx, func() (string, error) {
		return c.Send(ctx, p.Prompt)
	})
	e.recordSend(model, err, time.Since(started))
	if err != nil {
		return nil, err
	}

	reply = adapter.NormalizeCodeFences(reply)
	reply, truncated := adapter.Truncate(reply, p.MaxTokens)

	e.record(ctx, c.Snapshot(), p, reply, time.Since(started))

	return &Result{Reply: reply, Truncated: truncated, Model: model}, nil
}

// History returns the remote transcript of a thread.
func (e *Engine) History(ctx context.Context, name string) (conversation.Conversation, []conversation.Message, error) {
	if name == "" {
		name = DefaultConversation
	}
	if err := e.lock(ctx); err != nil {
		return conversation.Conversation{}, nil, err
	}
	c, ok := e.convs[name]
	e.unlock()
	if !ok {
		return conversation.Conversation{}, nil, types.NewError(types.ErrInvalidRequest,
			"unknown conversation "+name)
	}

	msgs, err := c.History(ctx)
	if err != nil {
		return conversation.Conversation{}, nil, err
	}
	return c.Snapshot(), msgs, nil
}

// record archives a finished exchange; failures are logged, never surfaced.
func (e *Engine) record(ctx context.Context, conv conversation.Conversation, p Params, reply string, took time.Duration) {
	if e.archive == nil {
		return
	}
	ex := &store.Exchange{
		Conversation:     conv.Name,
		RemoteID:         conv.RemoteID,
		Model:            conv.Model,
		Prompt:           p.Prompt,
		Reply:            reply,
		PromptTokens:     types.TokenCount(p.Prompt),
		CompletionTokens: types.TokenCount(reply),
		DurationMS:       took.Milliseconds(),
	}
	if err := e.archive.Record(ctx, ex); err != nil {
		e.logger.Warn("archive exchange failed", zap.Error(err))
	}
}

func (e *Engine) recordSend(model string, err error, took time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(types.GetErrorCode(err))
		if status == "" {
			status = "error"
		}
	}
	e.metrics.RecordSend(model, status, took)
}

func (e *Engine) recordRetry(err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordRetry(string(types.GetErrorCode(err)))
}
