package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/config"
	"github.com/uibridge/uibridge/engine/surface"
	"github.com/uibridge/uibridge/types"
)

// Connector manages the bridge's presence inside the shared browser.
type Connector struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	openPage func(ctx context.Context) (surface.Driver, error)
	sleep    func(ctx context.Context, d time.Duration) error

	allocCancel context.CancelFunc

	mu          sync.Mutex
	interactive surface.Driver
	data        surface.Driver
	extras      []surface.Driver
	connected   bool
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithPageOpener replaces the chromedp page factory. Used by tests and by
// alternative Driver implementations.
func WithPageOpener(fn func(ctx context.Context) (surface.Driver, error)) ConnectorOption {
	return func(c *Connector) { c.openPage = fn }
}

// WithSleep overrides the settle-grace sleeper.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ConnectorOption {
	return func(c *Connector) { c.sleep = fn }
}

// NewConnector creates a Connector. Nothing is dialed until Connect.
func NewConnector(cfg config.BrowserConfig, logger *zap.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connector{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "session")),
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
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect attaches to the browser and opens the interactive page and the
// side-channel data page, both navigated to the app origin.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	if c.openPage == nil {
		// The allocator context must outlive ctx: pages live as long as
		// the connector, not as long as the Connect call.
		allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), c.cfg.WSEndpoint)
		c.allocCancel = allocCancel
		c.openPage = func(ctx context.Context) (surface.Driver, error) {
			return surface.NewChromePage(allocCtx, c.logger,
				surface.WithTypingDelay(c.cfg.TypingDelayMin, c.cfg.TypingDelayMax),
			)
		}
	}

	c.logger.Info("attaching to browser",
		zap.String("ws_endpoint", c.cfg.WSEndpoint),
		zap.String("base_url", c.cfg.BaseURL),
	)

	interactive, err := c.openPage(ctx)
	if err != nil {
		return types.NewError(types.ErrConnectionFailed, "open interactive page").WithCause(err)
	}
	data, err := c.openPage(ctx)
	if err != nil {
		interactive.Close()
		return types.NewError(types.ErrConnectionFailed, "open data page").WithCause(err)
	}

	c.interactive = interactive
	c.data = data

	if err := c.navigate(ctx, interactive, c.cfg.BaseURL); err != nil {
		c.closeLocked()
		return types.NewError(types.ErrConnectionFailed, "load app on interactive page").WithCause(err)
	}
	if err := c.navigate(ctx, data, c.cfg.BaseURL); err != nil {
		c.closeLocked()
		return types.NewError(types.ErrConnectionFailed, "load app on data page").WithCause(err)
	}

	c.connected = true
	c.logger.Info("session connected")
	return nil
}

// navigate loads url and runs the load discipline.
func (c *Connector) navigate(ctx context.Context, d surface.Driver, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := d.Navigate(navCtx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return c.EnsureLoaded(ctx, d)
}

// EnsureLoaded waits for the page to settle: DOM readiness, the load event,
// and network quiescence, each under its own deadline. A condition that
// fails to materialize is logged and tolerated; modern SPAs keep sockets
// open indefinitely, so a stalled signal must not wedge the bridge. A short
// grace pause afterwards covers client-side rendering the events never
// announce.
func (c *Connector) EnsureLoaded(ctx context.Context, d surface.Driver) error {
	c.waitStep(ctx, "dom_ready", c.cfg.LoadTimeout, d.WaitDOMReady)
	c.waitStep(ctx, "load", c.cfg.LoadTimeout, d.WaitLoad)
	c.waitStep(ctx, "network_idle", c.cfg.NetworkIdleTimeout, d.WaitNetworkIdle)

	return c.sleep(ctx, c.cfg.SettleGrace)
}

func (c *Connector) waitStep(ctx context.Context, name string, timeout time.Duration, wait func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := wait(stepCtx); err != nil {
		c.logger.Warn("load condition did not settle, proceeding",
			zap.String("condition", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
	}
}

// Reload reloads d and re-runs the load discipline.
func (c *Connector) Reload(ctx context.Context, d surface.Driver) error {
	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavigationTimeout)
	defer cancel()
	if err := d.Reload(navCtx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return c.EnsureLoaded(ctx, d)
}

// Interactive returns the page conversations are driven on.
func (c *Connector) Interactive() surface.Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interactive
}

// DataPage returns the side-channel page used for JSON fetches.
func (c *Connector) DataPage() surface.Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// OpenPage opens an additional page for a named conversation, navigated to
// the app origin. Fails once the configured page budget is reached.
func (c *Connector) OpenPage(ctx context.Context) (surface.Driver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, types.NewError(types.ErrConnectionFailed, "not connected")
	}
	if 2+len(c.extras) >= c.cfg.MaxPages {
		return nil, types.NewError(types.ErrConnectionFailed,
			fmt.Sprintf("page budget exhausted (max %d)", c.cfg.MaxPages))
	}

	d, err := c.openPage(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrConnectionFailed, "open page").WithCause(err)
	}
	if err := c.navigate(ctx, d, c.cfg.BaseURL); err != nil {
		d.Close()
		return nil, types.NewError(types.ErrConnectionFailed, "load app on page").WithCause(err)
	}

	c.extras = append(c.extras, d)
	c.logger.Info("opened conversation page", zap.Int("pages", 2+len(c.extras)))
	return d, nil
}

// Close closes every page the connector opened and detaches from the
// browser. The browser itself keeps running; it is not ours.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connector) closeLocked() error {
	for _, d := range c.extras {
		d.Close()
	}
	c.extras = nil
	if c.data != nil {
		c.data.Close()
		c.data = nil
	}
	if c.interactive != nil {
		c.interactive.Close()
		c.interactive = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.connected = false
	c.logger.Info("session closed")
	return nil
}
