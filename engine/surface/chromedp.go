package surface

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromePage is the chromedp-backed Driver. Each ChromePage owns exactly one
// page target inside the shared remote browser; closing the page cancels its
// target context and nothing else.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	typingDelayMin time.Duration
	typingDelayMax time.Duration

	mu sync.Mutex
}

// ChromePageOption configures a ChromePage.
type ChromePageOption func(*ChromePage)

// WithTypingDelay sets the randomized inter-key delay band for Type.
func WithTypingDelay(min, max time.Duration) ChromePageOption {
	return func(p *ChromePage) {
		p.typingDelayMin = min
		p.typingDelayMax = max
	}
}

// NewChromePage opens a new page target under allocCtx, which must come from
// chromedp.NewRemoteAllocator pointed at the pre-shared browser endpoint.
func NewChromePage(allocCtx context.Context, logger *zap.Logger, opts ...ChromePageOption) (*ChromePage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	p := &ChromePage{
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger.With(zap.String("component", "chrome_page")),
		typingDelayMin: 20 * time.Millisecond,
		typingDelayMax: 80 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}

	// Materialize the target now so attach failures surface here.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open page target: %w", err)
	}

	return p, nil
}

// run executes actions against the page, honoring the caller's deadline and
// cancellation without giving up the page context itself.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", zap.String("url", url))
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) Reload(ctx context.Context) error {
	p.logger.Debug("reloading page")
	return p.run(ctx, chromedp.Reload())
}

func (p *ChromePage) WaitDOMReady(ctx context.Context) error {
	var ready bool
	return p.run(ctx, chromedp.Poll(`document.readyState !== "loading"`, &ready))
}

func (p *ChromePage) WaitLoad(ctx context.Context) error {
	var ready bool
	return p.run(ctx, chromedp.Poll(`document.readyState === "complete"`, &ready))
}

func (p *ChromePage) WaitNetworkIdle(ctx context.Context) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		idle := make(chan struct{})
		var once sync.Once

		lctx, lcancel := context.WithCancel(ctx)
		defer lcancel()
		chromedp.ListenTarget(lctx, func(ev any) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				once.Do(func() { close(idle) })
			}
		})

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}))
}

func (p *ChromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *ChromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := p.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (p *ChromePage) Click(ctx context.Context, selector string) error {
	p.logger.Debug("clicking", zap.String("selector", selector))
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *ChromePage) Fill(ctx context.Context, selector, text string) error {
	p.logger.Debug("filling", zap.String("selector", selector), zap.Int("chars", len(text)))
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *ChromePage) Type(ctx context.Context, selector, text string) error {
	p.logger.Debug("typing", zap.String("selector", selector), zap.Int("chars", len(text)))
	return p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, ch := range text {
				if err := input.DispatchKeyEvent(input.KeyChar).
					WithText(string(ch)).Do(ctx); err != nil {
					return err
				}
				select {
				case <-time.After(p.keyDelay()):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		}),
	)
}

func (p *ChromePage) keyDelay() time.Duration {
	if p.typingDelayMax <= p.typingDelayMin {
		return p.typingDelayMin
	}
	return p.typingDelayMin + time.Duration(rand.Int63n(int64(p.typingDelayMax-p.typingDelayMin)))
}

func (p *ChromePage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return text, nil
}

func (p *ChromePage) Evaluate(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true).WithReturnByValue(true)
		},
	))
}

func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (p *ChromePage) BringToFront(ctx context.Context) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
}

// Close closes this page target. The shared browser keeps running.
func (p *ChromePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("closing page target")
	p.cancel()
	return nil
}
