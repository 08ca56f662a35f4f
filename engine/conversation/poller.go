package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uibridge/uibridge/types"
)

// pollerBase carries the shared pacing knobs.
type pollerBase struct {
	interval time.Duration
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

func newPollerBase(interval time.Duration, attempts int) pollerBase {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 60
	}
	return pollerBase{
		interval: interval,
		attempts: attempts,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// SideChannelPoller recognizes replies by fetching the thread's JSON
// document through the data page. Preferred: it sees message indices and
// sender roles exactly as the app records them.
type SideChannelPoller struct {
	pollerBase
	logger *zap.Logger
}

// NewSideChannelPoller creates a side-channel poller.
func NewSideChannelPoller(interval time.Duration, attempts int, logger *zap.Logger) *SideChannelPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideChannelPoller{
		pollerBase: newPollerBase(interval, attempts),
		logger:     logger.With(zap.String("component", "poller_sidechannel")),
	}
}

// Await implements Poller.
func (p *SideChannelPoller) Await(ctx context.Context, c *Controller) (Message, error) {
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return Message{}, err
			}
		}

		tr, err := c.fetchTranscript(ctx)
		if err != nil {
			if types.GetErrorCode(err) == types.ErrRateLimited {
				return Message{}, err
			}
			// Transient fetch trouble is part of polling, not a failure.
			p.logger.Debug("poll fetch failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		msg, ok := latestNewMessage(tr.ChatMessages, c.conv.HighWater)
		if !ok {
			continue
		}
		// The document may contain the reply while it is still being
		// produced; only a settled page yields a complete message.
		if c.generating(ctx) {
			continue
		}
		return msg, nil
	}

	return Message{}, types.NewError(types.ErrNoResponse,
		fmt.Sprintf("no new reply after %d polls", p.attempts)).
		WithRetryable(true)
}

// latestNewMessage returns the newest message past the high-water mark,
// provided the assistant authored it and it carries text. A newer message
// from the human side (our own echo) keeps the poll going.
func latestNewMessage(msgs []Message, highWater int) (Message, bool) {
	best := Message{Index: -1}
	for _, m := range msgs {
		if m.Index > highWater && m.Index > best.Index {
			best = m
		}
	}
	if best.Index < 0 || best.Sender != SenderAssistant || strings.TrimSpace(best.Text) == "" {
		return Message{}, false
	}
	return best, true
}

// DOMPoller recognizes replies by sampling the rendered assistant blocks.
// Fallback for when the data endpoint misbehaves: noisier, but needs
// nothing beyond the visible page.
type DOMPoller struct {
	pollerBase
	logger *zap.Logger
}

// NewDOMPoller creates a DOM-sampling poller.
func NewDOMPoller(interval time.Duration, attempts int, logger *zap.Logger) *DOMPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DOMPoller{
		pollerBase: newPollerBase(interval, attempts),
		logger:     logger.With(zap.String("component", "poller_dom")),
	}
}

// domSample is one snapshot of the rendered reply area.
type domSample struct {
	Count int    `json:"count"`
	Text  string `json:"text"`
	Busy  bool   `json:"busy"`
}

// Await implements Poller. A reply is complete when a new assistant block
// exists, the generating indicator is gone, and two consecutive samples of
// the block text are identical.
func (p *DOMPoller) Await(ctx context.Context, c *Controller) (Message, error) {
	expr := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%q);
		return {
			count: els.length,
			text: els.length ? els[els.length - 1].innerText : "",
			busy: document.querySelector(%q) !== null,
		};
	})()`, c.sel.AssistantMessage, c.sel.GeneratingIndicator)

	prev := ""
	havePrev := false
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return Message{}, err
			}
		}

		var s domSample
		if err := c.page.Evaluate(ctx, expr, &s); err != nil {
			p.logger.Debug("dom sample failed", zap.Int("attempt", attempt), zap.Error(err))
			havePrev = false
			continue
		}

		if s.Count <= c.conv.HighWater || s.Busy || strings.TrimSpace(s.Text) == "" {
			havePrev = false
			continue
		}
		if !havePrev || s.Text != prev {
			prev = s.Text
			havePrev = true
			continue
		}

		return Message{Index: s.Count, Sender: SenderAssistant, Text: s.Text}, nil
	}

	return Message{}, types.NewError(types.ErrNoResponse,
		fmt.Sprintf("reply never stabilized after %d samples", p.attempts)).
		WithRetryable(true)
}
