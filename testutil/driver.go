package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/uibridge/uibridge/engine/surface"
)

// Call records one Driver method invocation.
type Call struct {
	Method string
	// Arg is the selector or URL, Text the injected text, when applicable.
	Arg  string
	Text string
}

// FakeDriver is a scripted surface.Driver. Zero value is usable: every call
// succeeds, selectors exist, texts are empty.
type FakeDriver struct {
	mu sync.Mutex

	calls []Call

	// URL is returned by Location.
	URL string
	// Texts maps selectors to the text Text returns. TextQueue, when set
	// for a selector, is consumed first, one entry per call.
	Texts     map[string]string
	TextQueue map[string][]string
	// Missing marks selectors WaitVisible fails on; it defaults to
	// everything visible.
	Missing map[string]bool
	// Present marks selectors Exists reports as present; Exists defaults
	// to absent, matching notices and indicators that are normally gone.
	Present map[string]bool
	// EvalResults queues JSON documents consumed by Evaluate.
	EvalResults []string
	// Errors maps a method name, or "Method:arg", to a forced error.
	Errors map[string]error

	Closed bool
}

// NewFakeDriver returns an empty scripted driver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Texts:     make(map[string]string),
		TextQueue: make(map[string][]string),
		Missing:   make(map[string]bool),
		Present:   make(map[string]bool),
		Errors:    make(map[string]error),
	}
}

var _ surface.Driver = (*FakeDriver)(nil)

// Calls returns a copy of the recorded call log.
func (d *FakeDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount counts recorded calls for a method.
func (d *FakeDriver) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (d *FakeDriver) record(method, arg, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: method, Arg: arg, Text: text})
	if d.Errors != nil {
		if err, ok := d.Errors[method+":"+arg]; ok {
			return err
		}
		if err, ok := d.Errors[method]; ok {
			return err
		}
	}
	return nil
}

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.record("Navigate", url, ""); err != nil {
		return err
	}
	d.mu.Lock()
	d.URL = url
	d.mu.Unlock()
	return nil
}

func (d *FakeDriver) Reload(ctx context.Context) error {
	return d.record("Reload", "", "")
}

func (d *FakeDriver) WaitDOMReady(ctx context.Context) error {
	return d.record("WaitDOMReady", "", "")
}

func (d *FakeDriver) WaitLoad(ctx context.Context) error {
	return d.record("WaitLoad", "", "")
}

func (d *FakeDriver) WaitNetworkIdle(ctx context.Context) error {
	return d.record("WaitNetworkIdle", "", "")
}

func (d *FakeDriver) WaitVisible(ctx context.Context, selector string) error {
	if err := d.record("WaitVisible", selector, ""); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Missing[selector] {
		return fmt.Errorf("selector %q not visible", selector)
	}
	return nil
}

func (d *FakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	if err := d.record("Exists", selector, ""); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Present[selector], nil
}

func (d *FakeDriver) Click(ctx context.Context, selector string) error {
	return d.record("Click", selector, "")
}

func (d *FakeDriver) Fill(ctx context.Context, selector, text string) error {
	return d.record("Fill", selector, text)
}

func (d *FakeDriver) Type(ctx context.Context, selector, text string) error {
	return d.record("Type", selector, text)
}

func (d *FakeDriver) Text(ctx context.Context, selector string) (string, error) {
	if err := d.record("Text", selector, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if q := d.TextQueue[selector]; len(q) > 0 {
		head := q[0]
		d.TextQueue[selector] = q[1:]
		return head, nil
	}
	return d.Texts[selector], nil
}

func (d *FakeDriver) Evaluate(ctx context.Context, expr string, out any) error {
	if err := d.record("Evaluate", expr, ""); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.EvalResults) == 0 {
		return fmt.Errorf("no scripted evaluate result")
	}
	doc := d.EvalResults[0]
	d.EvalResults = d.EvalResults[1:]
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(doc), out)
}

func (d *FakeDriver) Location(ctx context.Context) (string, error) {
	if err := d.record("Location", "", ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL, nil
}

func (d *FakeDriver) BringToFront(ctx context.Context) error {
	return d.record("BringToFront", "", "")
}

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: "Close"})
	d.Closed = true
	return nil
}
