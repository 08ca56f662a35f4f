package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/config"
	"github.com/uibridge/uibridge/engine/surface"
	"github.com/uibridge/uibridge/testutil"
	"github.com/uibridge/uibridge/types"
)

func testBrowserConfig() config.BrowserConfig {
	cfg := config.DefaultBrowserConfig()
	cfg.WSEndpoint = "ws://127.0.0.1:9222/devtools/browser/test"
	cfg.BaseURL = "https://chat.example.com"
	cfg.SettleGrace = 0
	cfg.MaxPages = 3
	return cfg
}

// pageFactory hands out prepared fakes in order.
type pageFactory struct {
	pages []*testutil.FakeDriver
	next  int
	err   error
}

func (f *pageFactory) open(ctx context.Context) (surface.Driver, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.next >= len(f.pages) {
		f.pages = append(f.pages, testutil.NewFakeDriver())
	}
	d := f.pages[f.next]
	f.next++
	return d, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestConnectOpensInteractiveAndDataPages(t *testing.T) {
	f := &pageFactory{}
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))

	require.NoError(t, c.Connect(context.Background()))
	require.Len(t, f.pages, 2)

	for _, p := range f.pages {
		assert.Equal(t, 1, p.CallCount("Navigate"))
		assert.Equal(t, "https://chat.example.com", p.URL)
		// load discipline ran
		assert.Equal(t, 1, p.CallCount("WaitDOMReady"))
		assert.Equal(t, 1, p.CallCount("WaitLoad"))
		assert.Equal(t, 1, p.CallCount("WaitNetworkIdle"))
	}

	assert.Same(t, surface.Driver(f.pages[0]), c.Interactive())
	assert.Same(t, surface.Driver(f.pages[1]), c.DataPage())

	// second Connect is a no-op
	require.NoError(t, c.Connect(context.Background()))
	require.Len(t, f.pages, 2)
}

func TestConnectFailsWhenPageCannotOpen(t *testing.T) {
	f := &pageFactory{err: errors.New("browser gone")}
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectionFailed, types.GetErrorCode(err))
}

func TestEnsureLoadedToleratesStalledConditions(t *testing.T) {
	f := &pageFactory{}
	d := testutil.NewFakeDriver()
	d.Errors["WaitNetworkIdle"] = errors.New("sockets never idle")
	d.Errors["WaitLoad"] = errors.New("load event never fired")
	f.pages = append(f.pages, d, testutil.NewFakeDriver())

	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))

	// stalled load conditions are warnings, not failures
	require.NoError(t, c.Connect(context.Background()))
}

func TestOpenPageRespectsBudget(t *testing.T) {
	f := &pageFactory{}
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))
	require.NoError(t, c.Connect(context.Background()))

	// budget is 3: interactive + data + one extra
	extra, err := c.OpenPage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, extra)

	_, err = c.OpenPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page budget")
}

func TestOpenPageRequiresConnection(t *testing.T) {
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener((&pageFactory{}).open), WithSleep(noSleep))
	_, err := c.OpenPage(context.Background())
	require.Error(t, err)
}

func TestReloadRunsLoadDiscipline(t *testing.T) {
	f := &pageFactory{}
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))
	require.NoError(t, c.Connect(context.Background()))

	page := f.pages[0]
	require.NoError(t, c.Reload(context.Background(), page))

	assert.Equal(t, 1, page.CallCount("Reload"))
	assert.Equal(t, 2, page.CallCount("WaitDOMReady"))
}

func TestCloseClosesOnlyOwnPages(t *testing.T) {
	f := &pageFactory{}
	c := NewConnector(testBrowserConfig(), zap.NewNop(),
		WithPageOpener(f.open), WithSleep(noSleep))
	require.NoError(t, c.Connect(context.Background()))
	_, err := c.OpenPage(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close())

	require.Len(t, f.pages, 3)
	for _, p := range f.pages {
		assert.True(t, p.Closed)
	}
	assert.Nil(t, c.Interactive())

	// reconnect works after close
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
}
