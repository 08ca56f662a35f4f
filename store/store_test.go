package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/config"
)

func openTestStore(t *testing.T) *TranscriptStore {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "archive.db"),
	}
	s, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDisabledWithoutDriver(t *testing.T) {
	s, err := Open(config.DatabaseConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	require.Error(t, err)
}

func TestRecordAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, reply := range []string{"first", "second", "third"} {
		require.NoError(t, s.Record(ctx, &Exchange{
			Conversation:     "default",
			RemoteID:         "0a9f5d3e-1b2c-4d5e-8f90-123456789abc",
			Model:            "claude-2.1",
			Prompt:           "user: hi",
			Reply:            reply,
			PromptTokens:     2,
			CompletionTokens: 1,
			DurationMS:       int64(100 * (i + 1)),
		}))
	}
	require.NoError(t, s.Record(ctx, &Exchange{
		Conversation: "other",
		Reply:        "elsewhere",
	}))

	got, err := s.ByConversation(ctx, "default", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first
	assert.Equal(t, "third", got[0].Reply)
	assert.Equal(t, "second", got[1].Reply)

	all, err := s.ByConversation(ctx, "default", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.ByConversation(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
