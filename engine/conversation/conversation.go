package conversation

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a conversation thread.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateSending
	StateAwaiting
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateAwaiting:
		return "awaiting_response"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Message senders as the remote data model names them.
const (
	SenderHuman     = "human"
	SenderAssistant = "assistant"
)

// Message is one entry of the remote thread transcript.
type Message struct {
	Index  int    `json:"index"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Conversation is the bridge-side record of a remote thread.
type Conversation struct {
	// Name is the local thread name ("default" unless a client asks for
	// a named thread).
	Name string
	// RemoteID is the thread identifier discovered from the page URL
	// after the first send. Empty until discovered.
	RemoteID string
	// Model is the model the thread was started with. Empty means the
	// remote default.
	Model string
	// HighWater is the index of the last assistant message already
	// consumed. Only ever advances.
	HighWater int
	// Sent counts sends since the last reset, for self-throttling.
	Sent int
}

// Config holds the per-thread behavior knobs.
type Config struct {
	BaseURL        string
	NewChatPath    string
	OrganizationID string
	Models         []string

	NavigationTimeout time.Duration
	InputTimeout      time.Duration

	// IDAttempts and IDInterval bound remote-identifier discovery after
	// a send; the URL only changes once the app has created the thread.
	IDAttempts int
	IDInterval time.Duration

	// TypingCadence selects per-character injection over bulk fill.
	TypingCadence bool

	// ThrottleEvery and ThrottleCooldown implement the self-imposed
	// pause after a burst of sends. Zero ThrottleEvery disables.
	ThrottleEvery    int
	ThrottleCooldown time.Duration
}

// remoteIDPattern matches the thread identifier path segment the app puts
// in the URL once a thread exists.
var remoteIDPattern = regexp.MustCompile(`/chat/([0-9a-fA-F-]{36})`)

// ExtractRemoteID pulls the thread identifier out of a page URL.
func ExtractRemoteID(pageURL string) (string, bool) {
	m := remoteIDPattern.FindStringSubmatch(pageURL)
	if m == nil {
		return "", false
	}
	if _, err := uuid.Parse(m[1]); err != nil {
		return "", false
	}
	return m[1], true
}
