package survey

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ModPipe/internal/approval"
	"github.com/BTreeMap/ModPipe/internal/config"
	"github.com/BTreeMap/ModPipe/internal/platform"
	"github.com/BTreeMap/ModPipe/internal/store"
)

// fakeMessenger is an in-memory platform.Messenger recording every call.
type fakeMessenger struct {
	mu         sync.Mutex
	nextID     int
	messages   map[string][]string // channelID -> plain text messages
	embeds     map[string][]platform.Embed
	embedIDs   map[string][]string // channelID -> ids of sent embeds
	reactions  map[string][]string // messageID -> emojis
	deletions  map[string][]string // channelID -> deleted message ids
	failDM     bool
	failEmbeds map[string]bool // channelID -> SendEmbed fails
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		messages:   make(map[string][]string),
		embeds:     make(map[string][]platform.Embed),
		embedIDs:   make(map[string][]string),
		reactions:  make(map[string][]string),
		deletions:  make(map[string][]string),
		failEmbeds: make(map[string]bool),
	}
}

func (f *fakeMessenger) SendMessage(ctx context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[channelID] = append(f.messages[channelID], content)
	return nil
}

func (f *fakeMessenger) SendEmbed(ctx context.Context, channelID string, embed platform.Embed) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEmbeds[channelID] {
		return "", fmt.Errorf("channel %s unavailable", channelID)
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.embeds[channelID] = append(f.embeds[channelID], embed)
	f.embedIDs[channelID] = append(f.embedIDs[channelID], id)
	return id, nil
}

func (f *fakeMessenger) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], emoji)
	return nil
}

func (f *fakeMessenger) DeleteMessageAfter(channelID, messageID string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions[channelID] = append(f.deletions[channelID], messageID)
}

func (f *fakeMessenger) CreateDMChannel(ctx context.Context, userID string) (string, error) {
	if f.failDM {
		return "", fmt.Errorf("direct messages disabled for %s", userID)
	}
	return "dm-" + userID, nil
}

func (f *fakeMessenger) embedCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embeds[channelID])
}

func (f *fakeMessenger) lastEmbed(t *testing.T, channelID string) platform.Embed {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	embeds := f.embeds[channelID]
	if len(embeds) == 0 {
		t.Fatalf("no embeds sent to channel %s", channelID)
	}
	return embeds[len(embeds)-1]
}

func (f *fakeMessenger) lastEmbedID(t *testing.T, channelID string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.embedIDs[channelID]
	if len(ids) == 0 {
		t.Fatalf("no embeds sent to channel %s", channelID)
	}
	return ids[len(ids)-1]
}

// fakeModerator records moderation calls.
type fakeModerator struct {
	mu           sync.Mutex
	bans         map[string]string // userID -> reason
	kicks        map[string]string
	rolesAdded   map[string][]string
	rolesRemoved map[string][]string
}

func newFakeModerator() *fakeModerator {
	return &fakeModerator{
		bans:         make(map[string]string),
		kicks:        make(map[string]string),
		rolesAdded:   make(map[string][]string),
		rolesRemoved: make(map[string][]string),
	}
}

func (f *fakeModerator) BanUser(ctx context.Context, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans[userID] = reason
	return nil
}

func (f *fakeModerator) KickUser(ctx context.Context, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks[userID] = reason
	return nil
}

func (f *fakeModerator) AddRole(ctx context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolesAdded[userID] = append(f.rolesAdded[userID], roleID)
	return nil
}

func (f *fakeModerator) RemoveRole(ctx context.Context, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rolesRemoved[userID] = append(f.rolesRemoved[userID], roleID)
	return nil
}

func (f *fakeModerator) UserMention(userID string) string {
	return "@" + userID
}

const testConfigDoc = `{
	"cancelCommand": ".cancel",
	"initialMessageId": "100",
	"initialChannelId": "200",
	"initialEmoji": "📋",
	"errorDeleteAfterSecs": 5,
	"pendingChannelId": "300",
	"decidedChannelId": "400",
	"confirmationMessage": "Thanks, your answers were submitted.",
	"questions": [
		{"text": "Why?"},
		{"text": "Where?"}
	],
	"actions": [
		{"name": "Approve", "emoji": "✅", "removeAction": "none", "rolesToAdd": ["roleA"]},
		{"name": "Ban", "emoji": "🔨", "removeAction": "ban", "reasonRequired": true}
	]
}`

// testEngine bundles an Engine with its fakes for assertions.
type testEngine struct {
	engine    *Engine
	messenger *fakeMessenger
	moderator *fakeModerator
	approvals *approval.Registry
	store     *store.InMemoryStore
	loader    *config.Loader
}

func newTestEngine(t *testing.T, doc string, opts ...Option) *testEngine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survey.json")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write survey config: %v", err)
	}

	loader := config.NewLoader(path)
	messenger := newFakeMessenger()
	moderator := newFakeModerator()
	st := store.NewInMemoryStore()
	approvals := approval.NewRegistry(st)

	base := []Option{WithBotUserID("bot"), WithReactionDelay(0)}
	engine := NewEngine(loader, messenger, moderator, approvals, append(base, opts...)...)
	if err := engine.Restore(context.Background()); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	return &testEngine{
		engine:    engine,
		messenger: messenger,
		moderator: moderator,
		approvals: approvals,
		store:     st,
		loader:    loader,
	}
}
