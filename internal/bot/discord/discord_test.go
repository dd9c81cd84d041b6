package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/oxang/groupforge/internal/bot"
)

// --- Mock Discord session ---

type mockSession struct {
	mu          sync.Mutex
	opened      bool
	closeCalled bool
	openErr     error
	closeErr    error
	sent        []sentMessage
	sendErr     error
	handler     interface{}
	removeCount int
}

type sentMessage struct {
	channelID string
	content   string
}

func newMockSession() *mockSession {
	return &mockSession{}
}

func (m *mockSession) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalled = true
	return m.closeErr
}

func (m *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, sentMessage{channelID: channelID, content: content})
	return &discordgo.Message{ID: "msg-123"}, nil
}

func (m *mockSession) AddHandler(handler interface{}) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.removeCount++
	}
}

func (m *mockSession) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSession) {
	t.Helper()
	sess := newMockSession()

	a, err := New(AdapterOpts{
		Session:   sess,
		ChannelID: "C_DEFAULT",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	a.SetBotUserID(900000000000000001)
	return a, sess
}

// --- New tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(AdapterOpts{})
	if err == nil {
		t.Fatal("expected error for missing bot token")
	}
	if !strings.Contains(err.Error(), "bot token") {
		t.Errorf("error = %q, want to mention bot token", err.Error())
	}
}

func TestNew_WithMockSession(t *testing.T) {
	a, err := New(AdapterOpts{Session: newMockSession()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
}

// --- Connect tests ---

func TestConnect_Success(t *testing.T) {
	_, sess := newTestAdapter(t)
	if !sess.opened {
		t.Error("expected session to be opened")
	}
}

func TestConnect_OpenError(t *testing.T) {
	sess := newMockSession()
	sess.openErr = fmt.Errorf("gateway error")

	a, _ := New(AdapterOpts{Session: sess})
	err := a.Connect(context.Background())
	if err == nil {
		t.Fatal("expected open error")
	}
	if !strings.Contains(err.Error(), "open gateway") {
		t.Errorf("error = %q, want open gateway error", err.Error())
	}
}

func TestConnect_AlreadyClosed(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.Close()
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error for closed adapter")
	}
}

func TestConnect_Idempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("second connect should not error: %v", err)
	}
}

// --- Listen tests ---

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error for not connected")
	}
}

func TestListen_ReceivesMessages(t *testing.T) {
	a, _ := newTestAdapter(t)

	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "123456789012345678",
			ChannelID: "C1",
			Content:   "+998991234567",
			Author: &discordgo.User{
				ID:       "200000000000000002",
				Username: "alice",
			},
		},
	})

	select {
	case msg := <-ch:
		if msg.Platform != "discord" {
			t.Errorf("platform = %q, want discord", msg.Platform)
		}
		if msg.ChatID != "C1" {
			t.Errorf("chat = %q, want C1", msg.ChatID)
		}
		if msg.UserID != 200000000000000002 {
			t.Errorf("user id = %d", msg.UserID)
		}
		if msg.UserName != "alice" {
			t.Errorf("username = %q, want alice", msg.UserName)
		}
		if msg.Text != "+998991234567" {
			t.Errorf("text = %q", msg.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound message")
	}
}

func TestListen_FiltersSelfAndBotMessages(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())

	// Self-message.
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "100",
			ChannelID: "C1",
			Content:   "self",
			Author:    &discordgo.User{ID: "900000000000000001"},
		},
	})
	// Another bot.
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "101",
			ChannelID: "C1",
			Content:   "beep",
			Author:    &discordgo.User{ID: "300000000000000003", Bot: true},
		},
	})

	select {
	case msg := <-ch:
		t.Fatalf("unexpected inbound message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// --- Send tests ---

func TestSend_ToChatID(t *testing.T) {
	a, sess := newTestAdapter(t)

	err := a.Send(context.Background(), bot.OutboundMessage{ChatID: "C9", Text: "Enter the phone number."})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	got := sess.lastSent()
	if got.channelID != "C9" {
		t.Errorf("channel = %q, want C9", got.channelID)
	}
	if got.content != "Enter the phone number." {
		t.Errorf("content = %q", got.content)
	}
}

func TestSend_DefaultChannelFallback(t *testing.T) {
	a, sess := newTestAdapter(t)

	if err := a.Send(context.Background(), bot.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := sess.lastSent().channelID; got != "C_DEFAULT" {
		t.Errorf("channel = %q, want C_DEFAULT", got)
	}
}

func TestSend_NoChannel(t *testing.T) {
	sess := newMockSession()
	a, _ := New(AdapterOpts{Session: sess})
	a.Connect(context.Background())

	if err := a.Send(context.Background(), bot.OutboundMessage{Text: "hi"}); err == nil {
		t.Fatal("expected error when no channel can be resolved")
	}
}

func TestSend_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Session: newMockSession()})
	if err := a.Send(context.Background(), bot.OutboundMessage{ChatID: "C1", Text: "x"}); err == nil {
		t.Fatal("expected error for not connected")
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.baseBackoff = time.Millisecond

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestSend_NonRateLimitErrorIsImmediate(t *testing.T) {
	a, _ := newTestAdapter(t)

	calls := 0
	err := a.retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("permission denied")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for non-429)", calls)
	}
}

// --- Close tests ---

func TestClose_Idempotent(t *testing.T) {
	a, sess := newTestAdapter(t)
	if _, err := a.Listen(context.Background()); err != nil {
		t.Fatalf("listen: %v", err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !sess.closeCalled {
		t.Error("expected session close")
	}
	if sess.removeCount != 1 {
		t.Errorf("handler removals = %d, want 1", sess.removeCount)
	}
}

func TestClose_DropsLateEvents(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The gateway can still dispatch an in-flight event after Close; it
	// must be dropped rather than sent into the closed channel.
	a.handleMessage(&discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "102",
			ChannelID: "C1",
			Content:   "late",
			Author:    &discordgo.User{ID: "200000000000000002", Username: "alice"},
		},
	})

	if _, ok := <-ch; ok {
		t.Fatal("no message should arrive after close")
	}
}

func TestParseSnowflake(t *testing.T) {
	if got := parseSnowflake("123456789012345678"); got != 123456789012345678 {
		t.Errorf("got %d", got)
	}
	if got := parseSnowflake("not-a-snowflake"); got != 0 {
		t.Errorf("got %d, want 0 for malformed IDs", got)
	}
}
