package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oxang/groupforge/internal/account"
	"github.com/oxang/groupforge/internal/authz"
	"github.com/oxang/groupforge/internal/provision"
	"gorm.io/gorm"
)

// DefaultIdleTimeout is how long a non-running conversation may sit idle
// before the sweeper expires it.
const DefaultIdleTimeout = 15 * time.Minute

// Controller drives each operator's conversation: passphrase gate, phone,
// verification code, optional second factor, then hands the authenticated
// client to a provisioning worker. One Controller serves all operators.
type Controller struct {
	store       authz.Store
	dialer      account.Dialer
	adapter     Adapter
	db          *gorm.DB // optional; passed through to workers
	passphrase  string
	sessionsDir string
	total       int
	delay       time.Duration
	aux         []provision.AuxAccount
	idleTimeout time.Duration
	out         io.Writer

	mu       sync.Mutex
	sessions map[int64]*OperatorSession
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Store       authz.Store
	Dialer      account.Dialer
	Adapter     Adapter
	DB          *gorm.DB // optional
	Passphrase  string
	SessionsDir string
	Total       int
	Delay       time.Duration
	AuxAccounts []provision.AuxAccount
	IdleTimeout time.Duration // defaults to DefaultIdleTimeout
	Out         io.Writer     // defaults to os.Stdout
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: controller: authz store is required")
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("bot: controller: dialer is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: controller: adapter is required")
	}
	if opts.Passphrase == "" {
		return nil, fmt.Errorf("bot: controller: passphrase is required")
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	// Worker goroutines log through the same sink as the message loop.
	out = wrapOut(out)
	return &Controller{
		store:       opts.Store,
		dialer:      opts.Dialer,
		adapter:     opts.Adapter,
		db:          opts.DB,
		passphrase:  opts.Passphrase,
		sessionsDir: opts.SessionsDir,
		total:       opts.Total,
		delay:       opts.Delay,
		aux:         opts.AuxAccounts,
		idleTimeout: idle,
		out:         out,
		sessions:    make(map[int64]*OperatorSession),
	}, nil
}

// Handle processes one inbound message through the operator's state machine.
func (c *Controller) Handle(ctx context.Context, msg InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// The state is read once, under the session table lock: the worker
	// monitor retires running sessions from its own goroutine.
	sess, state := c.lookup(msg.UserID)
	fmt.Fprintf(c.out, "bot: recv [user=%d state=%s] %q\n",
		msg.UserID, stateName(sess, state), truncate(text, 60))

	// RUNNING swallows everything; the worker owns the conversation until
	// it reaches its own end.
	if sess != nil && state == StateRunning {
		return
	}

	switch text {
	case "/cancel":
		c.cancel(ctx, sess, msg)
		return
	case "/start":
		c.start(ctx, sess, msg)
		return
	}

	if sess == nil {
		// First contact without /start behaves like /start.
		c.start(ctx, nil, msg)
		return
	}

	sess.touch()
	sess.ChatID = msg.ChatID

	switch state {
	case StateAwaitingSecret:
		c.handleSecret(ctx, sess, text)
	case StateAwaitingPhone:
		c.handlePhone(ctx, sess, text)
	case StateAwaitingCode:
		c.handleCode(ctx, sess, text)
	case StateAwaitingSecondFactor:
		c.handleSecondFactor(ctx, sess, text)
	default:
		log.Printf("bot: operator %d in unexpected state %s", sess.OperatorID, state)
	}
}

// start begins or restarts the conversation. Operators already present in
// the authorization record skip the passphrase gate.
func (c *Controller) start(ctx context.Context, sess *OperatorSession, msg InboundMessage) {
	if sess != nil {
		c.releaseClient(sess)
		c.removeSession(sess.OperatorID)
	}

	sess = &OperatorSession{
		OperatorID: msg.UserID,
		ChatID:     msg.ChatID,
		State:      StateAwaitingSecret,
	}
	sess.touch()

	authorized, err := c.store.IsAuthorized(ctx, msg.UserID)
	if err != nil {
		log.Printf("bot: authorization lookup for %d: %v", msg.UserID, err)
	}
	if authorized {
		sess.State = StateAwaitingPhone
		c.putSession(sess)
		c.reply(ctx, sess, msgWelcomeBack)
		return
	}
	c.putSession(sess)
	c.reply(ctx, sess, msgSecretPrompt)
}

// cancel terminates the conversation from any non-running state.
func (c *Controller) cancel(ctx context.Context, sess *OperatorSession, msg InboundMessage) {
	if sess == nil {
		return
	}
	c.terminate(sess)
	c.sendTo(ctx, msg.ChatID, msgCancelled)
}

// handleSecret checks the passphrase. A wrong passphrase re-prompts and
// stays in state; the conversation is never torn down for it.
func (c *Controller) handleSecret(ctx context.Context, sess *OperatorSession, text string) {
	if text != c.passphrase {
		c.reply(ctx, sess, msgSecretWrong)
		return
	}
	if err := c.store.Authorize(ctx, sess.OperatorID); err != nil {
		log.Printf("bot: record authorization for %d: %v", sess.OperatorID, err)
	}
	sess.State = StateAwaitingPhone
	c.reply(ctx, sess, msgPhonePrompt)
}

// handlePhone validates the phone, opens the account client, and requests
// a verification code. A remote failure here is terminal.
func (c *Controller) handlePhone(ctx context.Context, sess *OperatorSession, text string) {
	if !strings.HasPrefix(text, "+") {
		c.reply(ctx, sess, msgPhoneInvalid)
		return
	}

	client, err := c.dialer.Dial(ctx, text)
	if err != nil {
		c.reply(ctx, sess, fmt.Sprintf("Could not open an account session: %v", err))
		c.terminate(sess)
		return
	}

	sess.Phone = text
	sess.Client = client

	if err := client.SendCode(ctx); err != nil {
		c.reply(ctx, sess, fmt.Sprintf("Could not send the verification code: %v", err))
		c.terminate(sess)
		return
	}

	sess.State = StateAwaitingCode
	c.reply(ctx, sess, msgCodePrompt)
}

// handleCode attempts sign-in with the out-of-band code. Three outcomes:
// signed in, second factor required, or terminal failure.
func (c *Controller) handleCode(ctx context.Context, sess *OperatorSession, text string) {
	err := sess.Client.SignIn(ctx, text)
	switch {
	case err == nil:
		c.startWorker(ctx, sess)
	case errors.Is(err, account.ErrSecondFactorRequired):
		sess.SecondFactor = true
		sess.State = StateAwaitingSecondFactor
		c.reply(ctx, sess, msgTwoFAPrompt)
	default:
		c.reply(ctx, sess, fmt.Sprintf("Sign-in failed: %v", err))
		c.terminate(sess)
	}
}

// handleSecondFactor accepts exactly one second-factor attempt.
func (c *Controller) handleSecondFactor(ctx context.Context, sess *OperatorSession, text string) {
	if err := sess.Client.SignInSecondFactor(ctx, text); err != nil {
		c.reply(ctx, sess, fmt.Sprintf("Second-factor sign-in failed: %v", err))
		c.terminate(sess)
		return
	}
	c.startWorker(ctx, sess)
}

// startWorker hands the authenticated client to a provisioning worker and
// keeps the supervised handle on the session. When the worker finishes, on
// any exit path, the conversation reaches its end.
func (c *Controller) startWorker(ctx context.Context, sess *OperatorSession) {
	worker, err := provision.NewWorker(provision.WorkerOpts{
		Client:      sess.Client,
		Notifier:    &chatNotifier{adapter: c.adapter, chatID: sess.ChatID},
		DB:          c.db,
		OperatorID:  sess.OperatorID,
		Phone:       sess.Phone,
		SessionsDir: c.sessionsDir,
		Total:       c.total,
		Delay:       c.delay,
		AuxAccounts: c.aux,
		Out:         c.out,
	})
	if err != nil {
		c.reply(ctx, sess, fmt.Sprintf("Could not start provisioning: %v", err))
		c.terminate(sess)
		return
	}

	c.reply(ctx, sess, msgSignedIn)
	sess.State = StateRunning
	sess.Worker = worker.Start(ctx)
	log.Printf("bot: worker started [operator=%d phone=%s]", sess.OperatorID, sess.Phone)

	go c.monitorWorker(sess)
}

// monitorWorker joins the worker handle and retires the session afterwards.
// The worker has already released the client and session artifacts by the
// time Done closes.
func (c *Controller) monitorWorker(sess *OperatorSession) {
	<-sess.Worker.Done()
	if err := sess.Worker.Err(); err != nil {
		log.Printf("bot: worker for operator %d finished with error: %v", sess.OperatorID, err)
	} else {
		log.Printf("bot: worker for operator %d finished", sess.OperatorID)
	}
	c.retire(sess)
}

// terminate releases the session's client (if the worker never took
// ownership of it) and forgets the session.
func (c *Controller) terminate(sess *OperatorSession) {
	c.releaseClient(sess)
	c.retire(sess)
}

// retire marks the session terminated and forgets it in one locked step.
// Both the message loop and the worker monitor end sessions, so the state
// change must happen under the same lock Handle reads through.
func (c *Controller) retire(sess *OperatorSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess.State = StateTerminated
	delete(c.sessions, sess.OperatorID)
}

// releaseClient disconnects a client that is not owned by a worker and
// removes its half-open session artifacts.
func (c *Controller) releaseClient(sess *OperatorSession) {
	if sess.Client == nil || sess.State == StateRunning {
		return
	}
	if err := sess.Client.Disconnect(); err != nil {
		log.Printf("bot: disconnect client for %d: %v", sess.OperatorID, err)
	}
	sess.Client = nil
	if c.sessionsDir != "" && sess.Phone != "" {
		if err := account.RemoveArtifacts(c.sessionsDir, sess.Phone); err != nil {
			log.Printf("bot: remove session artifacts for %s: %v", sess.Phone, err)
		}
	}
}

// SweepIdle expires conversations that have sat idle in a non-running state
// longer than the idle timeout. Returns how many were expired.
func (c *Controller) SweepIdle(ctx context.Context) int {
	cutoff := time.Now().Add(-c.idleTimeout)

	c.mu.Lock()
	var stale []*OperatorSession
	for _, sess := range c.sessions {
		if sess.State != StateRunning && sess.UpdatedAt.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	c.mu.Unlock()

	for _, sess := range stale {
		log.Printf("bot: expiring idle conversation [operator=%d state=%s]",
			sess.OperatorID, sess.State)
		c.terminate(sess)
		c.sendTo(ctx, sess.ChatID, msgSessionExpired)
	}
	return len(stale)
}

// Sessions returns a snapshot of the live sessions, for tests and status.
func (c *Controller) Sessions() []*OperatorSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*OperatorSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// Session returns the live session for an operator, or nil.
func (c *Controller) Session(operatorID int64) *OperatorSession {
	return c.session(operatorID)
}

func (c *Controller) session(operatorID int64) *OperatorSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[operatorID]
}

// lookup returns the operator's session plus a state snapshot in one locked
// read, or (nil, StateTerminated) when no session exists.
func (c *Controller) lookup(operatorID int64) (*OperatorSession, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sessions[operatorID]
	if sess == nil {
		return nil, StateTerminated
	}
	return sess, sess.State
}

func (c *Controller) putSession(sess *OperatorSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sess.OperatorID] = sess
}

func (c *Controller) removeSession(operatorID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, operatorID)
}

// reply sends text to the session's chat.
func (c *Controller) reply(ctx context.Context, sess *OperatorSession, text string) {
	c.sendTo(ctx, sess.ChatID, text)
}

func (c *Controller) sendTo(ctx context.Context, chatID, text string) {
	if err := c.adapter.Send(ctx, OutboundMessage{ChatID: chatID, Text: text}); err != nil {
		log.Printf("bot: send: %v", err)
	}
}

// syncWriter serializes writes to a shared sink. The daemon loop, the
// controller, and worker goroutines all trace through the same writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// wrapOut wraps a writer for concurrent use, at most once.
func wrapOut(w io.Writer) io.Writer {
	if _, ok := w.(*syncWriter); ok {
		return w
	}
	return &syncWriter{w: w}
}

// chatNotifier adapts the Adapter to the worker's Notifier.
type chatNotifier struct {
	adapter Adapter
	chatID  string
}

func (n *chatNotifier) Notify(ctx context.Context, text string) error {
	return n.adapter.Send(ctx, OutboundMessage{ChatID: n.chatID, Text: text})
}

// sessState names a possibly-nil session's state for the trace log.
func sessState(sess *OperatorSession) string {
	if sess == nil {
		return "new"
	}
	return sess.State.String()
}

// stateName is sessState over a state snapshot taken while the lock was held.
func stateName(sess *OperatorSession, state State) string {
	if sess == nil {
		return "new"
	}
	return state.String()
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
