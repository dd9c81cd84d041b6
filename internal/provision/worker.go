// Package provision implements the batch group-creation worker: given one
// authenticated account client, it creates N groups, wires the auxiliary
// accounts into each, reports progress, and releases everything on exit.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/oxang/groupforge/internal/account"
	"github.com/oxang/groupforge/internal/models"
	"gorm.io/gorm"
)

// DefaultGroupCount is the number of groups created per batch run.
const DefaultGroupCount = 50

// DefaultCycleDelay is the courtesy pause between cycles.
const DefaultCycleDelay = time.Second

// AuxAccount is one of the fixed accounts invited into every created group.
type AuxAccount struct {
	Username         string
	GrantAdmins      bool // broader rights set: may promote further admins
	RemoveAfterGrant bool // expelled (not banned) right after promotion
}

// Notifier delivers progress and error text back to the operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Worker runs one batch provisioning run over an authenticated client.
type Worker struct {
	client      account.Client
	notifier    Notifier
	db          *gorm.DB // optional; enables run persistence
	operatorID  int64
	phone       string
	sessionsDir string
	total       int
	delay       time.Duration
	aux         []AuxAccount
	out         io.Writer
}

// WorkerOpts holds parameters for creating a Worker.
type WorkerOpts struct {
	Client      account.Client
	Notifier    Notifier
	DB          *gorm.DB // optional
	OperatorID  int64
	Phone       string
	SessionsDir string
	Total       int           // defaults to DefaultGroupCount
	Delay       time.Duration // defaults to DefaultCycleDelay
	AuxAccounts []AuxAccount
	Out         io.Writer // defaults to os.Stdout
}

// NewWorker creates a Worker.
func NewWorker(opts WorkerOpts) (*Worker, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("provision: client is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("provision: notifier is required")
	}
	if opts.Phone == "" {
		return nil, fmt.Errorf("provision: phone is required")
	}
	total := opts.Total
	if total <= 0 {
		total = DefaultGroupCount
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultCycleDelay
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Worker{
		client:      opts.Client,
		notifier:    opts.Notifier,
		db:          opts.DB,
		operatorID:  opts.OperatorID,
		phone:       opts.Phone,
		sessionsDir: opts.SessionsDir,
		total:       total,
		delay:       delay,
		aux:         opts.AuxAccounts,
		out:         out,
	}, nil
}

// Handle is the supervised handle to a running worker. The conversation
// controller owns it: completion is observable via Done, and Cancel is
// joinable (Cancel + <-Done) rather than fire-and-forget.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the worker has finished its termination sequence.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel asks the worker to stop. The termination sequence still runs;
// wait on Done to join.
func (h *Handle) Cancel() { h.cancel() }

// Err returns the batch-level error, valid after Done is closed.
func (h *Handle) Err() error { return h.err }

// Start launches the worker and returns its supervised handle.
func (w *Worker) Start(ctx context.Context) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.err = w.Run(runCtx)
	}()
	return h
}

// Run executes the batch synchronously. Whatever happens inside the cycle
// loop, the termination sequence runs exactly once before Run returns: leave
// every created group, disconnect the client, delete session artifacts, and
// persist the final run status.
func (w *Worker) Run(ctx context.Context) error {
	run := w.beginRun()
	var created []account.Group
	var failed int
	var batchErr error

	defer func() {
		w.terminate(created)
		w.finishRun(run, len(created), failed, batchErr)
	}()

	for i := 1; i <= w.total; i++ {
		if err := ctx.Err(); err != nil {
			batchErr = err
			break
		}

		group, err := w.provisionCycle(ctx, i)
		if err != nil {
			if isFatal(err) {
				// Unrecoverable: report once, then fall through to the
				// termination sequence.
				batchErr = err
				w.notify(ctx, "Provisioning failed with an unexpected error. Cleaning up.")
				log.Printf("provision: batch aborted on cycle %d: %v", i, err)
				break
			}
			failed++
			w.notify(ctx, fmt.Sprintf("Group creation failed (%d): %v", i, err))
		} else {
			created = append(created, group)
			w.notify(ctx, ProgressLine(i, w.total))
		}
		w.heartbeat(run, len(created), failed)

		if i < w.total {
			select {
			case <-ctx.Done():
				batchErr = ctx.Err()
			case <-time.After(w.delay):
			}
			if batchErr != nil {
				break
			}
		}
	}

	if batchErr == nil {
		w.notify(ctx, fmt.Sprintf("Done: %d/%d groups created and released. Session cleaned up.",
			len(created), w.total))
	}
	return batchErr
}

// provisionCycle creates one group and wires the auxiliary accounts into it.
// Only the group creation error is returned; everything downstream of a
// created group is non-fatal and handled in place.
func (w *Worker) provisionCycle(ctx context.Context, i int) (account.Group, error) {
	title := fmt.Sprintf("AutoGroup %s #%d", w.phone, i)
	about := fmt.Sprintf("Auto-provisioned group %d/%d", i, w.total)

	group, err := w.client.CreateGroup(ctx, title, about)
	if err != nil {
		return account.Group{}, err
	}

	for _, aux := range w.aux {
		w.wireAuxAccount(ctx, group, aux)
	}
	return group, nil
}

// wireAuxAccount resolves, invites, and promotes one auxiliary account in a
// freshly created group. Every step is best-effort: a failure skips the rest
// of this account's steps but never the cycle.
func (w *Worker) wireAuxAccount(ctx context.Context, group account.Group, aux AuxAccount) {
	acct, err := w.client.ResolveAccount(ctx, aux.Username)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			log.Printf("provision: resolve %s: %v", aux.Username, err)
		}
		return
	}

	if err := w.client.Invite(ctx, group, acct); err != nil {
		log.Printf("provision: invite %s to %q: %v", aux.Username, group.Title, err)
		return
	}

	rights := account.StandardRights(aux.GrantAdmins)
	if err := w.client.SetAdminRights(ctx, group, acct, rights); err != nil {
		// Some accounts cannot be promoted; the cycle goes on regardless.
		log.Printf("provision: promote %s in %q: %v", aux.Username, group.Title, err)
	}

	if aux.RemoveAfterGrant {
		w.expel(ctx, group, acct)
	}
}

// expel removes an account from a group without a lasting ban: restrict then
// immediately clear, so the account may be re-added later. If either half
// fails, fall back to a forced removal; if that fails too, the account stays.
func (w *Worker) expel(ctx context.Context, group account.Group, acct account.Account) {
	err := w.client.SetRestricted(ctx, group, acct, true)
	if err == nil {
		err = w.client.SetRestricted(ctx, group, acct, false)
	}
	if err == nil {
		return
	}
	log.Printf("provision: soft-remove %s from %q: %v", acct.Username, group.Title, err)

	if err := w.client.ForceRemove(ctx, group, acct); err != nil {
		log.Printf("provision: force-remove %s from %q: %v", acct.Username, group.Title, err)
	}
}

// terminate is the always-run release path: leave every created group,
// disconnect the client, and delete session artifacts.
func (w *Worker) terminate(created []account.Group) {
	// Leaves and artifact removal are best-effort; disconnect is the one
	// step that must happen and it happens exactly once, here.
	ctx := context.Background()
	for _, g := range created {
		if err := w.client.LeaveGroup(ctx, g); err != nil {
			log.Printf("provision: leave %q: %v", g.Title, err)
		}
	}
	if err := w.client.Disconnect(); err != nil {
		log.Printf("provision: disconnect: %v", err)
	}
	if w.sessionsDir != "" {
		if err := account.RemoveArtifacts(w.sessionsDir, w.phone); err != nil {
			log.Printf("provision: remove session artifacts for %s: %v", w.phone, err)
		}
	}
}

// isFatal reports whether a cycle error should abort the whole batch rather
// than skip to the next cycle. Context teardown is the only fatal class;
// every remote-call failure is a per-cycle event.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// notify sends operator-facing text, logging delivery failures.
func (w *Worker) notify(ctx context.Context, text string) {
	if err := w.notifier.Notify(ctx, text); err != nil {
		log.Printf("provision: notify: %v", err)
	}
	fmt.Fprintf(w.out, "provision: %s\n", text)
}

// beginRun persists the run row, if a database is configured.
func (w *Worker) beginRun() *models.ProvisionRun {
	if w.db == nil {
		return nil
	}
	run := &models.ProvisionRun{
		OperatorID:    w.operatorID,
		Phone:         w.phone,
		Status:        models.RunStatusRunning,
		Total:         w.total,
		LastHeartbeat: time.Now(),
	}
	if err := w.db.Create(run).Error; err != nil {
		log.Printf("provision: create run row: %v", err)
		return nil
	}
	return run
}

// heartbeat refreshes the run row's counters and liveness timestamp.
func (w *Worker) heartbeat(run *models.ProvisionRun, created, failed int) {
	if run == nil {
		return
	}
	err := w.db.Model(run).Updates(map[string]interface{}{
		"groups_created": created,
		"groups_failed":  failed,
		"last_heartbeat": time.Now(),
	}).Error
	if err != nil {
		log.Printf("provision: heartbeat run %d: %v", run.ID, err)
	}
}

// finishRun records the final status of the run row.
func (w *Worker) finishRun(run *models.ProvisionRun, created, failed int, batchErr error) {
	if run == nil {
		return
	}
	status := models.RunStatusCompleted
	errText := ""
	if batchErr != nil {
		status = models.RunStatusFailed
		errText = batchErr.Error()
	}
	now := time.Now()
	err := w.db.Model(run).Updates(map[string]interface{}{
		"status":         status,
		"groups_created": created,
		"groups_failed":  failed,
		"error":          errText,
		"completed_at":   &now,
	}).Error
	if err != nil {
		log.Printf("provision: finish run %d: %v", run.ID, err)
	}
}
