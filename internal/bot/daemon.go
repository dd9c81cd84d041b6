package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/oxang/groupforge/internal/account"
	"github.com/oxang/groupforge/internal/authz"
	"github.com/oxang/groupforge/internal/config"
	"github.com/oxang/groupforge/internal/provision"
	"gorm.io/gorm"
)

// Daemon is the main bot process. It connects to a chat platform via an
// Adapter, pumps inbound messages through the conversation Controller, and
// runs the cron-scheduled sweeps.
type Daemon struct {
	db      *gorm.DB
	cfg     *config.Config
	adapter Adapter
	dialer  account.Dialer
	store   authz.Store
	out     io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB      *gorm.DB
	Config  *config.Config
	Adapter Adapter
	Dialer  account.Dialer // optional; defaults to account.NoopDialer
	Store   authz.Store
	Out     io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bot: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bot: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bot: authz store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	out = wrapOut(out)
	dialer := opts.Dialer
	if dialer == nil {
		fmt.Fprintf(out, "bot: no account dialer configured; sign-in will be refused\n")
		dialer = account.NoopDialer{}
	}
	return &Daemon{
		db:      opts.DB,
		cfg:     opts.Config,
		adapter: opts.Adapter,
		dialer:  dialer,
		store:   opts.Store,
		out:     out,
	}, nil
}

// Run starts the daemon. It connects the adapter, builds the Controller,
// and blocks until the context is cancelled. On shutdown it closes the
// adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Groupforge connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	controller, err := NewController(ControllerOpts{
		Store:       d.store,
		Dialer:      d.dialer,
		Adapter:     d.adapter,
		DB:          d.db,
		Passphrase:  d.cfg.Passphrase,
		SessionsDir: d.cfg.Account.SessionsDir,
		Total:       d.cfg.Provision.GroupCount,
		Delay:       time.Duration(d.cfg.Provision.DelaySeconds) * time.Second,
		AuxAccounts: auxFromConfig(d.cfg.Provision.AuxAccounts),
		Out:         d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build controller: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	var botUserID int64
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	sweepTimer := time.NewTimer(d.nextSweep())
	defer sweepTimer.Stop()

	fmt.Fprintf(d.out, "Groupforge online\n")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Groupforge shutting down...\n")
			if err := d.adapter.Close(); err != nil {
				log.Printf("bot: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Groupforge stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Groupforge inbound channel closed\n")
				return nil
			}
			if botUserID != 0 && msg.UserID == botUserID {
				continue // self-message
			}
			controller.Handle(ctx, msg)

		case <-sweepTimer.C:
			expired := controller.SweepIdle(ctx)
			swept, err := SweepStaleRuns(d.db, DefaultRunHeartbeatTimeout)
			if err != nil {
				log.Printf("bot: %v", err)
			}
			if expired > 0 || swept > 0 {
				fmt.Fprintf(d.out, "bot: sweep expired %d conversations, %d stale runs\n",
					expired, swept)
			}
			sweepTimer.Reset(d.nextSweep())
		}
	}
}

// nextSweep returns the time until the next scheduled sweep, falling back
// to a fixed interval when the cron expression does not parse.
func (d *Daemon) nextSweep() time.Duration {
	if dur := nextCronDuration(d.cfg.SweepCron); dur > 0 {
		return dur
	}
	return 10 * time.Minute
}

// auxFromConfig converts config aux-account entries to the worker's type.
func auxFromConfig(accounts []config.AuxAccount) []provision.AuxAccount {
	out := make([]provision.AuxAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, provision.AuxAccount{
			Username:         a.Username,
			GrantAdmins:      a.GrantAdmins,
			RemoveAfterGrant: a.RemoveAfterGrant,
		})
	}
	return out
}
