package bot

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oxang/groupforge/internal/authz"
	"github.com/oxang/groupforge/internal/config"
	"github.com/oxang/groupforge/internal/models"
)

var errTestConnect = errors.New("gateway unreachable")

func daemonConfig() *config.Config {
	cfg := &config.Config{Passphrase: "swordfish"}
	cfg.Provision.GroupCount = 2
	cfg.Provision.DelaySeconds = 1
	cfg.SweepCron = "*/10 * * * *"
	return cfg
}

func TestNewDaemon_MissingRequired(t *testing.T) {
	db := openBotTestDB(t)
	store, _ := authz.NewGormStore(db)
	adapter := NewMockAdapter()
	cfg := daemonConfig()

	tests := []struct {
		name string
		opts DaemonOpts
	}{
		{"no db", DaemonOpts{Config: cfg, Adapter: adapter, Store: store}},
		{"no config", DaemonOpts{DB: db, Adapter: adapter, Store: store}},
		{"no adapter", DaemonOpts{DB: db, Config: cfg, Store: store}},
		{"no store", DaemonOpts{DB: db, Config: cfg, Adapter: adapter}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDaemon(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewDaemon_DefaultsToNoopDialer(t *testing.T) {
	db := openBotTestDB(t)
	store, _ := authz.NewGormStore(db)
	var out bytes.Buffer

	d, err := NewDaemon(DaemonOpts{
		DB:      db,
		Config:  daemonConfig(),
		Adapter: NewMockAdapter(),
		Store:   store,
		Out:     &out,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if d.dialer == nil {
		t.Error("dialer should default to a refusing implementation")
	}
	if !bytes.Contains(out.Bytes(), []byte("no account dialer")) {
		t.Errorf("out = %q, want a warning about the missing dialer", out.String())
	}
}

func TestDaemonRun_PumpsAndShutsDown(t *testing.T) {
	db := openBotTestDB(t)
	store, _ := authz.NewGormStore(db)
	adapter := NewMockAdapter()
	adapter.SetBotUserID(99)
	var out bytes.Buffer

	d, err := NewDaemon(DaemonOpts{
		DB:      db,
		Config:  daemonConfig(),
		Adapter: adapter,
		Store:   store,
		Out:     &out,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	// Self-messages never reach the controller.
	adapter.SimulateInbound(InboundMessage{Platform: "mock", ChatID: "c", UserID: 99, Text: "/start"})
	// An operator message does.
	adapter.SimulateInbound(InboundMessage{Platform: "mock", ChatID: "c", UserID: 1, Text: "/start"})

	deadline := time.After(5 * time.Second)
	for adapter.SentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("daemon never replied to the operator")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if adapter.SentCount() != 1 {
		t.Errorf("sent = %d, want 1 (self-message must be filtered)", adapter.SentCount())
	}
	last, _ := adapter.LastSent()
	if last.Text != msgSecretPrompt {
		t.Errorf("last sent = %q, want secret prompt", last.Text)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run returned %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestDaemonRun_ConnectFailure(t *testing.T) {
	db := openBotTestDB(t)
	store, _ := authz.NewGormStore(db)
	adapter := NewMockAdapter()
	adapter.ConnectErr = errTestConnect
	var out bytes.Buffer

	d, err := NewDaemon(DaemonOpts{
		DB:      db,
		Config:  daemonConfig(),
		Adapter: adapter,
		Store:   store,
		Out:     &out,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Error("expected connect error to surface")
	}
}

func TestSweepStaleRuns(t *testing.T) {
	db := openBotTestDB(t)

	stale := models.ProvisionRun{
		OperatorID:    1,
		Phone:         "+998991110000",
		Status:        models.RunStatusRunning,
		Total:         50,
		LastHeartbeat: time.Now().Add(-5 * time.Minute),
	}
	fresh := models.ProvisionRun{
		OperatorID:    2,
		Phone:         "+998992220000",
		Status:        models.RunStatusRunning,
		Total:         50,
		LastHeartbeat: time.Now(),
	}
	finished := models.ProvisionRun{
		OperatorID:    3,
		Phone:         "+998993330000",
		Status:        models.RunStatusCompleted,
		Total:         50,
		LastHeartbeat: time.Now().Add(-time.Hour),
	}
	for _, r := range []*models.ProvisionRun{&stale, &fresh, &finished} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed run: %v", err)
		}
	}

	swept, err := SweepStaleRuns(db, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	// Fresh destination structs per lookup; a reused one would carry the
	// previous row's primary key into the query conditions.
	var gotStale models.ProvisionRun
	db.First(&gotStale, stale.ID)
	if gotStale.Status != models.RunStatusFailed {
		t.Errorf("stale run status = %q, want failed", gotStale.Status)
	}
	if gotStale.Error != "heartbeat lost" {
		t.Errorf("stale run error = %q", gotStale.Error)
	}
	if gotStale.CompletedAt == nil {
		t.Error("stale run should carry a completion timestamp")
	}

	var gotFresh models.ProvisionRun
	db.First(&gotFresh, fresh.ID)
	if gotFresh.Status != models.RunStatusRunning {
		t.Errorf("fresh run status = %q, want running", gotFresh.Status)
	}
}

func TestSweepStaleRuns_ZeroTimeoutUsesDefault(t *testing.T) {
	db := openBotTestDB(t)
	run := models.ProvisionRun{
		OperatorID:    1,
		Phone:         "+998991110000",
		Status:        models.RunStatusRunning,
		LastHeartbeat: time.Now().Add(-time.Minute),
	}
	if err := db.Create(&run).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	// One minute stale is within the default 90s window.
	swept, err := SweepStaleRuns(db, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}

func TestNextCronDuration(t *testing.T) {
	if d := nextCronDuration("*/10 * * * *"); d <= 0 || d > 10*time.Minute {
		t.Errorf("duration = %v, want within (0, 10m]", d)
	}
	if d := nextCronDuration("not a cron line"); d != 0 {
		t.Errorf("duration = %v, want 0 for a bad expression", d)
	}
}
