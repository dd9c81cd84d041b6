package main

import (
	"strings"
	"testing"
)

func TestDBMigrateCmd(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	out, err := runCmd(t, "db", "migrate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("db migrate failed: %v", err)
	}
	if !strings.Contains(out, "Connected to sqlite database") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "Migrated 2 tables") {
		t.Errorf("output = %s", out)
	}
}

func TestDBMigrateCmd_Idempotent(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	if _, err := runCmd(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if _, err := runCmd(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestDBMigrateCmd_MissingConfig(t *testing.T) {
	_, err := runCmd(t, "db", "migrate", "--config", "/nonexistent/groupforge.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}
