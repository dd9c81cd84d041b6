package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestOperator_Fields(t *testing.T) {
	typ := reflect.TypeOf(Operator{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "OperatorID", "uniqueIndex")
	assertGormTag(t, typ, "OperatorID", "not null")
	assertGormTag(t, typ, "AuthorizedAt", "not null")

	assertFieldType(t, typ, "OperatorID", "int64")
	assertFieldType(t, typ, "AuthorizedAt", "time.Time")
}

func TestProvisionRun_Fields(t *testing.T) {
	typ := reflect.TypeOf(ProvisionRun{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "OperatorID", "index")
	assertGormTag(t, typ, "Phone", "size:32")
	assertGormTag(t, typ, "Phone", "index")
	assertGormTag(t, typ, "Status", "default:running")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "LastHeartbeat", "index")

	assertFieldType(t, typ, "OperatorID", "int64")
	assertFieldType(t, typ, "CompletedAt", "*time.Time")
}

func TestRunStatuses(t *testing.T) {
	for _, s := range []string{RunStatusRunning, RunStatusCompleted, RunStatusFailed} {
		if s == "" {
			t.Fatal("empty run status constant")
		}
	}
	if RunStatusRunning == RunStatusCompleted || RunStatusCompleted == RunStatusFailed {
		t.Fatal("run status constants must be distinct")
	}
}
