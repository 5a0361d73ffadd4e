package main

import (
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	want := map[string]bool{"serve": false, "paths": false, "templates": false, "open": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("REMISS_TEST_BOOL", "true")
	v, ok := parseBoolEnv("REMISS_TEST_BOOL")
	if !ok || !v {
		t.Fatalf("parseBoolEnv = %v, %v", v, ok)
	}

	t.Setenv("REMISS_TEST_BOOL", "not-a-bool")
	if _, ok := parseBoolEnv("REMISS_TEST_BOOL"); ok {
		t.Fatal("expected parse failure for invalid bool")
	}

	if _, ok := parseBoolEnv("REMISS_TEST_BOOL_UNSET"); ok {
		t.Fatal("expected miss for unset env")
	}
}

func TestLoggingLevelOrDefault(t *testing.T) {
	if got := loggingLevelOrDefault("  "); got != "info" {
		t.Fatalf("loggingLevelOrDefault = %q", got)
	}
	if got := loggingLevelOrDefault("debug"); got != "debug" {
		t.Fatalf("loggingLevelOrDefault = %q", got)
	}
}

func TestToDepartments(t *testing.T) {
	depts := toDepartments([]string{"maintenance", "safety"})
	if len(depts) != 2 || string(depts[0]) != "maintenance" {
		t.Fatalf("toDepartments = %v", depts)
	}
}
