package main

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestWatchedProcessesEmptyWhenUnset(t *testing.T) {
	os.Unsetenv("SENTINEL_WATCH_PROCESSES")
	if probes := watchedProcesses(time.Second); probes != nil {
		t.Fatalf("watchedProcesses() = %v, want nil", probes)
	}
}

func TestWatchedProcessesParsesEntries(t *testing.T) {
	os.Setenv("SENTINEL_WATCH_PROCESSES", "api:123, worker:456")
	defer os.Unsetenv("SENTINEL_WATCH_PROCESSES")

	probes := watchedProcesses(5 * time.Second)
	if len(probes) != 2 {
		t.Fatalf("len(probes) = %d, want 2", len(probes))
	}
	ids := map[string]bool{}
	for _, p := range probes {
		ids[p.SourceID()] = true
	}
	if !ids["heal.process.api"] || !ids["heal.process.worker"] {
		t.Fatalf("probes = %+v, want heal.process.api and heal.process.worker", probes)
	}
}

func TestWatchedProcessesSkipsMalformedEntries(t *testing.T) {
	os.Setenv("SENTINEL_WATCH_PROCESSES", "bad-entry,api:not-a-pid,good:789")
	defer os.Unsetenv("SENTINEL_WATCH_PROCESSES")

	probes := watchedProcesses(time.Second)
	if len(probes) != 1 {
		t.Fatalf("len(probes) = %d, want 1 (only the well-formed entry)", len(probes))
	}
	if probes[0].SourceID() != "heal.process.good" {
		t.Fatalf("probes[0].SourceID() = %q, want %q", probes[0].SourceID(), "heal.process.good")
	}
}

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"version", "serve", "migrate", "override"} {
		if !names[want] {
			t.Fatalf("rootCmd missing subcommand %q, have %+v", want, names)
		}
	}
}

func TestOverrideCommandsDeclareExpectedFlags(t *testing.T) {
	for _, cmd := range []*cobra.Command{overrideGrantCmd, overrideRevokeCmd} {
		for _, name := range []string{"category", "reason", "session", "duration"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Fatalf("%s missing --%s flag", cmd.Name(), name)
			}
		}
	}
	if overrideCmd.Commands() == nil {
		t.Fatal("overrideCmd has no subcommands registered")
	}
}
