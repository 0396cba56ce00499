package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	want := []string{"migrate up", "migrate down", "migrate version", "grant", "revoke", "reactivate", "make-available", "sweep"}
	for _, path := range want {
		cmd, _, err := rootCmd.Find(strings.Fields(path))
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", path)
		}
	}
}

func TestArgumentValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"sweep needs a job", []string{"sweep"}},
		{"sweep rejects unknown job", []string{"sweep", "everything"}},
		{"revoke needs an id", []string{"revoke"}},
		{"grant needs an admin", []string{"grant", "--months", "1"}},
		{"grant needs a duration", []string{"grant", "--admin", "a"}},
		{"migrate up takes no args", []string{"migrate", "up", "extra"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := execute(t, tc.args...); err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
		})
	}
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(t, "--config", t.TempDir()+"/absent.yaml", "--env", t.TempDir()+"/absent.env", "sweep", "expiry")
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("want config read error, got %v", err)
	}
}

func TestSweepJobsMatchScheduler(t *testing.T) {
	for _, arg := range sweepCmd.ValidArgs {
		if _, ok := sweepJobs[arg]; !ok {
			t.Errorf("valid arg %q has no job mapping", arg)
		}
	}
}
