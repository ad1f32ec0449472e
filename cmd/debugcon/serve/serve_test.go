package serve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/txn2/debugcon/pkg/concfg"
	"github.com/txn2/debugcon/pkg/conlog"
	"github.com/txn2/debugcon/pkg/consession"
)

// newTestCmd returns a command with the serve flags parsed from args
func newTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().AddFlagSet(Cmd.Flags())
	// reset the package flag variables
	for _, name := range []string{"port", "keep", "empty-login", "config", "credentials", "mirror"} {
		f := Cmd.Flags().Lookup(name)
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	levels = []string{}
	Cmd.Flags().Lookup("levels").Changed = false
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Failed to parse %v: %v", args, err)
	}
	return cmd
}

// TestBuildOptionsFlags tests options built from flags alone
func TestBuildOptionsFlags(t *testing.T) {
	cmd := newTestCmd(t, "--port", "4000", "--levels", "warn,error", "--mirror")

	opts, creds, err := buildOptions(cmd)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if creds != nil || opts.Auth != nil {
		t.Error("Expected no authentication")
	}
	if opts.Port != 4000 || !opts.Mirror || opts.Keep != conlog.DefaultKeep {
		t.Errorf("Unexpected options %+v", opts)
	}
	if len(opts.Levels) != 2 || opts.Levels[0] != conlog.WarnLevel {
		t.Errorf("Unexpected levels %v", opts.Levels)
	}
}

// TestBuildOptionsConfig tests that the file fills what flags leave unset
func TestBuildOptionsConfig(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "debugcon.yaml")
	content := "port: 5000\nkeep: 20\nemptyLogin: restart\nusers:\n  admin: secret\n"
	if err := os.WriteFile(config, []byte(content), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cmd := newTestCmd(t, "--config", config, "--keep", "7")
	opts, _, err := buildOptions(cmd)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if opts.Port != 5000 {
		t.Errorf("Expected port from the file, got %d", opts.Port)
	}
	if opts.Keep != 7 {
		t.Errorf("Expected the keep flag to win, got %d", opts.Keep)
	}
	if opts.EmptyLogin != consession.EmptyLoginRestart {
		t.Error("Expected restart policy from the file")
	}
	if opts.Auth == nil || !opts.Auth.Authenticate("admin", "secret") {
		t.Error("Expected inline users to authenticate")
	}
}

// TestBuildOptionsCredentials tests the credential table flag
func TestBuildOptionsCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte("users:\n  ops: pw\n"), 0o600); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cmd := newTestCmd(t, "--credentials", path)
	opts, creds, err := buildOptions(cmd)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := opts.Auth.(*concfg.Credentials); !ok || creds == nil {
		t.Fatal("Expected a credential table")
	}
	if !opts.Auth.Authenticate("ops", "pw") {
		t.Error("Expected ops to authenticate")
	}
}

// TestBuildOptionsErrors tests invalid flag values
func TestBuildOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"level", []string{"--levels", "loud"}},
		{"empty login", []string{"--empty-login", "retry"}},
		{"missing config", []string{"--config", "/nonexistent/debugcon.yaml"}},
		{"missing credentials", []string{"--credentials", "/nonexistent/users.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestCmd(t, tt.args...)
			if _, _, err := buildOptions(cmd); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
