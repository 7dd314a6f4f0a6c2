package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// buildRoot constructs the root command as main() does, for use in tests.
func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "botgate",
		Short: "HTTP admission gate with bot detection and crawler traps",
	}
	root.AddCommand(runCmd(), healthcheckCmd(), versionCmd())
	return root
}

// TestRootSubcommands verifies all expected subcommands are registered.
func TestRootSubcommands(t *testing.T) {
	root := buildRoot()

	registered := make(map[string]bool)
	for _, cmd := range root.Commands() {
		registered[cmd.Use] = true
	}

	for _, want := range []string{"run", "version", "healthcheck"} {
		if !registered[want] {
			t.Errorf("subcommand %q not registered on root command", want)
		}
	}
}

// TestVersionOutput verifies the version subcommand prints the binary name.
func TestVersionOutput(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	oldStdout := os.Stdout
	os.Stdout = w

	root := buildRoot()
	root.SetArgs([]string{"version"})
	execErr := root.Execute()

	w.Close()
	os.Stdout = oldStdout

	if execErr != nil {
		t.Fatalf("version command returned error: %v", execErr)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "botgate") {
		t.Errorf("version output %q does not contain expected string %q", buf.String(), "botgate")
	}
}

// TestRunDaemonMissingConfig verifies runDaemon returns an error (not panics)
// when CHALLENGE_SECRET is not set.
func TestRunDaemonMissingConfig(t *testing.T) {
	t.Setenv("CHALLENGE_SECRET", "")

	err := runDaemon()
	if err == nil {
		t.Fatal("expected runDaemon() to return an error when CHALLENGE_SECRET is missing")
	}
}
