package mcphost

import (
	"slices"
	"strings"
	"testing"
)

func TestCommandEnv_KeepsParentEnvironment(t *testing.T) {
	t.Setenv("MCPHOST_PARENT_MARKER", "present")

	env := commandEnv(map[string]string{"INJECTED_VAR": "yes"})
	if !slices.Contains(env, "MCPHOST_PARENT_MARKER=present") {
		t.Error("injected env must keep parent variables like PATH and HOME")
	}
	if !slices.Contains(env, "INJECTED_VAR=yes") {
		t.Error("configured variable missing from command environment")
	}

	var paths int
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			paths++
		}
	}
	if paths == 0 {
		t.Error("PATH missing from command environment")
	}
}

func TestCommandEnv_EmptyMeansInherit(t *testing.T) {
	t.Parallel()
	// exec.Cmd inherits the parent environment when Env stays nil.
	if env := commandEnv(nil); env != nil {
		t.Errorf("commandEnv(nil) = %v, want nil", env)
	}
	if env := commandEnv(map[string]string{}); env != nil {
		t.Errorf("commandEnv(empty) = %v, want nil", env)
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in       string
		wantExec string
		wantArgs []string
	}{
		{"mcp-notes-server --root ~/notes", "mcp-notes-server", []string{"--root", "~/notes"}},
		{"/bin/foo", "/bin/foo", nil},
		{"  spaced   out  ", "spaced", []string{"out"}},
		{"", "", nil},
	}
	for _, tc := range cases {
		gotExec, gotArgs := splitCommand(tc.in)
		if gotExec != tc.wantExec || !slices.Equal(gotArgs, tc.wantArgs) {
			t.Errorf("splitCommand(%q) = (%q, %v), want (%q, %v)", tc.in, gotExec, gotArgs, tc.wantExec, tc.wantArgs)
		}
	}
}
