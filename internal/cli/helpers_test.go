package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kelsen/internal/ir"
)

const (
	demoCharter = "../charter/testdata/demo.cue"
	deployAt    = "1700000000"
)

// response mirrors CLIResponse with the payload left raw.
type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// clearEnv removes KELSEN_* variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"KELSEN_DB", "KELSEN_FORMAT", "KELSEN_OWNER", "KELSEN_LOG_LEVEL", "KELSEN_MAX_STEPS"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// executeJSON runs a command with --format json and decodes the response.
func executeJSON(t *testing.T, args ...string) (response, error) {
	t.Helper()
	out, err := execute(t, append([]string{"--format", "json"}, args...)...)
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "kelsen.db")
}

// deployDemo deploys the demo charter as alice into db.
func deployDemo(t *testing.T, db string) DeployResult {
	t.Helper()
	resp, err := executeJSON(t, "--db", db, "--owner", "alice", "deploy", "--at", deployAt, demoCharter)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)
	var d DeployResult
	require.NoError(t, json.Unmarshal(resp.Data, &d))
	return d
}

func (d DeployResult) organ(t *testing.T, name string) ir.Principal {
	t.Helper()
	return lookup(t, d.Organs, name)
}

func (d DeployResult) procedure(t *testing.T, name string) ir.Principal {
	t.Helper()
	return lookup(t, d.Procedures, name)
}

func lookup(t *testing.T, items []NamedAddress, name string) ir.Principal {
	t.Helper()
	for _, item := range items {
		if item.Name == name {
			return item.Address
		}
	}
	t.Fatalf("%q not deployed", name)
	return ir.ZeroPrincipal
}

func hexOf(name string) string {
	return ir.PrincipalFromName(name).Hex()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
