package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexgov/core/pkg/contracts"
)

// pointKernelAtTempDirs isolates each test's ledgers.
func pointKernelAtTempDirs(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("APEXGOV_LEDGER_PATH", filepath.Join(dir, "verdicts.jsonl"))
	t.Setenv("APEXGOV_COOLING_PATH", filepath.Join(dir, "cooling.jsonl"))
	t.Setenv("APEXGOV_AUTHORITY_SECRET", "test-secret")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"apexgov"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := run()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "USAGE")

	code, stdout, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "render")

	code, _, stderr = run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command")
}

func TestRenderGreetingExitsZero(t *testing.T) {
	pointKernelAtTempDirs(t)

	code, stdout, _ := run("render", "--task", "hello, how are you?")
	assert.Equal(t, 0, code)

	var resp contracts.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, contracts.VerdictSeal, resp.Verdict)
	assert.Greater(t, resp.ApexPulse, 0.8)
}

func TestRenderDestructiveExitsForty(t *testing.T) {
	pointKernelAtTempDirs(t)

	code, stdout, _ := run("render",
		"--task", "clean the disk",
		"--params", `{"command": "rm -rf /"}`,
	)
	assert.Equal(t, contracts.VerdictVoid.ExitCode(), code)

	var resp contracts.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Contains(t, resp.ReasonCodes, "RED::rm_rf")
}

func TestRenderRequiresTask(t *testing.T) {
	pointKernelAtTempDirs(t)
	code, _, stderr := run("render")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--task is required")
}

func TestRenderRejectsBadParams(t *testing.T) {
	pointKernelAtTempDirs(t)
	code, _, _ := run("render", "--task", "hi", "--params", "{broken")
	assert.Equal(t, 2, code)
}

func TestVerifyLedgerAfterRender(t *testing.T) {
	pointKernelAtTempDirs(t)

	code, _, _ := run("render", "--task", "hello")
	require.Equal(t, 0, code)

	code, stdout, _ := run("verify-ledger", "--json")
	assert.Equal(t, 0, code)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, true, result["intact"])
	assert.Equal(t, float64(1), result["sequence"])
}

func TestVerifyLedgerExportsSince(t *testing.T) {
	pointKernelAtTempDirs(t)

	code, _, _ := run("render", "--task", "hello")
	require.Equal(t, 0, code)
	code, _, _ = run("render", "--task", "good morning")
	require.Equal(t, 0, code)

	code, stdout, _ := run("verify-ledger", "--since", "2020-01-01T00:00:00Z")
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	// Two exported entries plus the trailing summary line.
	require.Len(t, lines, 3)
	for _, line := range lines[:2] {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "SEAL", entry["verdict"])
		assert.NotEmpty(t, entry["entry_hash"])
	}
	assert.Contains(t, lines[2], "ledger intact")

	code, _, stderr := run("verify-ledger", "--since", "yesterday")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--since")
}

func TestCoolingLifecycleViaCLI(t *testing.T) {
	pointKernelAtTempDirs(t)

	// A destructive request deep-freezes its session.
	code, stdout, _ := run("render",
		"--task", "wipe the volume",
		"--params", `{"command": "rm -rf /srv/data"}`,
		"--context", `{"session_id": "sess-cli"}`,
	)
	require.Equal(t, contracts.VerdictVoid.ExitCode(), code)

	var resp contracts.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotEmpty(t, resp.CoolingLedgerID)

	code, statusOut, _ := run("cool-status", "sess-cli")
	require.Equal(t, 0, code)
	assert.Contains(t, statusOut, `"all_complete": false`)
	assert.Contains(t, statusOut, "TIER_3_DEEP_FREEZE")

	// Mint sovereign authority and bypass the window.
	code, tokenOut, _ := run("issue-token", "--authority", "operator-9")
	require.Equal(t, 0, code)
	token := strings.TrimSpace(tokenOut)
	require.NotEmpty(t, token)

	code, bypassOut, _ := run("cool-bypass",
		resp.CoolingLedgerID,
		"--authority", token,
		"--reason", "incident response",
	)
	require.Equal(t, 0, code)
	assert.Contains(t, bypassOut, "operator-9")

	code, statusOut, _ = run("cool-status", "--session", "sess-cli")
	require.Equal(t, 0, code)
	assert.Contains(t, statusOut, `"all_complete": true`)
	assert.Contains(t, statusOut, "BYPASSED")
}

func TestCoolBypassRejectsBadToken(t *testing.T) {
	pointKernelAtTempDirs(t)

	code, stdout, _ := run("render",
		"--task", "delete everything",
		"--params", `{"command": "rm -rf /opt"}`,
	)
	require.Equal(t, contracts.VerdictVoid.ExitCode(), code)

	var resp contracts.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))

	code, _, stderr := run("cool-bypass",
		"--entry", resp.CoolingLedgerID,
		"--authority", "forged",
		"--reason", "because",
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unauthorized")
}

func TestKernelReloadRecordsAmendment(t *testing.T) {
	pointKernelAtTempDirs(t)

	path := filepath.Join(t.TempDir(), "constitution.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: black_box\n"), 0o644))

	k, err := buildKernel(path, io.Discard)
	require.NoError(t, err)
	defer k.close()
	before := k.engine

	require.NoError(t, os.WriteFile(path, []byte("mode: glass_box\n"), 0o644))
	engine, err := k.reload(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, before, engine)
	assert.Equal(t, "glass_box", k.cfg.Mode)

	entries, err := k.ledger.IterSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "constitution.amend", entries[0].Task)
	assert.Equal(t, contracts.VerdictSeal, entries[0].Verdict)
	assert.NotEmpty(t, entries[0].ParamsHash)
	assert.NotEmpty(t, entries[0].ContextHash)
	assert.NotEqual(t, entries[0].ParamsHash, entries[0].ContextHash)
}
