package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors"
	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven/mocks"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.0.0")
	require.NotNil(t, cmd)
	assert.Equal(t, "tasksync", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("")
	commands := []string{"serve", "sync", "purge", "purge-local", "reset-watermark", "dump", "token"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand("")

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	for _, name := range []string{"config", "debug", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serveCmd.Flags().Lookup("nosync"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitLocked, GetExitCode(WrapExitError(ExitLocked, "sync failed", &domain.LockError{Name: "sync"})))
}

// harness runs commands against a SQLite file and in-memory connectors.
type harness struct {
	t       *testing.T
	remotes map[string]*mocks.MockConnector
	seed    func(name string, c *mocks.MockConnector)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TASKSYNC_STORE_SQLITE_PATH", filepath.Join(dir, "tasksync.db"))
	t.Setenv("TASKSYNC_LOG_FILE", filepath.Join(dir, "tasksync.log"))
	t.Setenv("TASKSYNC_SERVICE1_BASE_URL", "https://acme.zendesk.test")
	t.Setenv("TASKSYNC_SERVICE1_USERNAME", "ops@acme.test")
	t.Setenv("TASKSYNC_SERVICE1_TOKEN", "zd")
	t.Setenv("TASKSYNC_SERVICE2_TOKEN", "pat")
	t.Setenv("TASKSYNC_SERVICE2_WORKSPACE", "1001")
	t.Setenv("TASKSYNC_SERVICE2_PROJECTS", "2002")
	t.Setenv("TASKSYNC_HTTP_JWT_SECRET", "s3cret")
	return &harness{t: t, remotes: map[string]*mocks.MockConnector{}}
}

func (h *harness) factory() *connectors.Factory {
	f := connectors.NewFactory()
	build := func(name string, s connectors.Settings) (driven.Connector, error) {
		c := mocks.NewMockConnector(name, 1000*(len(h.remotes)+1))
		if h.seed != nil {
			h.seed(name, c)
		}
		h.remotes[name] = c
		return c, nil
	}
	f.Register(connectors.KindZendesk, build)
	f.Register(connectors.KindAsana, build)
	return f
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, logs bytes.Buffer
	cmd := newRootCommand(&RootOptions{Factory: h.factory()})
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSyncCommand(t *testing.T) {
	h := newHarness(t)
	h.seed = func(name string, c *mocks.MockConnector) {
		if name == "zen" {
			c.Seed(domain.NativeItem{"id": "1", "name": "printer on fire", "notes": "", "done": false})
		}
	}

	out, err := h.run("sync", "--format", "json")
	require.NoError(t, err)

	var result domain.CycleResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "zen", result.Driving)
	assert.Equal(t, 1, result.Paired)
	assert.Equal(t, 1, h.remotes["asana"].Len())

	out, err = h.run("dump", domain.StoreSyncs)
	require.NoError(t, err)
	assert.Contains(t, out, "printer on fire")
}

func TestSyncCommand_TextOutput(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "(zen -> asana)")
	assert.Contains(t, out, "new 0, updated 0, duplicate 0")
}

func TestDumpCommand_ListsStores(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("dump")
	require.NoError(t, err)
	for _, name := range domain.StoreNames("zen", "asana") {
		assert.Contains(t, out, name)
	}

	_, err = h.run("dump", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResetWatermarkCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("reset-watermark", "asana")
	require.NoError(t, err)
	assert.Contains(t, out, "watermark of asana reset")

	_, err = h.run("reset-watermark", "jira")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, domain.ErrUnknownService)
}

func TestPurgeCommands(t *testing.T) {
	h := newHarness(t)
	h.seed = func(name string, c *mocks.MockConnector) {
		if name == "asana" {
			c.Seed(domain.NativeItem{"id": "7", "name": "stale", "notes": "", "done": true})
		}
	}

	_, err := h.run("purge", "asana")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := h.run("purge", "asana", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 items from asana")
	assert.Zero(t, h.remotes["asana"].Len())

	_, err = h.run("purge-local")
	require.Error(t, err)

	out, err = h.run("purge-local", "-y", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deleted": 0}`, out)
}

func TestTokenCommand(t *testing.T) {
	newHarness(t)
	var out bytes.Buffer
	cmd := NewRootCommand("")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--subject", "ops", "--format", "json"})
	require.NoError(t, cmd.Execute())

	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "ops", body["subject"])
	assert.NotEmpty(t, body["token"])
}

func TestTokenCommand_NoSecret(t *testing.T) {
	t.Setenv("TASKSYNC_HTTP_JWT_SECRET", "")
	cmd := NewRootCommand("")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("dump", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	h := newHarness(t)
	t.Setenv("TASKSYNC_DIRECTION", "both")
	_, err := h.run("sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
