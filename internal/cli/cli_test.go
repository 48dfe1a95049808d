package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Stagehand/internal/flavor"
	"github.com/shaiso/Stagehand/internal/repo"
	"github.com/shaiso/Stagehand/internal/scheduler"
)

const fixtureFlavor = `
name: fixture
description: Test fixture
stages:
  install:
    actions:
      - run: touch {{ .VolatileDir }}/installed
  script:
    actions:
      - run: exit 4
  cleanup:
    actions:
      - run: touch {{ .VolatileDir }}/cleaned
`

type cliEnv struct {
	vars     map[string]string
	volatile string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "volatile"), 0o755))
	return &cliEnv{
		vars: map[string]string{
			"TRAVIS_BUILD_DIR": root,
			"VOLATILE_DIR":     filepath.Join(root, "volatile"),
		},
		volatile: filepath.Join(root, "volatile"),
	}
}

func (e *cliEnv) withFixture(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.yaml"), []byte(fixtureFlavor), 0o644))
	e.vars["STAGEHAND_FLAVORS_DIR"] = dir
	return e
}

func (e *cliEnv) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(RootOptions{
		Version: "test",
		Getenv:  func(k string) string { return e.vars[k] },
		Stdout:  &stdout,
		Stderr:  &stderr,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestList(t *testing.T) {
	out, _, err := newCLIEnv(t).run("list")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "redis")
	assert.Contains(t, out, "postgres")
	assert.NotContains(t, out, "common")
}

func TestList_JSON(t *testing.T) {
	out, _, err := newCLIEnv(t).withFixture(t).run("list", "--json")
	require.NoError(t, err)

	var infos []FlavorInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))

	byName := make(map[string]FlavorInfo)
	for _, f := range infos {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "fixture")
	assert.Equal(t, "Test fixture", byName["fixture"].Description)
	assert.False(t, byName["fixture"].AlwaysRun)
	assert.True(t, byName["default"].AlwaysRun)
}

func TestFlavorCommandsRegistered(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)
	root := NewRootCmd(RootOptions{Getenv: func(k string) string { return env.vars[k] }})

	assert.True(t, hasCommand(root, "fixture"))
	assert.True(t, hasCommand(root, "redis"))

	cmd, _, err := root.Find([]string{"fixture", "install"})
	require.NoError(t, err)
	assert.Equal(t, "install", cmd.Name())
}

func TestExecute_FailureRunsCleanup(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)

	out, _, err := env.run("execute", "fixture")
	require.Error(t, err)
	assert.True(t, flavor.IsActionError(err))

	assert.FileExists(t, filepath.Join(env.volatile, "installed"))
	assert.FileExists(t, filepath.Join(env.volatile, "cleaned"))
	assert.Contains(t, out, "FAILED")
}

func TestExecute_SkipCleanup(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)
	env.vars["SKIP_CLEANUP"] = "1"

	_, _, err := env.run("fixture")
	require.Error(t, err)

	assert.FileExists(t, filepath.Join(env.volatile, "installed"))
	assert.NoFileExists(t, filepath.Join(env.volatile, "cleaned"))
}

func TestExecute_UnknownFlavor(t *testing.T) {
	_, _, err := newCLIEnv(t).run("execute", "nope")
	assert.ErrorIs(t, err, flavor.ErrUnknownFlavor)
}

func TestStageCommand(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)

	_, _, err := env.run("fixture", "install")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(env.volatile, "installed"))
	assert.NoFileExists(t, filepath.Join(env.volatile, "cleaned"))
}

func TestStageCommand_Generic(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)

	_, _, err := env.run("stage", "fixture", "cleanup")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(env.volatile, "cleaned"))

	_, _, err = env.run("stage", "fixture", "bogus")
	assert.ErrorContains(t, err, "unknown stage")
}

func TestCacheSlug(t *testing.T) {
	out, _, err := newCLIEnv(t).run("cache", "slug", "redis", "--json")
	require.NoError(t, err)

	var info CacheInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "redis", info.Flavor)
	assert.NotEmpty(t, info.Slug)
	assert.False(t, info.Valid)
	assert.Contains(t, info.Missing, "access key id")
}

func TestCacheURL_WithCredentials(t *testing.T) {
	env := newCLIEnv(t)
	env.vars["AWS_ACCESS_KEY_ID"] = "AKIDEXAMPLE"
	env.vars["AWS_SECRET_ACCESS_KEY"] = "secret"

	out, _, err := env.run("cache", "url", "redis", "--json")
	require.NoError(t, err)

	var info CacheInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Valid)
	assert.Contains(t, info.FetchURL, "X-Amz-Signature=")
	assert.Contains(t, info.PushURL, "X-Amz-Signature=")
	assert.Contains(t, info.FetchURL, info.Slug)
}

func TestWait_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ready")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, stderr, err := newCLIEnv(t).run("wait", path, "--timeout", "2s")
	require.NoError(t, err)
	assert.Contains(t, stderr, "is ready")
}

func TestWait_Port(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	_, _, err = newCLIEnv(t).run("wait", strconv.Itoa(port), "--timeout", "5s")
	assert.NoError(t, err)
}

func TestWait_Timeout(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "never")

	_, _, err := newCLIEnv(t).run("wait", missing, "--timeout", "300ms")
	assert.Error(t, err)
}

func TestHistory_NoDatabase(t *testing.T) {
	_, _, err := newCLIEnv(t).run("history", "--flavor", "redis")
	assert.ErrorIs(t, err, repo.ErrNoDatabase)
}

func TestHistoryShow_InvalidID(t *testing.T) {
	_, _, err := newCLIEnv(t).run("history", "show", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid run id")
}

func TestWarm_NoTrigger(t *testing.T) {
	_, _, err := newCLIEnv(t).run("warm", "redis")
	assert.ErrorIs(t, err, scheduler.ErrNoTrigger)
}

func TestWarm_UnknownFlavor(t *testing.T) {
	_, _, err := newCLIEnv(t).run("warm", "--once", "nope")
	assert.ErrorIs(t, err, flavor.ErrUnknownFlavor)
}

func TestWarm_InvalidCron(t *testing.T) {
	_, _, err := newCLIEnv(t).run("warm", "--schedule", "not a cron", "redis")
	assert.Error(t, err)
}

func TestWarmOnce_FailedFlavorFailsCommand(t *testing.T) {
	env := newCLIEnv(t).withFixture(t)
	broken := "name: broken\nstages:\n  install:\n    actions:\n      - run: exit 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.vars["STAGEHAND_FLAVORS_DIR"], "broken.yaml"), []byte(broken), 0o644))

	out, _, err := env.run("warm", "--once", "broken")
	assert.ErrorIs(t, err, scheduler.ErrWarmFailed)
	assert.NotContains(t, out, "warmed")
}
