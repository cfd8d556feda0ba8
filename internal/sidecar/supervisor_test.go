package sidecar

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeConfig(t *testing.T, resources string) (Config, string) {
	t.Helper()
	report := filepath.Join(t.TempDir(), "report.json")
	return Config{
		ResourcesDir:  resources,
		PreferredPort: freePort(t),
		FallbackPort:  freePort(t),
		ReadyTimeout:  10 * time.Second,
		ProbeInterval: 20 * time.Millisecond,
		Env: map[string]string{
			fakeBackendEnv: "1",
			fakeReportEnv:  report,
		},
	}, report
}

func readReport(t *testing.T, path string) fakeReport {
	t.Helper()
	var report fakeReport
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && json.Unmarshal(data, &report) == nil
	}, 5*time.Second, 20*time.Millisecond)
	return report
}

func TestSupervisor_Defaults(t *testing.T) {
	cfg := NewSupervisor(Config{}).Config()

	assert.Equal(t, DefaultBackendDir, cfg.BackendDir)
	assert.Equal(t, DefaultEntryFile, cfg.EntryFile)
	assert.Equal(t, DefaultRuntime, cfg.Runtime)
	assert.Equal(t, LoopbackHost, cfg.Host)
	assert.Equal(t, 34425, cfg.PreferredPort)
	assert.Equal(t, 3000, cfg.FallbackPort)
	assert.Equal(t, 20*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.ProbeInterval)
}

func TestLaunch_NoEntryFileIsNotApplicable(t *testing.T) {
	resources := t.TempDir()

	h, err := NewSupervisor(Config{ResourcesDir: resources}).Launch()

	assert.NoError(t, err)
	assert.Nil(t, h)
	assert.NoDirExists(t, filepath.Join(resources, "data"), "nothing is prepared without a backend")
}

func TestLaunch_Ready(t *testing.T) {
	resources := fakeResources(t)
	cfg, reportPath := fakeConfig(t, resources)

	h, err := NewSupervisor(cfg).Launch()
	require.NoError(t, err)
	require.NotNil(t, h)
	killOnCleanup(t, h)

	assert.True(t, h.Ready())
	assert.Equal(t, Endpoint{Host: LoopbackHost, Port: cfg.PreferredPort}, h.Endpoint())
	assert.NotEmpty(t, h.LaunchID())
	assert.Positive(t, h.PID())
	assert.False(t, h.StartedAt().IsZero())

	report := readReport(t, reportPath)
	assert.Equal(t, []string{DefaultEntryFile}, report.Args)
	assert.Equal(t, strconv.Itoa(cfg.PreferredPort), report.Port)
	assert.Equal(t, "production", report.NodeEnv)
	assert.Equal(t, LoopbackHost, report.Hostname)

	wantCwd, err := filepath.EvalSymlinks(filepath.Join(resources, filepath.FromSlash(DefaultBackendDir)))
	require.NoError(t, err)
	gotCwd, err := filepath.EvalSymlinks(report.Cwd)
	require.NoError(t, err)
	assert.Equal(t, wantCwd, gotCwd)

	assert.Equal(t, filepath.Join(resources, "data"), report.AppDataDir)
	assert.Equal(t, filepath.Join(resources, "cache"), report.NextCacheDir)
	assert.DirExists(t, report.AppDataDir)
	assert.DirExists(t, report.NextCacheDir)
}

func TestLaunch_ConfiguredAppDirs(t *testing.T) {
	resources := fakeResources(t)
	cfg, reportPath := fakeConfig(t, resources)
	base := t.TempDir()
	cfg.DataDir = filepath.Join(base, "nested", "data")
	cfg.CacheDir = filepath.Join(base, "nested", "cache")

	h, err := NewSupervisor(cfg).Launch()
	require.NoError(t, err)
	require.NotNil(t, h)
	killOnCleanup(t, h)

	report := readReport(t, reportPath)
	assert.Equal(t, cfg.DataDir, report.AppDataDir)
	assert.Equal(t, cfg.CacheDir, report.NextCacheDir)
	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, cfg.CacheDir)
}

func TestLaunch_PreferredPortOccupied(t *testing.T) {
	resources := fakeResources(t)
	cfg, reportPath := fakeConfig(t, resources)
	occupy(t, cfg.PreferredPort)

	h, err := NewSupervisor(cfg).Launch()
	require.NoError(t, err)
	require.NotNil(t, h)
	killOnCleanup(t, h)

	assert.Equal(t, cfg.FallbackPort, h.Endpoint().Port)
	assert.True(t, h.Ready())
	assert.Equal(t, strconv.Itoa(cfg.FallbackPort), readReport(t, reportPath).Port)
}

func TestLaunch_ReadinessTimeoutStillReturnsHandle(t *testing.T) {
	resources := fakeResources(t)
	cfg, _ := fakeConfig(t, resources)
	cfg.ReadyTimeout = 300 * time.Millisecond
	cfg.Env[fakeNoListenEnv] = "1"

	start := time.Now()
	h, err := NewSupervisor(cfg).Launch()
	require.NoError(t, err)
	require.NotNil(t, h)
	killOnCleanup(t, h)

	assert.False(t, h.Ready())
	assert.GreaterOrEqual(t, time.Since(start), cfg.ReadyTimeout)

	select {
	case <-h.Done():
		t.Fatal("backend must keep running after a readiness timeout")
	default:
	}
}

func TestLaunch_RuntimeMissingIsSpawnError(t *testing.T) {
	resources := fakeResources(t)
	require.NoError(t, os.Remove(filepath.Join(resources, "bin", DefaultRuntime)))
	cfg, _ := fakeConfig(t, resources)

	h, err := NewSupervisor(cfg).Launch()

	assert.Nil(t, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Equal(t, KindSpawn, KindOf(err))
}

func TestLaunch_ExecutableUnknownIsResolutionError(t *testing.T) {
	lookupErr := errors.New("executable path unavailable")
	s := NewSupervisor(Config{}, WithExecutable(func() (string, error) {
		return "", lookupErr
	}))

	h, err := s.Launch()

	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrResourceResolution)
	assert.ErrorIs(t, err, lookupErr)
}

func TestLaunch_ResourcesFromExecutable(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("bundle layout covered by DefaultResourcesDir")
	}
	dir := t.TempDir()
	s := NewSupervisor(Config{}, WithExecutable(func() (string, error) {
		return filepath.Join(dir, "faltas"), nil
	}))

	got, err := s.ResourcesDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "resources"), got)

	h, err := s.Launch()
	assert.NoError(t, err)
	assert.Nil(t, h)
}

func TestLaunch_RelaysOutputToSink(t *testing.T) {
	resources := fakeResources(t)
	cfg, _ := fakeConfig(t, resources)
	sink := &syncBuffer{}

	h, err := NewSupervisor(cfg, WithSink(zerolog.New(sink))).Launch()
	require.NoError(t, err)
	require.NotNil(t, h)

	require.NoError(t, h.Kill())
	require.True(t, h.Wait(5*time.Second), "backend was not reaped")
	assert.Error(t, h.ExitErr(), "killed backend reports a non-zero exit")

	var stdout, stderr []relayedLine
	for _, l := range parseRelayed(t, sink.String()) {
		if l.Stream == "stderr" {
			stderr = append(stderr, l)
		} else {
			stdout = append(stdout, l)
		}
	}
	require.Len(t, stdout, 1)
	require.Len(t, stderr, 1)
	assert.Equal(t, "sidecar stdout: "+fakeStdoutLine, stdout[0].Message)
	assert.Equal(t, "info", stdout[0].Level)
	assert.Equal(t, "sidecar stderr: "+fakeStderrLine, stderr[0].Message)
	assert.Equal(t, "error", stderr[0].Level)
	assert.Contains(t, sink.String(), `"launch_id":"`+h.LaunchID()+`"`)
}

func TestBackendEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "PORT=1", "HOME=/home/u"}
	ep := Endpoint{Host: LoopbackHost, Port: 34425}

	env := backendEnv(base, ep, "/data", "/cache", map[string]string{
		"ZED":      "last",
		"NODE_ENV": "development",
		"ALPHA":    "first",
	})

	assert.Equal(t, base, env[:len(base)], "inherited environment comes first")
	assert.Equal(t, []string{
		"PORT=34425",
		"NODE_ENV=production",
		"HOSTNAME=127.0.0.1",
		"APP_DATA_DIR=/data",
		"NEXT_CACHE_DIR=/cache",
		"ALPHA=first",
		"NODE_ENV=development",
		"ZED=last",
	}, env[len(base):])
	// Later duplicates win when exec builds the child environment.
	assert.Equal(t, "development", lastValue(env, "NODE_ENV"))
	assert.Equal(t, "34425", lastValue(env, "PORT"))
}

func lastValue(env []string, key string) string {
	val := ""
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			val = v
		}
	}
	return val
}

func TestDefaultResourcesDir(t *testing.T) {
	exe := filepath.Join("opt", "faltas", "faltas")
	got := DefaultResourcesDir(exe)

	if runtime.GOOS == "darwin" {
		assert.Equal(t, filepath.Join("opt", "Resources"), got)
	} else {
		assert.Equal(t, filepath.Join("opt", "faltas", "resources"), got)
	}
}

func TestRuntimePath(t *testing.T) {
	got := RuntimePath(filepath.Join("res"), "node")

	if runtime.GOOS == "windows" {
		assert.Equal(t, filepath.Join("res", "bin", "node.exe"), got)
		assert.Equal(t, got, RuntimePath("res", "node.exe"))
	} else {
		assert.Equal(t, filepath.Join("res", "bin", "node"), got)
	}
}
