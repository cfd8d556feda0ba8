package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faltas/gui/internal/backend"
	"faltas/internal/config"
)

func newTestApp(t *testing.T, yaml string) *App {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	app, err := NewApp(path)
	require.NoError(t, err)
	t.Cleanup(func() { app.shutdown(context.Background()) })
	return app
}

func TestShouldRunGUI(t *testing.T) {
	assert.True(t, shouldRunGUI(nil))
	assert.False(t, shouldRunGUI([]string{"gui"}))
	assert.False(t, shouldRunGUI([]string{"doctor"}))
	assert.False(t, shouldRunGUI([]string{"--help"}))
}

func TestApp_DevelopmentModeWithoutBackend(t *testing.T) {
	resources := t.TempDir()
	app := newTestApp(t, "backend:\n  resources_dir: "+resources+"\n"+
		"shell:\n  packaged: false\n  dev_url: http://localhost:3000\n"+
		"log:\n  level: error\n  format: json\n")

	assert.Equal(t, backend.StateStarting, app.BackendStatus().State)

	app.launchBackend()

	status := app.BackendStatus()
	assert.Equal(t, backend.StateDevelopment, status.State)
	assert.Equal(t, "http://localhost:3000", status.URL)
	assert.False(t, app.coordinator.Slot().Present())
}

func TestApp_PackagedLogsGoToLogDir(t *testing.T) {
	logDir := t.TempDir()
	app := newTestApp(t, "backend:\n  resources_dir: "+t.TempDir()+"\n"+
		"shell:\n  packaged: true\n"+
		"log:\n  level: info\n  format: json\n  dir: "+logDir+"\n")

	app.Ready()
	app.Ready()
	app.LogClient("warn", "slow render")
	app.shutdown(context.Background())

	sidecarLog, err := os.ReadFile(filepath.Join(logDir, "sidecar.log"))
	require.NoError(t, err)
	assert.Contains(t, string(sidecarLog), "client: slow render")
	assert.Contains(t, string(sidecarLog), `"level":"warn"`)

	guiLog, err := os.ReadFile(filepath.Join(logDir, backend.LogFile))
	require.NoError(t, err)
	assert.Contains(t, string(guiLog), "Faltas shell initialized")
	assert.Contains(t, string(guiLog), "UI ready")
}

func TestApp_OpenExternalURLRejectsOtherSchemes(t *testing.T) {
	app := newTestApp(t, "shell:\n  packaged: false\nlog:\n  level: error\n  format: json\n")

	err := app.OpenExternalURL("file:///etc/passwd")
	assert.ErrorIs(t, err, backend.ErrUnsupportedScheme)
}

func TestApp_BeforeCloseAllowsClose(t *testing.T) {
	app := newTestApp(t, "shell:\n  packaged: false\nlog:\n  level: error\n  format: json\n")

	assert.False(t, app.beforeClose(context.Background()))
	assert.True(t, app.coordinator.Slot().Sealed())
}

func TestApp_ShutdownWaitsForLaunchBeforeClosingSink(t *testing.T) {
	logDir := t.TempDir()
	app := newTestApp(t, "backend:\n  resources_dir: "+t.TempDir()+"\n"+
		"shell:\n  packaged: true\n"+
		"log:\n  level: error\n  format: json\n  dir: "+logDir+"\n")

	release := make(chan struct{})
	app.launches.Go(func() {
		<-release
		app.LogClient("info", "written by a late launch")
	})

	done := make(chan struct{})
	go func() {
		app.shutdown(context.Background())
		close(done)
	}()

	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 20*time.Millisecond)
	assert.True(t, app.coordinator.Slot().Sealed(), "slot is sealed before waiting on the launch")

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown never returned")
	}

	data, err := os.ReadFile(filepath.Join(logDir, "sidecar.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written by a late launch")
}
