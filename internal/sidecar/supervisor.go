package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Packaged layout defaults.
const (
	DefaultBackendDir = "next/standalone"
	DefaultEntryFile  = "server.js"
	DefaultRuntime    = "node"
)

// Config describes where the packaged backend lives and how to run it.
type Config struct {
	// ResourcesDir is the packaged resources directory. Empty means derive it
	// from the shell executable.
	ResourcesDir string

	// BackendDir is the backend installation directory relative to ResourcesDir.
	BackendDir string

	// EntryFile is the script the runtime executes; its absence means there
	// is no packaged backend to launch.
	EntryFile string

	// Runtime is the bundled interpreter under <resources>/bin.
	Runtime string

	Host          string
	PreferredPort int
	FallbackPort  int

	ReadyTimeout  time.Duration
	ProbeInterval time.Duration

	// DataDir and CacheDir are created before launch and passed to the
	// backend. Empty means a directory under ResourcesDir.
	DataDir  string
	CacheDir string

	// Env holds extra variables for the backend; they override inherited ones.
	Env map[string]string
}

func (c Config) withDefaults() Config {
	if c.BackendDir == "" {
		c.BackendDir = DefaultBackendDir
	}
	if c.EntryFile == "" {
		c.EntryFile = DefaultEntryFile
	}
	if c.Runtime == "" {
		c.Runtime = DefaultRuntime
	}
	if c.Host == "" {
		c.Host = LoopbackHost
	}
	if c.PreferredPort == 0 {
		c.PreferredPort = DefaultPreferredPort
	}
	if c.FallbackPort == 0 {
		c.FallbackPort = DefaultFallbackPort
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	return c
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger for the supervisor's own lifecycle messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithSink sets the destination for relayed backend output.
func WithSink(sink zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.sink = sink
	}
}

// WithExecutable overrides how the shell executable path is found.
func WithExecutable(fn func() (string, error)) Option {
	return func(s *Supervisor) {
		s.executable = fn
	}
}

// WithOnSpawn registers a hook that runs right after the backend starts,
// before the readiness probe. If the hook fails the backend is killed and
// Launch returns the hook's error. Coordinator.Adopt is the usual hook, so a
// shutdown that begins during the probe still finds the process.
func WithOnSpawn(fn func(*Handle) error) Option {
	return func(s *Supervisor) {
		s.onSpawn = fn
	}
}

// Supervisor launches the packaged backend.
type Supervisor struct {
	cfg        Config
	logger     zerolog.Logger
	sink       zerolog.Logger
	executable func() (string, error)
	onSpawn    func(*Handle) error
}

// NewSupervisor creates a supervisor; missing config fields take defaults.
func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:        cfg.withDefaults(),
		logger:     zerolog.Nop(),
		sink:       zerolog.Nop(),
		executable: os.Executable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Launch starts the backend and waits for it to accept connections.
//
// It returns nil, nil when the entry file is absent, which is the normal case
// when the UI runs against a development server. A readiness timeout is
// logged and recorded on the handle but does not fail the launch. Polling
// stops early when the process exits, including when it is killed by a
// shutdown that began during the probe.
func (s *Supervisor) Launch() (*Handle, error) {
	resources, err := s.ResourcesDir()
	if err != nil {
		s.logger.Error().Err(err).Msg("Cannot resolve backend resources")
		return nil, err
	}

	backendDir := filepath.Join(resources, filepath.FromSlash(s.cfg.BackendDir))
	entry := filepath.Join(backendDir, s.cfg.EntryFile)
	if _, err := os.Stat(entry); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info().Str("entry", entry).Msg("No packaged backend, skipping sidecar launch")
			return nil, nil
		}
		err = &Error{Kind: KindResourceResolution, Op: "stat " + entry, Err: err}
		s.logger.Error().Err(err).Msg("Cannot resolve backend resources")
		return nil, err
	}

	runtimePath := RuntimePath(resources, s.cfg.Runtime)

	port := ChoosePort(s.cfg.Host, s.cfg.PreferredPort, s.cfg.FallbackPort)
	if port != s.cfg.PreferredPort {
		s.logger.Warn().
			Int("preferred", s.cfg.PreferredPort).
			Int("fallback", port).
			Msg("Preferred port unavailable, using fallback")
	}
	ep := Endpoint{Host: s.cfg.Host, Port: port}

	dataDir, cacheDir := s.appDirs(resources)
	for _, dir := range []string{dataDir, cacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to create backend directory")
		}
	}

	launchID := uuid.NewString()
	logger := s.logger.With().Str("launch_id", launchID).Logger()

	cmd := exec.Command(runtimePath, s.cfg.EntryFile)
	cmd.Dir = backendDir
	cmd.Env = backendEnv(os.Environ(), ep, dataDir, cacheDir, s.cfg.Env)
	// A nil Stdin reads from the null device.
	cmd.Stdin = nil
	configurePlatformProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, s.spawnFailed(logger, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, s.spawnFailed(logger, "stderr pipe", err)
	}

	logger.Info().Int("port", port).Str("runtime", runtimePath).Msg("Sidecar process starting")
	if err := cmd.Start(); err != nil {
		return nil, s.spawnFailed(logger, "start "+runtimePath, err)
	}

	h := newHandle(cmd, ep, launchID, logger.With().Int("pid", cmd.Process.Pid).Logger())
	h.start(stdout, stderr, s.sink.With().Str("launch_id", launchID).Logger())

	if s.onSpawn != nil {
		if err := s.onSpawn(h); err != nil {
			logger.Warn().Err(err).Msg("Sidecar process rejected after spawn, terminating")
			if kerr := h.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				logger.Error().
					Err(&Error{Kind: KindTermination, Op: "kill", Err: kerr}).
					Msg("Failed to kill sidecar process")
			}
			return nil, err
		}
	}

	if waitUntilReady(ep, time.Now().Add(s.cfg.ReadyTimeout), s.cfg.ProbeInterval, h.Done()) {
		h.ready.Store(true)
		logger.Info().Str("url", ep.URL()).Msg("Sidecar process ready")
	} else if h.exited() {
		logger.Warn().Msg("Sidecar process exited before it became ready")
	} else {
		logger.Warn().
			Err(&Error{Kind: KindReadinessTimeout, Op: "probe " + ep.Address(), Err: ErrReadinessTimeout}).
			Dur("timeout", s.cfg.ReadyTimeout).
			Msg("Sidecar process not ready before deadline, continuing")
	}

	return h, nil
}

func (s *Supervisor) spawnFailed(logger zerolog.Logger, op string, err error) error {
	err = &Error{Kind: KindSpawn, Op: op, Err: err}
	logger.Error().Err(err).Msg("Failed to spawn sidecar")
	return err
}

// ResourcesDir returns the configured resources directory, or derives it from
// the shell executable.
func (s *Supervisor) ResourcesDir() (string, error) {
	if s.cfg.ResourcesDir != "" {
		return filepath.Abs(s.cfg.ResourcesDir)
	}
	exe, err := s.executable()
	if err != nil {
		return "", &Error{Kind: KindResourceResolution, Op: "locate executable", Err: err}
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return DefaultResourcesDir(exe), nil
}

func (s *Supervisor) appDirs(resources string) (string, string) {
	dataDir := s.cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(resources, "data")
	}
	cacheDir := s.cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(resources, "cache")
	}
	return dataDir, cacheDir
}

// DefaultResourcesDir returns the packaged resources directory for a shell
// executable: Contents/Resources inside a macOS bundle, a resources directory
// next to the executable elsewhere.
func DefaultResourcesDir(executable string) string {
	dir := filepath.Dir(executable)
	if runtime.GOOS == "darwin" {
		return filepath.Join(dir, "..", "Resources")
	}
	return filepath.Join(dir, "resources")
}

// RuntimePath returns the bundled runtime executable under resources.
func RuntimePath(resources, name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return filepath.Join(resources, "bin", name)
}

// backendEnv appends the backend's variables to base. Later entries win, so
// they override anything inherited; extra keys are added in sorted order.
func backendEnv(base []string, ep Endpoint, dataDir, cacheDir string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+5+len(extra))
	env = append(env, base...)
	env = append(env,
		"PORT="+strconv.Itoa(ep.Port),
		"NODE_ENV=production",
		"HOSTNAME="+ep.Host,
		"APP_DATA_DIR="+dataDir,
		"NEXT_CACHE_DIR="+cacheDir,
	)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}
