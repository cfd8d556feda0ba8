package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"faltas/internal/config"
	"faltas/internal/sidecar"
)

const runtimeVersionTimeout = 5 * time.Second

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the installation",
		Long: `Run diagnostic checks on your Faltas installation.

This command checks:
- Configuration file validity
- Packaged backend resources
- Bundled runtime presence and version
- Backend port availability
- Log directory`,
		RunE: runDoctor,
	}

	return cmd
}

type checkResult struct {
	name    string
	status  string // ok, warning, error
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errors.New("configuration not loaded")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Faltas Doctor")
	fmt.Fprintln(out, "=============")
	fmt.Fprintln(out)

	results := runChecks(cliCtx.Config, cliCtx.ConfigPath)
	printResults(out, results)
	return nil
}

// runChecks runs every diagnostic against cfg.
func runChecks(cfg *config.Config, configPath string) []checkResult {
	results := []checkResult{
		checkSystemInfo(),
		checkConfigFile(configPath),
	}

	sup := sidecar.NewSupervisor(cfg.Backend.Sidecar())
	resources, res := checkResources(sup)
	results = append(results, res)

	if resources != "" {
		runtimePath := sidecar.RuntimePath(resources, sup.Config().Runtime)
		rt := checkRuntimePresent(runtimePath)
		results = append(results, rt)
		if rt.status == "ok" {
			results = append(results, checkRuntimeVersion(runtimePath, cfg.Backend.RuntimeConstraint))
		}
	}

	results = append(results,
		checkPorts(sup.Config()),
		checkLogDirectory(cfg.Log),
	)
	return results
}

func printResults(out io.Writer, results []checkResult) {
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		icon := "✓"
		if r.status == "warning" {
			icon = "⚠️"
			hasWarnings = true
		} else if r.status == "error" {
			icon = "✗"
			hasErrors = true
		}

		fmt.Fprintf(out, "%s %s: %s\n", icon, r.name, r.message)
	}

	fmt.Fprintln(out)
	if hasErrors {
		fmt.Fprintln(out, "❌ Some checks failed. Please address the issues above.")
	} else if hasWarnings {
		fmt.Fprintln(out, "⚠️  Some warnings detected. The shell should start but may run degraded.")
	} else {
		fmt.Fprintln(out, "✅ All checks passed!")
	}
}

func checkSystemInfo() checkResult {
	return checkResult{
		name:    "System",
		status:  "ok",
		message: fmt.Sprintf("%s on %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

func checkConfigFile(configPath string) checkResult {
	if configPath == "" {
		return checkResult{name: "Config File", status: "warning", message: "No config path (using defaults)"}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return checkResult{
			name:    "Config File",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s (using defaults)", configPath),
		}
	}

	return checkResult{
		name:    "Config File",
		status:  "ok",
		message: fmt.Sprintf("Found: %s", configPath),
	}
}

// checkResources returns the resources dir when it could be resolved.
func checkResources(sup *sidecar.Supervisor) (string, checkResult) {
	resources, err := sup.ResourcesDir()
	if err != nil {
		return "", checkResult{
			name:    "Resources",
			status:  "error",
			message: fmt.Sprintf("Cannot resolve resources: %v", err),
		}
	}

	cfg := sup.Config()
	entry := filepath.Join(resources, filepath.FromSlash(cfg.BackendDir), cfg.EntryFile)
	if _, err := os.Stat(entry); err != nil {
		return resources, checkResult{
			name:    "Resources",
			status:  "warning",
			message: fmt.Sprintf("No packaged backend at %s (development mode)", entry),
		}
	}

	return resources, checkResult{
		name:    "Resources",
		status:  "ok",
		message: fmt.Sprintf("Backend entry: %s", entry),
	}
}

func checkRuntimePresent(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Runtime",
			status:  "warning",
			message: fmt.Sprintf("Not found: %s", path),
		}
	}
	if info.IsDir() {
		return checkResult{
			name:    "Runtime",
			status:  "error",
			message: fmt.Sprintf("Is a directory: %s", path),
		}
	}
	return checkResult{name: "Runtime", status: "ok", message: path}
}

func checkRuntimeVersion(path, constraint string) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), runtimeVersionTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return checkResult{
			name:    "Runtime Version",
			status:  "error",
			message: fmt.Sprintf("Failed to run %s --version: %v", filepath.Base(path), err),
		}
	}
	return evaluateRuntimeVersion(string(output), constraint)
}

// evaluateRuntimeVersion checks `node --version` output such as "v20.11.1"
// against a semver constraint. An empty constraint accepts any version.
func evaluateRuntimeVersion(output, constraint string) checkResult {
	raw := strings.TrimSpace(output)
	v, err := semver.NewVersion(raw)
	if err != nil {
		return checkResult{
			name:    "Runtime Version",
			status:  "error",
			message: fmt.Sprintf("Unrecognized version %q", raw),
		}
	}

	if constraint == "" {
		return checkResult{name: "Runtime Version", status: "ok", message: v.String()}
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return checkResult{
			name:    "Runtime Version",
			status:  "warning",
			message: fmt.Sprintf("%s (invalid constraint %q: %v)", v, constraint, err),
		}
	}

	if !c.Check(v) {
		return checkResult{
			name:    "Runtime Version",
			status:  "error",
			message: fmt.Sprintf("%s does not satisfy %s", v, constraint),
		}
	}
	return checkResult{
		name:    "Runtime Version",
		status:  "ok",
		message: fmt.Sprintf("%s (%s)", v, constraint),
	}
}

func checkPorts(cfg sidecar.Config) checkResult {
	port := sidecar.ChoosePort(cfg.Host, cfg.PreferredPort, cfg.FallbackPort)
	if port == cfg.PreferredPort {
		return checkResult{
			name:    "Port",
			status:  "ok",
			message: fmt.Sprintf("%d is available", port),
		}
	}
	return checkResult{
		name:    "Port",
		status:  "warning",
		message: fmt.Sprintf("%d is in use, the backend will try %d", cfg.PreferredPort, cfg.FallbackPort),
	}
}

func checkLogDirectory(logCfg config.LogConfig) checkResult {
	dir, err := logCfg.ResolveDir()
	if err != nil {
		return checkResult{
			name:    "Log Directory",
			status:  "error",
			message: fmt.Sprintf("Cannot determine log dir: %v", err),
		}
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return checkResult{
			name:    "Log Directory",
			status:  "warning",
			message: fmt.Sprintf("Will be created: %s", dir),
		}
	}

	testFile := filepath.Join(dir, ".faltas-test")
	if err := os.WriteFile(testFile, []byte("test"), 0600); err != nil {
		return checkResult{
			name:    "Log Directory",
			status:  "error",
			message: fmt.Sprintf("Cannot write to: %s", dir),
		}
	}
	_ = os.Remove(testFile)

	return checkResult{
		name:    "Log Directory",
		status:  "ok",
		message: fmt.Sprintf("Writable: %s", filepath.Join(dir, "sidecar.log")),
	}
}
