package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"faltas/internal/sidecar"
)

// openURL is swapped in tests.
var openURL = browser.OpenURL

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var openBrowser bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bundled backend without a window",
		Long: `Launch the bundled backend and supervise it until Ctrl+C or until the
backend exits. Useful to reach the app from a regular browser.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(cmd, openBrowser)
		},
	}

	cmd.Flags().BoolVar(&openBrowser, "open", false, "open the backend URL in the default browser")

	return cmd
}

func runHeadless(cmd *cobra.Command, openBrowser bool) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return errors.New("configuration not loaded")
	}
	out := cmd.OutOrStdout()
	log := cliCtx.Log()

	coord := cliCtx.Coordinator()
	sup, err := cliCtx.Supervisor(sidecar.WithOnSpawn(coord.Adopt))
	if err != nil {
		return fmt.Errorf("open backend log: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	coord.WatchSignals(ctx, func(os.Signal) { cancel() })
	// Shutdown is idempotent; whichever path ran first did the work.
	defer coord.Handle(sidecar.EventExit)

	h, err := sup.Launch()
	if errors.Is(err, sidecar.ErrSlotSealed) {
		// A signal arrived while the backend was starting.
		return nil
	}
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Fprintln(out, "No packaged backend found, nothing to run.")
		return nil
	}
	if ctx.Err() != nil {
		fmt.Fprintln(out, "Stopping backend...")
		coord.Handle(sidecar.EventExitRequested)
		return nil
	}

	url := h.Endpoint().URL()
	if h.Ready() {
		fmt.Fprintf(out, "Backend ready at %s (pid %d)\n", url, h.PID())
	} else {
		fmt.Fprintf(out, "Backend started at %s (pid %d) but is not answering yet\n", url, h.PID())
	}

	if openBrowser {
		if err := openURL(url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Failed to open browser")
		}
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "Stopping backend...")
		coord.Handle(sidecar.EventExitRequested)
	case <-h.Done():
		log.Warn().Err(h.ExitErr()).Msg("Backend exited on its own")
		if h.ExitErr() != nil {
			return fmt.Errorf("backend exited: %w", h.ExitErr())
		}
		return errors.New("backend exited")
	}

	return nil
}
