package cli

import (
	"github.com/spf13/cobra"
)

// GuiCommand represents the gui subcommand
type GuiCommand struct {
	// RunGUI receives the --config flag value, empty for the default path.
	RunGUI func(configPath string)
}

// Command returns the cobra command for gui
func (g *GuiCommand) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "gui",
		Short: "Launch the desktop window",
		Long:  `Launch the Faltas window and the bundled backend it displays.`,
		// The window loads its own config and logger.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			if g.RunGUI != nil {
				g.RunGUI(globalFlags.ConfigPath)
			}
		},
	}
}
