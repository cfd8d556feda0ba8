// Package main is the entry point for the Faltas desktop shell.
// It supports both GUI mode (no args) and CLI mode (with subcommands).
package main

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"

	"faltas/internal/cli"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	if shouldRunGUI(os.Args[1:]) {
		runGUI("")
	} else {
		runCLI()
	}
}

// shouldRunGUI determines if we should launch GUI mode.
// GUI mode is launched when no arguments are given; everything else,
// including an explicit "gui", goes through the CLI parser.
func shouldRunGUI(args []string) bool {
	return len(args) == 0
}

// runGUI starts the Wails GUI application
func runGUI(configPath string) {
	app, err := NewApp(configPath)
	if err != nil {
		log.Fatal("Failed to initialize:", err)
	}

	assetsFS, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		log.Fatal("Failed to create sub filesystem:", err)
	}

	shell := app.cfg.Shell
	err = wails.Run(&options.App{
		Title:  shell.Title,
		Width:  shell.Width,
		Height: shell.Height,
		AssetServer: &assetserver.Options{
			Assets: assetsFS,
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.startup,
		OnDomReady:       app.domReady,
		OnBeforeClose:    app.beforeClose,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})

	if err != nil {
		// The window never came up; make sure no backend outlives us.
		app.shutdown(app.ctx)
		log.Fatal("Error:", err.Error())
	}
}

// runCLI runs the CLI command parser
func runCLI() {
	rootCmd := cli.NewRootCmd()

	guiCmd := &cli.GuiCommand{
		RunGUI: runGUI,
	}
	rootCmd.AddCommand(guiCmd.Command())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
