// Package main is the entry point for the QuotaBar application.
// It initializes configuration, services, and runs the Bubble Tea program.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/quotabar/internal/app"
	"github.com/j-veylop/quotabar/internal/config"
	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/services"
	"github.com/j-veylop/quotabar/internal/ui/components"
	"github.com/j-veylop/quotabar/internal/version"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Handle help flag
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		printUsage()
		os.Exit(0)
	}

	logger.SetLevel(os.Getenv(config.EnvLogLevel))

	// One-shot mode prints usage to stdout and exits, for scripts and
	// status bars
	if len(os.Args) > 1 && (os.Args[1] == "-1" || os.Args[1] == "--once") {
		if err := runOnce(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Run the application
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run contains the main application logic, separated for cleaner error handling.
func run() error {
	// 1. Initialize the service manager
	// This starts the refresh pipelines and the threshold notifier
	svcManager, err := services.NewManager(services.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	// Ensure cleanup on exit
	defer func() {
		if closeErr := svcManager.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	// 2. Create the root Bubble Tea model
	model := app.NewModel(svcManager)

	// 3. Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 4. Create and configure the Bubble Tea program
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),       // Use alternate screen buffer (full terminal)
		tea.WithMouseCellMotion(), // Enable mouse support for selection
	)

	// 5. Handle signals in a separate goroutine
	go func() {
		<-sigChan
		// Send quit message to the program
		p.Send(tea.Quit())
	}()

	// 6. Run the TUI program
	// This blocks until the user quits or an error occurs
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// runOnce fetches every enabled provider and prints a plain snapshot.
func runOnce() error {
	cfg := services.DefaultConfig()
	cfg.FetchOnStart = false

	svcManager, err := services.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := svcManager.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	settings := svcManager.GetConfig()
	for _, p := range svcManager.Providers() {
		if !settings.IsProviderEnabled(p.ID) {
			continue
		}

		snapshot, err := svcManager.FetchProviderUsage(ctx, p.ID)
		if err != nil {
			fmt.Printf("%-8s %v\n", p.ID, err)
			continue
		}

		for _, sw := range snapshot.Windows() {
			w := sw.Window
			label := fmt.Sprintf("%-8s %-4s", p.ID, components.SlotLabel(sw.Slot, w.WindowMinutes))
			line := components.SimpleUsageBar(w.DisplayPercent(), label, 60)
			if reset := components.FormatReset(w.ResetsAt, w.ResetDescription, time.Now()); reset != "" {
				line += "  " + reset
			}
			fmt.Println(line)
		}

		if snapshot.Identity != nil && snapshot.Identity.Plan != "" {
			fmt.Printf("%-8s plan: %s\n", p.ID, snapshot.Identity.Plan)
		}
	}

	return nil
}

// printUsage prints the command-line usage information.
func printUsage() {
	fmt.Println(`QuotaBar - AI provider usage monitor for the terminal

Usage:
  quotabar [flags]

Flags:
  -h, --help      Show this help message
  -v, --version   Show version information
  -1, --once      Print a one-shot usage snapshot and exit

Keyboard Shortcuts:
  j/k, Up/Down    Select provider
  J/K             Move provider in the list
  r               Refresh selected provider
  R               Refresh all providers
  l               Login (browser or device flow)
  L               Logout and discard stored credentials
  e               Set or clear an API key
  o               Enable/disable selected provider
  O               Reload tokens from provider CLIs
  s               Toggle start on login
  ?               Toggle help
  q, Ctrl+C       Quit

Environment Variables:
  QUOTABAR_CONFIG_PATH         Config file path
  QUOTABAR_REFRESH_INTERVAL    Poll interval in minutes
  QUOTABAR_WARNING_THRESHOLD   Warning threshold percent (default: 80)
  QUOTABAR_CRITICAL_THRESHOLD  Critical threshold percent (default: 95)
  QUOTABAR_FETCH_TIMEOUT       Per-provider fetch timeout (default: 30s)
  QUOTABAR_LOG_LEVEL           Log level (debug, info, warn, error)

Configuration:
  Settings live in a JSON file, by default:
  - Linux:   ~/.config/quotabar/config.json
  - macOS:   ~/Library/Application Support/quotabar/config.json
  - Windows: %APPDATA%\quotabar\config.json
  A .env file in the working directory or next to the config file is
  loaded on startup.

For more information, visit: https://github.com/j-veylop/quotabar`)
}
