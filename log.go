package main

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// setupLog configures logging. With BOOKVOX_LOGFILE set, logs go to
// that file at debug level; otherwise logging is discarded so it never
// fights the dashboard for the terminal.
func setupLog() (func() error, error) {
	if logFile := os.Getenv("BOOKVOX_LOGFILE"); logFile != "" {
		f, err := tea.LogToFile(logFile, "bookvox")
		if err != nil {
			return nil, err //nolint: wrapcheck
		}
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
		return f.Close, nil
	}
	log.SetOutput(io.Discard)
	return func() error { return nil }, nil
}
