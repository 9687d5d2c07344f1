package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ravelhq/ravel/internal/noteschema"
	"github.com/ravelhq/ravel/internal/server"
	"github.com/ravelhq/ravel/internal/store/sqlite"
)

// dbPath resolves the --db flag, then DATABASE_PATH, then a sane
// local default, matching the teacher's flag-then-env-then-default
// resolution order.
func dbPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		return path
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		return path
	}
	return "./ravel.db"
}

// openServer opens the database at the resolved path and wires a
// Server against it, for commands that call through the tool registry
// rather than talking to the store directly.
func openServer(cmd *cobra.Command) (*server.Server, func() error, error) {
	st, err := sqlite.New(dbPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	schema, err := noteschema.Load(os.Getenv("RAVEL_NOTE_SCHEMA_PATH"))
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	srv := server.New(st, schema, nil, 1)
	return srv, st.Close, nil
}

// isInteractive reports whether stdout is a terminal, the gate
// ravelctl uses to decide between styled/interactive output and plain
// text for scripts and pipes.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// supportsColor reports whether stdout's detected color profile can
// render more than plain ASCII, gating markdown/table styling so piped
// output (CI logs, `| less`) stays readable.
func supportsColor() bool {
	return isInteractive() && termenv.EnvColorProfile() != termenv.Ascii
}
