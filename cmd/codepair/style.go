package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ChamsBouzaiene/codepair/internal/patch"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	pathStyle    = lipgloss.NewStyle().Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// terminalConfirmer asks y/N questions on a terminal.
type terminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalConfirmer(in *bufio.Reader, out io.Writer) *terminalConfirmer {
	return &terminalConfirmer{in: in, out: out}
}

func (c *terminalConfirmer) Confirm(message string) bool {
	fmt.Fprintf(c.out, "\n%s %s ", headerStyle.Render(message), faintStyle.Render("[y/N]"))
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// printResults writes one line per patch result.
func printResults(w io.Writer, results []patch.PatchResult) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, r := range results {
		var status string
		switch r.Status {
		case patch.Applied:
			status = successStyle.Render("✔ " + r.Action.String())
		case patch.SkippedUserDeclined:
			status = faintStyle.Render("- declined")
		default:
			status = warnStyle.Render("✘ skipped")
		}
		line := fmt.Sprintf("%s %s", status, pathStyle.Render(r.Path))
		if r.Err != nil {
			line += faintStyle.Render(": " + r.Err.Error())
		}
		fmt.Fprintln(w, line)
	}
}
