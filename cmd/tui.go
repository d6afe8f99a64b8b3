// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for warnings and errors
}

// eventLog keeps the most recent log lines for display
type eventLog struct {
	entries    []eventLogEntry
	maxEntries int
}

func newEventLog(maxEntries int) eventLog {
	return eventLog{entries: make([]eventLogEntry, 0), maxEntries: maxEntries}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// render draws the last lines entries that fit in height rows
func (l *eventLog) render(st styles, height int) string {
	if height < 5 {
		height = 5
	}

	var content strings.Builder
	if len(l.entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
		return content.String()
	}

	start := max(len(l.entries)-height, 0)
	for _, entry := range l.entries[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			content.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message)))
		} else {
			content.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message)))
		}
	}
	return content.String()
}

// eventWriter turns logger output into TUI events. Lines are dropped when
// the TUI falls behind.
type eventWriter struct {
	lines chan string
}

func newEventWriter() *eventWriter {
	return &eventWriter{lines: make(chan string, 256)}
}

func (w *eventWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- strings.TrimRight(string(p), "\n"):
	default:
	}
	return len(p), nil
}

// Messages
type tickMsg time.Time
type logLineMsg string

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForLogLine(w *eventWriter) tea.Cmd {
	return func() tea.Msg {
		return logLineMsg(<-w.lines)
	}
}

// isProblem reports whether a rendered log line is a warning or error
func isProblem(line string) bool {
	for _, marker := range []string{"level=WARN", "level=ERROR", `"level":"WARN"`, `"level":"ERROR"`} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// interactive reports whether stdout can host the TUI
func interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	box     lipgloss.Style
	ledOn   lipgloss.Style
	ledOff  lipgloss.Style
	lcd     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		ledOn: lipgloss.NewStyle().
			Bold(true),
		ledOff: lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")),
		lcd: lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("114")).
			Padding(0, 1).
			Width(18),
	}
}

// led renders an indicator in color when lit
func (st styles) led(name, color string, on bool) string {
	if on {
		return st.ledOn.Foreground(lipgloss.Color(color)).Render("● " + name)
	}
	return st.ledOff.Render("○ " + name)
}

// formatUptime formats a duration to a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, unit := range []struct {
		n    int64
		name string
	}{{days, "day"}, {hours, "hour"}, {minutes, "minute"}, {seconds, "second"}} {
		switch {
		case unit.n == 1:
			parts = append(parts, "1 "+unit.name)
		case unit.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", unit.n, unit.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}
