// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/cistern/pkg/device"
	"github.com/Thermoquad/cistern/pkg/wcs"
)

// potStep is how far one key press turns the potentiometer (ADC counts)
const potStep = 32

// TUI model for the actuation node
type wcsModel struct {
	node     *wcs.Node
	servo    *device.Servo
	lcd      *device.LCD
	pot      *device.Potentiometer
	button   *device.SimulatedButton
	connInfo string

	events   eventLog
	writer   *eventWriter
	valveBar progress.Model
	potBar   progress.Model
	styles   styles
	width    int
	height   int
	quitting bool
}

func newWCSModel(node *wcs.Node, servo *device.Servo, lcd *device.LCD, pot *device.Potentiometer, button *device.SimulatedButton, connInfo string, writer *eventWriter) wcsModel {
	return wcsModel{
		node:     node,
		servo:    servo,
		lcd:      lcd,
		pot:      pot,
		button:   button,
		connInfo: connInfo,
		events:   newEventLog(100),
		writer:   writer,
		valveBar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		potBar:   progress.New(progress.WithSolidFill("12"), progress.WithWidth(40)),
		styles:   newStyles(),
		width:    80,
		height:   24,
	}
}

func (m wcsModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(100*time.Millisecond),
		waitForLogLine(m.writer),
	)
}

func (m wcsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "b", " ":
			m.button.Press()
		case "left", "-":
			m.pot.Set(m.pot.Sample() - potStep)
		case "right", "+", "=":
			m.pot.Set(m.pot.Sample() + potStep)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := max(min(msg.Width-30, 60), 10)
		m.valveBar.Width = w
		m.potBar.Width = w

	case tickMsg:
		return m, tickCmd(100 * time.Millisecond)

	case logLineMsg:
		m.events.add(string(msg), isProblem(string(msg)))
		return m, waitForLogLine(m.writer)
	}

	return m, nil
}

func (m wcsModel) modeStyle(mode wcs.Mode) string {
	switch mode {
	case wcs.ModeAutomatic:
		return m.styles.value.Render(mode.String())
	case wcs.ModeManual:
		return m.styles.warning.Render(mode.String())
	default:
		return m.styles.err.Render(mode.String())
	}
}

func (m wcsModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles

	var s strings.Builder
	s.WriteString(st.title.Render("CISTERN - ACTUATION NODE"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	// Display mirror
	line1, line2 := m.lcd.Lines()
	s.WriteString(st.lcd.Render(line1 + "\n" + line2))
	s.WriteString("\n\n")

	// Valve and inputs
	var panel strings.Builder
	panel.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		st.label.Render("Mode:"), m.modeStyle(m.node.Mode()),
		st.label.Render("Button:"), func() string {
			if m.button.IsPressed() {
				return st.warning.Render("pressed")
			}
			return st.header.Render("released")
		}(),
	))
	percent := m.node.ValvePercent()
	panel.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		st.label.Render("Valve:"), st.value.Render(fmt.Sprintf("%d%%", percent)),
		st.label.Render("Servo:"), st.value.Render(fmt.Sprintf("%d°", m.servo.Angle())),
	))
	panel.WriteString(m.valveBar.ViewAs(float64(percent) / 100))
	panel.WriteString("\n")

	raw := m.pot.Sample()
	panel.WriteString(fmt.Sprintf("%s %s\n",
		st.label.Render("Potentiometer:"), st.value.Render(fmt.Sprintf("%d (%d%%)", raw, wcs.PotToPercent(raw))),
	))
	panel.WriteString(m.potBar.ViewAs(float64(raw-device.PotMin) / float64(device.PotMax-device.PotMin)))
	s.WriteString(st.box.Render(panel.String()))
	s.WriteString("\n\n")

	// Events
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(st.box.Width(m.width - 4).Render(m.events.render(st, m.height-20)))

	return s.String()
}
