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
	"github.com/Thermoquad/cistern/pkg/mqttlink"
	"github.com/Thermoquad/cistern/pkg/tms"
)

// distanceStep is how far one key press moves the simulated surface (cm)
const distanceStep = 5

// TUI model for the sensing node
type tmsModel struct {
	node      *tms.Node
	sonar     *device.SimulatedSonar
	green     *device.LED
	red       *device.LED
	transport *mqttlink.Transport
	broker    string

	events   eventLog
	writer   *eventWriter
	gauge    progress.Model
	styles   styles
	stashed  float32 // distance hidden by the "no object" toggle
	width    int
	height   int
	quitting bool
}

func newTMSModel(node *tms.Node, sonar *device.SimulatedSonar, green, red *device.LED, transport *mqttlink.Transport, broker string, writer *eventWriter) tmsModel {
	return tmsModel{
		node:      node,
		sonar:     sonar,
		green:     green,
		red:       red,
		transport: transport,
		broker:    broker,
		events:    newEventLog(100),
		writer:    writer,
		gauge:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		styles:    newStyles(),
		width:     80,
		height:    24,
	}
}

func (m tmsModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(100*time.Millisecond),
		waitForLogLine(m.writer),
	)
}

func (m tmsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			m.moveSurface(-distanceStep)
		case "down", "j":
			m.moveSurface(distanceStep)
		case "n":
			m.toggleEcho()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gauge.Width = max(min(msg.Width-30, 60), 10)

	case tickMsg:
		return m, tickCmd(100 * time.Millisecond)

	case logLineMsg:
		m.events.add(string(msg), isProblem(string(msg)))
		return m, waitForLogLine(m.writer)
	}

	return m, nil
}

func (m *tmsModel) moveSurface(delta float32) {
	d := m.sonar.Distance()
	if d < 0 {
		return
	}
	m.sonar.SetDistance(max(d+delta, 0))
}

func (m *tmsModel) toggleEcho() {
	if d := m.sonar.Distance(); d >= 0 {
		m.stashed = d
		m.sonar.SetDistance(-1)
		m.events.add("Sensor obstructed: no echo", false)
		return
	}
	m.sonar.SetDistance(m.stashed)
	m.events.add(fmt.Sprintf("Sensor clear: surface at %.0fcm", m.stashed), false)
}

func (m tmsModel) stateStyle(s tms.State) string {
	switch s {
	case tms.StateMonitoring:
		return m.styles.value.Render(s.String())
	case tms.StateDisconnected:
		return m.styles.err.Render(s.String())
	default:
		return m.styles.warning.Render(s.String())
	}
}

func (m tmsModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.styles
	cfg := m.node.Config()

	var s strings.Builder
	s.WriteString(st.title.Render("CISTERN - SENSING NODE"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("Broker: %s | Topic: %s | Press 'q' to quit", m.broker, cfg.Topic)))
	s.WriteString("\n\n")

	// Connection
	state := m.node.State()
	link := st.err.Render("down")
	if m.transport.IsConnected() {
		link = st.value.Render("up")
	}
	var conn strings.Builder
	conn.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		st.label.Render("State:"), m.stateStyle(state),
		st.label.Render("Session:"), link,
	))
	conn.WriteString(fmt.Sprintf("%s %s\n",
		st.label.Render("In state for:"), st.value.Render(formatUptime(m.node.StateHolder().TimeInState())),
	))
	conn.WriteString(fmt.Sprintf("%s  %s",
		st.led("green", "10", m.green.IsOn()),
		st.led("red", "9", m.red.IsOn()),
	))
	s.WriteString(st.box.Render(conn.String()))
	s.WriteString("\n\n")

	// Reservoir
	var tank strings.Builder
	surface := m.sonar.Distance()
	if surface < 0 {
		tank.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Simulated surface:"), st.err.Render("no object")))
	} else {
		tank.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Simulated surface:"), st.value.Render(fmt.Sprintf("%.0fcm below sensor", surface))))
	}

	if last, ok := m.node.LastMeasurement(); ok {
		if last.IsValid() {
			tank.WriteString(fmt.Sprintf("%s %s   %s %s\n",
				st.label.Render("Distance:"), st.value.Render(fmt.Sprintf("%.1fcm", last.Distance())),
				st.label.Render("Level:"), st.value.Render(fmt.Sprintf("%.1f / %.0fcm", last.Level(), cfg.TankHeight)),
			))
			tank.WriteString(m.gauge.ViewAs(float64(last.Level() / cfg.TankHeight)))
		} else {
			tank.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Reading:"), st.err.Render("no echo")))
			tank.WriteString(m.gauge.ViewAs(0))
		}
		tank.WriteString("\n")
		tank.WriteString(st.header.Render("taken " + last.Timestamp().Format("15:04:05.000")))
	} else {
		tank.WriteString(st.header.Render("(no reading yet, sampling starts in MONITORING)"))
	}
	s.WriteString(st.box.Render(tank.String()))
	s.WriteString("\n\n")

	// Events
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(st.box.Width(m.width - 4).Render(m.events.render(st, m.height-18)))

	return s.String()
}
