package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasmvm"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/types"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	gasStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// session is everything a call from the UI needs.
type session struct {
	vm       *wasmvm.VM
	checksum []byte
	state    *contractState
	contract string
	sender   string
	height   uint64
	gasLimit uint64
}

type modelState int

const (
	stateSelectEntry modelState = iota
	stateInputMsg
	stateCalling
	stateShowResult
)

type interactiveModel struct {
	err      error
	sess     *session
	entries  []string
	result   string
	report   types.GasReport
	input    textinput.Model
	spinner  spinner.Model
	selected int
	state    modelState
}

func newInteractiveModel(sess *session) *interactiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = gasStyle
	return &interactiveModel{
		sess:    sess,
		spinner: sp,
		state:   stateSelectEntry,
	}
}

type analyzedMsg struct {
	err     error
	entries []string
}

type callResultMsg struct {
	err    error
	result string
	report types.GasReport
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.analyze, m.spinner.Tick)
}

func (m *interactiveModel) analyze() tea.Msg {
	report, err := m.sess.vm.AnalyzeCode(m.sess.checksum)
	if err != nil {
		return analyzedMsg{err: err}
	}
	entries := append([]string(nil), report.Entrypoints...)
	if report.HasIBCEntryPoints {
		entries = append(entries,
			runtime.EntryIBCChannelOpen, runtime.EntryIBCChannelConnect, runtime.EntryIBCChannelClose,
			runtime.EntryIBCPacketReceive, runtime.EntryIBCPacketAck, runtime.EntryIBCPacketTimeout,
		)
	}
	if len(entries) == 0 {
		return analyzedMsg{err: fmt.Errorf("contract exports no entry points")}
	}
	return analyzedMsg{entries: entries}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputMsg {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectEntry && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectEntry && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectEntry:
				if len(m.entries) == 0 {
					return m, nil
				}
				m.prepareInput()
				m.state = stateInputMsg
				return m, textinput.Blink

			case stateInputMsg:
				m.state = stateCalling
				return m, tea.Batch(m.spinner.Tick, m.runEntry(m.input.Value()))

			case stateShowResult:
				m.reset()
			}

		case "esc":
			switch m.state {
			case stateInputMsg, stateShowResult:
				m.reset()
			}
		}

	case analyzedMsg:
		m.err = msg.err
		m.entries = msg.entries

	case callResultMsg:
		m.result = msg.result
		m.report = msg.report
		m.err = msg.err
		m.state = stateShowResult

	case spinner.TickMsg:
		if m.state != stateCalling && len(m.entries) > 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state == stateInputMsg {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectEntry
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = "{}"
	ti.Prompt = "msg: "
	ti.Width = 60
	ti.Focus()
	m.input = ti
}

// runEntry calls the selected entry point off the UI goroutine.
func (m *interactiveModel) runEntry(raw string) tea.Cmd {
	entry := m.entries[m.selected]
	sess := m.sess
	return func() tea.Msg {
		msg := []byte(strings.TrimSpace(raw))
		if len(msg) == 0 {
			msg = []byte("{}")
		}
		env, err := envJSON(sess.contract, sess.height, time.Now())
		if err != nil {
			return callResultMsg{err: err}
		}
		info, err := infoJSON(sess.sender)
		if err != nil {
			return callResultMsg{err: err}
		}

		res, report, err := callEntry(sess.vm, entry, sess.checksum, env, info, msg, sess.state, sess.gasLimit)
		if err != nil {
			return callResultMsg{err: err, report: report}
		}
		return callResultMsg{result: string(resultJSON(res)), report: report}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelectEntry && len(m.entries) == 0 {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if len(m.entries) == 0 {
		return m.spinner.View() + " Analyzing contract..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmvm"))
	b.WriteString(" ")
	b.WriteString(hex.EncodeToString(m.sess.checksum))
	b.WriteString(" @ ")
	b.WriteString(m.sess.contract)
	b.WriteString("\n\n")

	entry := m.entries[m.selected]
	switch m.state {
	case stateSelectEntry:
		b.WriteString("Select an entry point:\n\n")
		for i, e := range m.entries {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + e))
			} else {
				b.WriteString("  " + entryStyle.Render(e))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter choose • q quit"))

	case stateInputMsg:
		fmt.Fprintf(&b, "Calling %s\n\n", entryStyle.Render(entry))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateCalling:
		fmt.Fprintf(&b, "%s Running %s...\n", m.spinner.View(), entryStyle.Render(entry))

	case stateShowResult:
		fmt.Fprintf(&b, "Result of %s:\n\n", entryStyle.Render(entry))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(gasStyle.Render(fmt.Sprintf("gas: limit %d, internal %d, external %d, remaining %d",
			m.report.Limit, m.report.UsedInternally, m.report.UsedExternally, m.report.Remaining)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func runInteractive(sess *session) error {
	p := tea.NewProgram(newInteractiveModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
