package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jwulff/steno/interview/internal/session"
	"github.com/jwulff/steno/interview/internal/ui"
)

// Model is the root bubbletea model for a practice interview. Session
// behaviour lives in the orchestrator; the model owns input and layout.
type Model struct {
	session *session.Orchestrator
	log     logrus.FieldLogger
	levels  []string

	// Topic entry
	topic      string
	levelIndex int

	// UI state
	width          int
	height         int
	feedbackScroll int
}

// New creates a model driving o. levels are offered in order, starting at
// defaultLevel.
func New(o *session.Orchestrator, levels []string, defaultLevel string, log logrus.FieldLogger) Model {
	m := Model{session: o, log: log, levels: levels}
	for i, l := range levels {
		if l == defaultLevel {
			m.levelIndex = i
		}
	}
	return m
}

// Init has nothing to start; the session begins on the first Enter.
func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) level() string {
	if len(m.levels) == 0 {
		return ""
	}
	return m.levels[m.levelIndex]
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}

	prev := m.session.State()
	cmd := m.session.Update(msg)
	if prev != session.StateEvaluated && m.session.State() == session.StateEvaluated {
		m.feedbackScroll = 0
	}
	return m, cmd
}

// handleKey processes key presses for the current session state.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == KeyCtrlC {
		return m.quit()
	}

	state := m.session.State()
	if state == session.StateIdle {
		return m.handleTopicKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper:
		return m.quit()

	case KeyReset:
		m.reset()
		return m, nil

	case KeySpace:
		switch state {
		case session.StateActive:
			return m, m.session.StartRecording()
		case session.StateRecording:
			return m, m.session.StopRecording()
		}

	case KeyRetry:
		return m, m.session.Retry()

	case KeyNew:
		if state == session.StateEvaluated || state == session.StateStopped {
			m.reset()
		}

	case KeyJ, KeyDown:
		if state == session.StateEvaluated && m.feedbackScroll < m.maxFeedbackScroll() {
			m.feedbackScroll++
		}

	case KeyK, KeyUp:
		if state == session.StateEvaluated && m.feedbackScroll > 0 {
			m.feedbackScroll--
		}
	}
	return m, nil
}

func (m Model) handleTopicKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyRunes:
		m.topic += string(msg.Runes)
	case tea.KeySpace:
		m.topic += " "
	case tea.KeyBackspace:
		if r := []rune(m.topic); len(r) > 0 {
			m.topic = string(r[:len(r)-1])
		}
	case tea.KeyTab:
		if len(m.levels) > 0 {
			m.levelIndex = (m.levelIndex + 1) % len(m.levels)
		}
	case tea.KeyEnter:
		return m, m.session.Configure(m.topic, m.level())
	case tea.KeyEsc:
		return m.quit()
	}
	return m, nil
}

func (m *Model) reset() {
	report := m.session.Reset()
	m.feedbackScroll = 0
	if !report.OK() {
		m.log.WithField("errors", report.Errors).Warn("reset incomplete")
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.reset()
	return m, tea.Quit
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderBody())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if bar := m.renderMessageBar(); bar != "" {
		sections = append(sections, bar)
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("STENO INTERVIEW")

	var dot string
	switch m.session.State() {
	case session.StateRecording:
		dot = ui.RecordingDotStyle.Render("● REC " + m.session.Elapsed())
	case session.StateConfiguring, session.StateProcessing:
		dot = ui.SpinnerStyle.Render("⟳ " + m.session.State().String())
	default:
		dot = ui.IdleDotStyle.Render("○ " + m.session.State().String())
	}

	var camera string
	if m.session.CameraActive() {
		camera = "  " + ui.LiveBadgeStyle.Render("CAM")
		if rec := m.session.Record(); rec != nil {
			p := rec.Posture()
			style := ui.StableStyle
			if p.Stability != session.StabilityStable {
				style = ui.UnstableStyle
			}
			camera += " " + style.Render(fmt.Sprintf("%s (%d samples)", p.Stability, p.SampleCount))
		}
	}

	status := ""
	if s := m.session.Status(); s != "" {
		status = "  " + ui.StatusStyle.Render(s)
	}
	return title + "  " + dot + camera + status
}

func (m Model) bodyHeight() int {
	if m.height == 0 {
		return 20
	}
	// header, two dividers, message bar, footer
	return max(5, m.height-5)
}

func (m Model) renderBody() string {
	width := max(20, m.width-4)
	var lines []string

	switch m.session.State() {
	case session.StateIdle:
		lines = append(lines, ui.PanelTitleStyle.Render("NEW INTERVIEW"), "")
		lines = append(lines, "  Topic: "+ui.InputStyle.Render(m.topic+"▌"))
		var levels []string
		for i, l := range m.levels {
			if i == m.levelIndex {
				levels = append(levels, ui.SelectedStyle.Render("["+l+"]"))
			} else {
				levels = append(levels, ui.DimStyle.Render(" "+l+" "))
			}
		}
		lines = append(lines, "  Level: "+strings.Join(levels, " "))
		lines = append(lines, "", ui.DimStyle.Render("  Type a topic, Tab to change level, Enter to begin"))

	case session.StateEvaluated:
		lines = append(lines, m.questionLines(width)...)
		lines = append(lines, "", ui.PanelTitleStyle.Render("FEEDBACK"))
		feedback := m.feedbackLines(width)
		visible := max(1, m.bodyHeight()-len(lines))
		end := min(len(feedback), m.feedbackScroll+visible)
		for _, l := range feedback[m.feedbackScroll:end] {
			lines = append(lines, "  "+l)
		}

	default:
		lines = append(lines, m.questionLines(width)...)
		lines = append(lines, "", ui.PanelTitleStyle.Render("TRANSCRIPT"))
		lines = append(lines, m.transcriptLines(width)...)
	}

	for len(lines) < m.bodyHeight() {
		lines = append(lines, "")
	}
	if len(lines) > m.bodyHeight() {
		lines = lines[:m.bodyHeight()]
	}
	return strings.Join(lines, "\n")
}

func (m Model) questionLines(width int) []string {
	rec := m.session.Record()
	if rec == nil {
		return []string{ui.DimStyle.Render("  Preparing your question...")}
	}
	header := ui.PanelTitleStyle.Render("QUESTION") + ui.DimStyle.Render(fmt.Sprintf("  %s · %s", rec.Topic, rec.Level))
	lines := []string{header}
	for _, l := range wrapText(rec.Question, width) {
		lines = append(lines, "  "+ui.QuestionStyle.Render(l))
	}
	return lines
}

func (m Model) transcriptLines(width int) []string {
	var text string
	if rec := m.session.Record(); rec != nil {
		text = rec.Transcript()
	}
	interim := m.session.Interim()
	if text == "" && interim == "" {
		if m.session.State() == session.StateActive {
			return []string{ui.DimStyle.Render("  Press Space to start answering")}
		}
		return nil
	}

	var lines []string
	if text != "" {
		for _, l := range wrapText(text, width) {
			lines = append(lines, "  "+l)
		}
	}
	if interim != "" {
		for _, l := range wrapText(interim+"▌", width) {
			lines = append(lines, "  "+ui.PartialTextStyle.Render(l))
		}
	}

	// Keep the newest text visible.
	room := max(1, m.bodyHeight()-6)
	if len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	return lines
}

// feedbackLines renders the evaluation as plain text; markdown headings get
// a heading style and nothing else is interpreted.
func (m Model) feedbackLines(width int) []string {
	var out []string
	for _, raw := range strings.Split(m.session.Feedback(), "\n") {
		if strings.HasPrefix(strings.TrimSpace(raw), "#") {
			heading := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "#"))
			out = append(out, ui.HeadingStyle.Render(heading))
			continue
		}
		out = append(out, wrapText(raw, width)...)
	}
	return out
}

func (m Model) maxFeedbackScroll() int {
	n := len(m.feedbackLines(max(20, m.width-4)))
	return max(0, n-1)
}

func (m Model) renderMessageBar() string {
	if err := m.session.Err(); err != nil {
		return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(err.Error())
	}
	if w := m.session.Warning(); w != "" {
		return ui.WarningStyle.Render("! " + w)
	}
	return ""
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	switch m.session.State() {
	case session.StateIdle:
		parts = append(parts, key("Enter", "Start"), key("Tab", "Level"), key("Esc", "Quit"))
		return strings.Join(parts, "  ")
	case session.StateActive:
		parts = append(parts, key("Space", "Record"), key("x", "Reset"))
	case session.StateRecording:
		parts = append(parts, key("Space", "Stop"), key("x", "Reset"))
	case session.StateConfiguring, session.StateProcessing:
		parts = append(parts, key("x", "Cancel"))
	case session.StateStopped:
		parts = append(parts, key("r", "Retry"), key("n", "New"))
	case session.StateEvaluated:
		parts = append(parts, key("j/k", "Scroll"), key("n", "New"))
	}
	parts = append(parts, key("q", "Quit"))
	return strings.Join(parts, "  ")
}

// Helpers

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
