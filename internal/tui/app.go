// Package tui is the popup surface: a transient download list with an
// add-URL form, filter, and the completed-task actions. It prefers the
// daemon's view of the world through the control API and falls back to
// polling the server directly when the daemon is not running.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"pyloadwatch/internal/api"
	"pyloadwatch/internal/config"
	"pyloadwatch/internal/domain"
	"pyloadwatch/internal/hook"
	"pyloadwatch/internal/reconcile"
	"pyloadwatch/internal/tui/styles"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeFilter
)

type snapshotMsg struct {
	snapshot domain.Snapshot
	err      error
}

type speedLimitMsg struct {
	enabled bool
}

type addedMsg struct {
	id   string
	name string
	err  error
}

type actionDoneMsg struct {
	err error
}

type tickMsg time.Time

// Model is the popup's Bubble Tea model.
type Model struct {
	gateway   domain.Gateway
	messenger *api.Client
	cfg       *config.Config
	logger    *slog.Logger

	snapshot      domain.Snapshot
	speedLimit    bool
	showCompleted bool
	authed        bool
	loading       bool
	errMsg        string

	mode     mode
	cursor   int
	filter   textinput.Model
	addInput textinput.Model
	spin     spinner.Model
	bar      progress.Model

	width  int
	height int
}

// NewModel creates the popup model.
func NewModel(gateway domain.Gateway, messenger *api.Client, cfg *config.Config, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}

	filterInput := textinput.New()
	filterInput.Placeholder = "filter..."
	filterInput.Prompt = "/"
	filterInput.CharLimit = 60

	addInput := textinput.New()
	addInput.Placeholder = "https://..."
	addInput.Prompt = "add url: "
	addInput.CharLimit = 500

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.AccentStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.ShowPercentage = false

	return Model{
		gateway:       gateway,
		messenger:     messenger,
		cfg:           cfg,
		logger:        logger,
		showCompleted: cfg.UI.ShowCompleted,
		loading:       true,
		filter:        filterInput,
		addInput:      addInput,
		spin:          spin,
		bar:           bar,
	}
}

// Init kicks off the initial refresh and asks the daemon to run a
// finished-downloads check, so the badge is fresh while the popup is open.
func (m Model) Init() tea.Cmd {
	m.messenger.CheckNow()
	return tea.Batch(m.spin.Tick, m.refreshCmd(), m.fetchSpeedLimitCmd(), m.tickCmd())
}

// refreshCmd fetches the task snapshot: daemon first, direct server poll as
// the fallback.
func (m Model) refreshCmd() tea.Cmd {
	needLogin := !m.authed
	return func() tea.Msg {
		if snapshot, _, err := m.messenger.State(); err == nil && snapshot.FetchedAt > 0 {
			return snapshotMsg{snapshot: snapshot}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if needLogin {
			if err := m.gateway.Login(ctx); err != nil {
				return snapshotMsg{err: err}
			}
		}

		activeListing, errActive := m.gateway.ActiveListing(ctx)
		queueListing, errQueue := m.gateway.QueueListing(ctx)
		if errActive != nil && errQueue != nil {
			return snapshotMsg{err: errActive}
		}

		snapshot := reconcile.Merge(activeListing, queueListing)
		snapshot.Connected = true
		snapshot.FetchedAt = time.Now().Unix()
		return snapshotMsg{snapshot: snapshot}
	}
}

func (m Model) fetchSpeedLimitCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		enabled, err := m.gateway.SpeedLimit(ctx)
		if err != nil {
			return nil
		}
		return speedLimitMsg{enabled: enabled}
	}
}

func (m Model) addCmd(url string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		name := packageNameFromURL(url)
		id, err := m.gateway.AddPackage(ctx, name, url)
		return addedMsg{id: id, name: name, err: err}
	}
}

func (m Model) removeCmd(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return actionDoneMsg{err: m.gateway.RemoveTask(ctx, id)}
	}
}

func (m Model) clearFinishedCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return actionDoneMsg{err: m.gateway.ClearFinished(ctx)}
	}
}

func (m Model) toggleSpeedLimitCmd(enabled bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.gateway.SetSpeedLimit(ctx, enabled); err != nil {
			return actionDoneMsg{err: err}
		}
		return speedLimitMsg{enabled: enabled}
	}
}

func (m Model) tickCmd() tea.Cmd {
	interval := time.Duration(m.cfg.UI.RefreshIntervalSec) * time.Second
	if interval <= 0 || !m.cfg.UI.AutoRefresh {
		return nil
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = barWidth(m.width)
		return m, nil

	case snapshotMsg:
		m.loading = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.snapshot.Connected = false
			return m, nil
		}
		m.errMsg = ""
		m.authed = true
		m.snapshot = msg.snapshot
		m.clampCursor()
		return m, nil

	case speedLimitMsg:
		m.speedLimit = msg.enabled
		return m, nil

	case addedMsg:
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("add failed: %v", msg.err)
			return m, nil
		}
		// Let the daemon pre-register the id so the completion notice is
		// not duplicated later.
		m.messenger.DownloadAdded(msg.id, msg.name, true)
		return m, m.refreshCmd()

	case actionDoneMsg:
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("action failed: %v", msg.err)
			return m, nil
		}
		m.messenger.CheckNow()
		return m, m.refreshCmd()

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), m.tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAdd:
		switch msg.String() {
		case "esc":
			m.mode = modeList
			m.addInput.Blur()
			return m, nil
		case "enter":
			url := strings.TrimSpace(m.addInput.Value())
			m.mode = modeList
			m.addInput.SetValue("")
			m.addInput.Blur()
			if url == "" {
				return m, nil
			}
			return m, m.addCmd(url)
		}
		var cmd tea.Cmd
		m.addInput, cmd = m.addInput.Update(msg)
		return m, cmd

	case modeFilter:
		switch msg.String() {
		case "esc":
			m.mode = modeList
			m.filter.SetValue("")
			m.filter.Blur()
			return m, nil
		case "enter":
			m.mode = modeList
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.clampCursor()
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		// One last check on the way out, mirroring popup-close behavior.
		m.messenger.CheckNow()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visibleTasks())-1 {
			m.cursor++
		}
	case "a":
		m.mode = modeAdd
		m.addInput.Focus()
		return m, textinput.Blink
	case "/":
		m.mode = modeFilter
		m.filter.Focus()
		return m, textinput.Blink
	case "r":
		m.loading = true
		return m, m.refreshCmd()
	case "t":
		m.showCompleted = !m.showCompleted
		m.clampCursor()
	case "s":
		return m, m.toggleSpeedLimitCmd(!m.speedLimit)
	case "o":
		if err := hook.OpenBrowser(m.cfg.Connection.BaseURL()); err != nil {
			m.errMsg = fmt.Sprintf("failed to open browser: %v", err)
		}
	case "c":
		return m, m.clearFinishedCmd()
	case "d", "x":
		tasks := m.visibleTasks()
		if m.cursor < len(tasks) {
			return m, m.removeCmd(tasks[m.cursor].ID)
		}
	}
	return m, nil
}

// visibleTasks applies the show-completed toggle and the fuzzy filter,
// active tasks first.
func (m Model) visibleTasks() []domain.Task {
	tasks := make([]domain.Task, 0, len(m.snapshot.Active)+len(m.snapshot.Completed))
	tasks = append(tasks, m.snapshot.Active...)
	if m.showCompleted {
		tasks = append(tasks, m.snapshot.Completed...)
	}

	query := strings.TrimSpace(m.filter.Value())
	if query == "" {
		return tasks
	}
	filtered := tasks[:0]
	for _, task := range tasks {
		if fuzzy.MatchFold(query, task.Name) {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

func (m *Model) clampCursor() {
	if n := len(m.visibleTasks()); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View renders the popup.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n")

	switch {
	case m.loading:
		b.WriteString(fmt.Sprintf("\n  %s fetching downloads...\n", m.spin.View()))
	default:
		b.WriteString(m.listView())
	}

	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) headerView() string {
	status := styles.SuccessStyle.Render(styles.ConnectedChar)
	if !m.snapshot.Connected {
		status = styles.ErrorStyle.Render(styles.DisconnectedChar + " disconnected")
	}

	speed := ""
	if m.snapshot.TotalSpeed > 0 {
		speed = styles.DimStyle.Render(" " + domain.FormatBytes(m.snapshot.TotalSpeed) + "/s")
	}
	limit := ""
	if m.speedLimit {
		limit = styles.WarnStyle.Render(" [limited]")
	}

	return fmt.Sprintf(" %s %s%s%s",
		styles.TitleStyle.Render("pyloadwatch"), status, speed, limit)
}

func (m Model) listView() string {
	tasks := m.visibleTasks()
	if len(tasks) == 0 {
		if m.filter.Value() != "" {
			return styles.DimStyle.Render("\n  no downloads match the filter\n")
		}
		return styles.DimStyle.Render("\n  no downloads\n")
	}

	var b strings.Builder
	for i, task := range tasks {
		b.WriteString(m.taskRow(task, i == m.cursor))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) taskRow(task domain.Task, selected bool) string {
	name := truncate(task.Name, nameWidth(m.width))

	var status string
	switch {
	case task.IsCompleted():
		status = styles.SuccessStyle.Render("✓")
	case task.IsFailed():
		status = styles.ErrorStyle.Render("✗")
	default:
		status = styles.AccentStyle.Render("↓")
	}

	detail := styles.DimStyle.Render(fmt.Sprintf("%5.1f%%  %s", task.Percent, task.FormattedSize()))
	if task.Speed > 0 {
		detail += styles.DimStyle.Render("  " + domain.FormatBytes(task.Speed) + "/s")
	}

	bar := m.bar.ViewAs(task.Percent / 100)

	row := fmt.Sprintf("%s %s  %s  %s", status, name, bar, detail)
	if selected {
		return styles.SelectedStyle.Render(row)
	}
	return " " + row
}

func (m Model) footerView() string {
	switch m.mode {
	case modeAdd:
		return " " + m.addInput.View()
	case modeFilter:
		return " " + m.filter.View()
	}

	if m.errMsg != "" {
		return " " + styles.ErrorStyle.Render(m.errMsg)
	}
	help := "a add  / filter  d remove  c clear done  s limit  t toggle done  o web ui  r refresh  q quit"
	return " " + styles.DimStyle.Render(help)
}

func barWidth(total int) int {
	w := total / 4
	if w < 10 {
		w = 10
	}
	if w > 30 {
		w = 30
	}
	return w
}

func nameWidth(total int) int {
	w := total / 3
	if w < 20 {
		w = 20
	}
	return w
}

func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// packageNameFromURL derives a package name from the URL's last path
// segment, falling back to the host.
func packageNameFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return trimmed
}
