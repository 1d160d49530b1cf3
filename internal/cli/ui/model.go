// Package ui is the bubbletea progress view of a langnotes run.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stackvity/langnotes/internal/cli/hooks"
	"github.com/stackvity/langnotes/pkg/converter"
)

const (
	listHeightMargin           = 4
	listUpdateDebounceDuration = 50 * time.Millisecond

	phaseInitializing = "Initializing..."
	phaseScanning     = "Scanning..."
	phaseRendering    = "Rendering..."
	phaseComplete     = "Complete"
)

// Model is the TUI state. bubbletea calls Update and View from a single
// goroutine, so the model needs no locking.
type Model struct {
	list    list.Model
	spinner spinner.Model
	version string

	width       int
	height      int
	initialized bool

	fileItems   []listItem
	itemMap     map[string]int
	processTime map[string]time.Time
	listDirty   bool

	summary      Summary
	phaseMessage string
	fatalError   string
	quitting     bool
}

type listItem struct {
	path     string
	status   converter.Status
	message  string
	duration time.Duration
}

// Summary holds the counts shown in the footer.
type Summary struct {
	TotalFilesScanned int
	ProcessedCount    int
	CachedCount       int
	SkippedCount      int
	ErrorCount        int
	BlockCount        int
	StartTime         time.Time
}

// UpdateListMsg asks the model to copy its items into the list component.
type UpdateListMsg struct{}

// NewModel returns the initial model; version is shown in the header.
func NewModel(version string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorStatusProcessing)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = true
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorSelectedDescFg).
		Background(ColorSelectedBg).
		Padding(0, 0, 0, 1)
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.NormalDesc = delegate.Styles.NormalDesc.Foreground(ColorNormalDescFg).Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	if version == "" {
		version = "dev"
	}
	return Model{
		list:         l,
		spinner:      s,
		version:      version,
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		fileItems:    make([]listItem, 0, 256),
		itemMap:      make(map[string]int),
		processTime:  make(map[string]time.Time),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.phaseMessage == phaseComplete {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	case hooks.FileDiscoveredMsg:
		if _, exists := m.itemMap[msg.Path]; !exists {
			m.addItem(listItem{path: msg.Path, status: converter.StatusPending})
			cmds = append(cmds, m.scheduleListUpdate())
		}
		if m.phaseMessage == phaseInitializing {
			m.phaseMessage = phaseScanning
		}

	case hooks.FileStatusUpdateMsg:
		m.applyStatus(msg)
		cmds = append(cmds, m.scheduleListUpdate())
		if msg.Status == converter.StatusProcessing && m.phaseMessage != phaseComplete {
			m.phaseMessage = phaseRendering
		}

	case hooks.RunCompleteMsg:
		s := msg.Report.Summary
		m.phaseMessage = phaseComplete
		m.summary.ProcessedCount = s.ProcessedCount
		m.summary.CachedCount = s.CachedCount
		m.summary.SkippedCount = s.SkippedCount
		m.summary.ErrorCount = s.ErrorCount
		m.summary.BlockCount = s.BlockCount
		if s.FatalErrorOccurred {
			m.fatalError = "Run stopped by a fatal error."
			for _, e := range msg.Report.Errors {
				if e.IsFatal {
					m.fatalError = fmt.Sprintf("Fatal error: %s (%s)", e.Error, e.Path)
					break
				}
			}
		}

	case UpdateListMsg:
		m.listDirty = false
		items := make([]list.Item, len(m.fileItems))
		for i, item := range m.fileItems {
			items[i] = item
		}
		cmds = append(cmds, m.list.SetItems(items))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) addItem(item listItem) {
	m.fileItems = append(m.fileItems, item)
	m.itemMap[item.path] = len(m.fileItems) - 1
	m.summary.TotalFilesScanned++
}

func (m *Model) applyStatus(msg hooks.FileStatusUpdateMsg) {
	idx, ok := m.itemMap[msg.Path]
	if !ok {
		m.addItem(listItem{path: msg.Path, status: msg.Status, message: msg.Message, duration: msg.Duration})
		m.adjustCount(msg.Status, 1)
		return
	}

	item := &m.fileItems[idx]
	switch {
	case msg.Status == converter.StatusProcessing:
		m.processTime[msg.Path] = time.Now()
		item.duration = 0
	case isFinalStatus(msg.Status):
		item.duration = msg.Duration
		if start, found := m.processTime[msg.Path]; found {
			if item.duration == 0 {
				item.duration = time.Since(start)
			}
			delete(m.processTime, msg.Path)
		}
	}

	wasFinal, isFinal := isFinalStatus(item.status), isFinalStatus(msg.Status)
	switch {
	case isFinal && !wasFinal:
		m.adjustCount(msg.Status, 1)
	case !isFinal && wasFinal:
		m.adjustCount(item.status, -1)
	}
	item.status = msg.Status
	item.message = msg.Message
}

// scheduleListUpdate coalesces list refreshes into one per debounce window.
func (m *Model) scheduleListUpdate() tea.Cmd {
	if m.listDirty {
		return nil
	}
	m.listDirty = true
	return tea.Tick(listUpdateDebounceDuration, func(time.Time) tea.Msg { return UpdateListMsg{} })
}

func (m *Model) adjustCount(status converter.Status, delta int) {
	switch status {
	case converter.StatusSuccess:
		m.summary.ProcessedCount += delta
	case converter.StatusCached:
		m.summary.ProcessedCount += delta
		m.summary.CachedCount += delta
	case converter.StatusSkipped:
		m.summary.SkippedCount += delta
	case converter.StatusFailed:
		m.summary.ErrorCount += delta
	}
}

func isFinalStatus(status converter.Status) bool {
	switch status {
	case converter.StatusSuccess, converter.StatusFailed, converter.StatusSkipped, converter.StatusCached:
		return true
	}
	return false
}

func (i listItem) FilterValue() string { return i.path }

func (i listItem) Title() string { return i.path }

// Description renders the status badge and a short detail: the error for
// failures, the reason for skips, the duration otherwise.
func (i listItem) Description() string {
	style, icon := StatusStylePending, " "
	switch i.status {
	case converter.StatusSuccess:
		style, icon = StatusStyleSuccess, "✓"
	case converter.StatusFailed:
		style, icon = StatusStyleFailed, "✗"
	case converter.StatusSkipped:
		style, icon = StatusStyleSkipped, "S"
	case converter.StatusCached:
		style, icon = StatusStyleCached, "C"
	case converter.StatusProcessing:
		style, icon = StatusStyleProcessing, "…"
	}

	details := ""
	switch i.status {
	case converter.StatusFailed:
		details = i.message
	case converter.StatusSkipped:
		details = strings.TrimSpace(strings.SplitN(i.message, ":", 2)[0])
	case converter.StatusSuccess, converter.StatusCached:
		details = formatDuration(i.duration)
	}
	return fmt.Sprintf("%s %s", style.Render("["+icon+"]"), details)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
