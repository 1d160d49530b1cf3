package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	if m.quitting {
		return "Exiting...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	headerLeft := "langnotes " + m.version
	headerRight := m.phaseMessage
	if m.phaseMessage != phaseComplete && m.phaseMessage != phaseInitializing {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width-HeaderStyle.GetHorizontalPadding(), headerLeft, headerRight, lipgloss.Top))

	elapsed := time.Since(m.summary.StartTime).Round(time.Millisecond)
	footerLeft := fmt.Sprintf(
		"Rendered: %d (Cached: %d) | Blocks: %d | Skipped: %d | Failed: %d | Scanned: %d | Elapsed: %s",
		m.summary.ProcessedCount,
		m.summary.CachedCount,
		m.summary.BlockCount,
		m.summary.SkippedCount,
		m.summary.ErrorCount,
		m.summary.TotalFilesScanned,
		elapsed,
	)
	footer := FooterStyle.Width(m.width).Render(spread(m.width-FooterStyle.GetHorizontalPadding(), footerLeft, "q: quit", lipgloss.Bottom))

	blocks := []string{header, m.list.View()}
	if m.fatalError != "" {
		blocks = append(blocks, StatusStyleFailed.Render(m.fatalError))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append(blocks, footer)...)
}

// spread places left and right at the edges of a line of the given width.
func spread(width int, left, right string, pos lipgloss.Position) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	middle := ""
	if gap > 0 {
		middle = lipgloss.PlaceHorizontal(gap, lipgloss.Center, " ")
	}
	return lipgloss.JoinHorizontal(pos, left, middle, right)
}
