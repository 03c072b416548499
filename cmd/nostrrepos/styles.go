package main

import (
	"fmt"
	"strings"

	"nostrrepos/pkg/event"
	"nostrrepos/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primaryColor   = lipgloss.Color("#BD93F9") // Purple
	secondaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor    = lipgloss.Color("#50FA7B") // Green
	warningColor   = lipgloss.Color("#FFB86C") // Orange
	mutedColor     = lipgloss.Color("#6272A4")
	fgColor        = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor)

	goodStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

type field struct {
	label string
	value string
	style lipgloss.Style
}

func createPanel(title string, fields []field) string {
	lines := []string{titleStyle.Render(title)}
	for _, f := range fields {
		value := f.value
		if value == "" {
			value = "-"
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(f.label),
			f.style.Render(value)))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderProfile(p types.ContributorProfile) string {
	key := field{"Nostr key", "not found", warnStyle}
	if p.ResolvedKey != "" {
		key = field{"Nostr key", string(p.ResolvedKey), goodStyle}
	}

	return createPanel("GitHub contributor "+p.ExternalHandle, []field{
		{"Name", p.DisplayName, valueStyle},
		{"Twitter", p.SecondaryHandle, valueStyle},
		{"Website", p.ExternalURL, valueStyle},
		{"Bio", truncate(p.Bio, 60), valueStyle},
		key,
	})
}

func renderRepoStatus(s *repoStatus) string {
	fields := []field{
		{"GitHub updated", formatTimestamp(s.UpdatedAt), valueStyle},
	}
	switch {
	case s.Published == nil:
		fields = append(fields, field{"Published", "never", warnStyle})
	case s.Current:
		fields = append(fields,
			field{"Published", formatTimestamp(s.Published.CreatedAt), valueStyle},
			field{"State", "current", goodStyle})
	default:
		fields = append(fields,
			field{"Published", formatTimestamp(s.Published.CreatedAt), valueStyle},
			field{"State", "stale", warnStyle})
	}
	fields = append(fields,
		field{"Language", event.TagValue(s.Expected, "l", 0, ""), valueStyle},
		field{"License", event.TagValue(s.Expected, "license", 0, ""), valueStyle})

	return createPanel("Repository "+s.Repository, fields)
}

func renderRecordTable(records []types.Record) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(mutedColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("KIND", "AUTHOR", "CREATED", "ADDRESS / ID")

	for _, r := range records {
		t.Row(
			fmt.Sprintf("%d", r.Kind),
			truncate(string(r.Author), 16),
			formatTimestamp(r.CreatedAt),
			truncate(event.DedupKey(r), 48),
		)
	}
	return t.String() + fmt.Sprintf("\n%d records", len(records))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
