// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/genstudio/internal/model"
	"github.com/jeranaias/genstudio/internal/session"
	"github.com/jeranaias/genstudio/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdown renders assistant content for the terminal. A nil renderer
// returns content unchanged.
type markdown struct {
	renderer *glamour.TermRenderer
}

func newMarkdown(enabled bool, width int) markdown {
	if !enabled {
		return markdown{}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown{}
	}
	return markdown{renderer: r}
}

func (m markdown) render(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// TURNS
// =============================================================================

// formatTurn renders one message for the transcript.
func formatTurn(m model.Message, md markdown) string {
	var b strings.Builder

	if m.Role == model.RoleUser {
		b.WriteString(UserStyle.Render("you") + " " + m.Content)
		for _, att := range m.Attachments {
			fmt.Fprintf(&b, "\n  %s %s", DimStyle.Render("+"), att.Name)
		}
		return b.String()
	}

	b.WriteString(AssistantStyle.Render("studio") + " ")
	switch {
	case m.Status == model.StatusSending:
		b.WriteString(DimStyle.Render("working..."))
		return b.String()
	case m.Status == model.StatusError:
		b.WriteString(ErrorStyle.Render(m.Content))
		return b.String()
	case m.Terminated:
		b.WriteString(DimStyle.Render(m.Content))
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(md.render(m.Content))

	for _, img := range m.Images {
		fmt.Fprintf(&b, "\n  %s %s", DimStyle.Render("image"), img)
	}
	for _, vid := range m.Videos {
		fmt.Fprintf(&b, "\n  %s %s", DimStyle.Render("video"), vid)
	}
	if m.MemoryUpdate != nil && m.MemoryUpdate.Summary != "" {
		fmt.Fprintf(&b, "\n  %s %s", DimStyle.Render("remembered"), m.MemoryUpdate.Summary)
	}
	if len(m.LoadedSkills) > 0 {
		fmt.Fprintf(&b, "\n  %s %s", DimStyle.Render("skills"), strings.Join(m.LoadedSkills, ", "))
	}
	if m.Interaction != nil {
		b.WriteString("\n")
		b.WriteString(formatInteraction(m.Interaction))
	}
	return b.String()
}

// formatInteraction lists the options of an interaction, numbered from 1.
func formatInteraction(in *model.Interaction) string {
	var b strings.Builder
	if in.Prompt != "" {
		b.WriteString(TitleStyle.Render(in.Prompt))
		b.WriteString("\n")
	}

	switch in.Kind {
	case model.InteractionChoices:
		for i, c := range in.Options {
			fmt.Fprintf(&b, "  %d) %s\n", i+1, c.Label)
		}
		if in.Resolved {
			b.WriteString(DimStyle.Render("  answered: " + strings.Join(in.Selection, ", ")))
		} else {
			b.WriteString(DimStyle.Render("  answer with /choose <number>"))
		}
	case model.InteractionImageSelect:
		for i, img := range in.Images {
			fmt.Fprintf(&b, "  %d) %s\n", i+1, img)
		}
		if in.Resolved {
			b.WriteString(DimStyle.Render("  selected: " + strings.Join(in.Selection, ", ")))
		} else {
			b.WriteString(DimStyle.Render(fmt.Sprintf("  select up to %d with /choose <n> [n...]", in.MaxSelect)))
		}
	}
	return b.String()
}

// formatProgress renders the live status line with the newest step.
func formatProgress(st session.State) string {
	line := st.StatusLine
	if line == "" {
		line = "working"
	}
	if n := len(st.ThinkingSteps); n > 0 {
		last := st.ThinkingSteps[n-1]
		line = fmt.Sprintf("%s (%s %s)", line, last.Step, last.Status)
	}
	return ProgressStyle.Render("  ... " + line)
}

// =============================================================================
// LISTINGS
// =============================================================================

// formatAttachments lists the pending attachments, numbered from 1.
func formatAttachments(atts []model.PendingAttachment, width int) string {
	if len(atts) == 0 {
		return DimStyle.Render("no pending attachments")
	}
	nameWidth := width - 24
	if nameWidth < 12 {
		nameWidth = 12
	}

	var b strings.Builder
	for i, att := range atts {
		name := util.PadWidth(util.TruncateWidth(att.Name, nameWidth), nameWidth)
		size := ""
		if att.Size > 0 {
			size = formatBytes(att.Size)
		}
		fmt.Fprintf(&b, "%2d. %s %-10s %s\n", i+1, name, size, DimStyle.Render(string(att.Source)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatHistory lists turns as one-line previews.
func formatHistory(msgs []model.Message, width int) string {
	if len(msgs) == 0 {
		return DimStyle.Render("no messages")
	}
	lineWidth := width - 16
	if lineWidth < 20 {
		lineWidth = 20
	}

	var b strings.Builder
	assistantN := 0
	for _, m := range msgs {
		label := UserStyle.Render("you   ")
		if m.Role == model.RoleAssistant {
			assistantN++
			label = AssistantStyle.Render(fmt.Sprintf("#%-5d", assistantN))
		}
		preview := util.TruncateWidth(util.FirstLine(m.Content), lineWidth)
		fmt.Fprintf(&b, "%s %s %s\n", label, RenderStatus(string(m.Status)), preview)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatStatus renders the /status summary.
func formatStatus(st session.State, pollInterval time.Duration, bridgeURL string) string {
	brand := st.BrandID
	if brand == "" {
		brand = "(none)"
	}
	loading := "idle"
	if st.IsLoading {
		loading = "generating"
	}

	rows := [][2]string{
		{"Brand", brand},
		{"Bridge", bridgeURL},
		{"Messages", fmt.Sprintf("%d", len(st.Messages))},
		{"State", loading},
		{"Aspect ratio", st.AspectRatio},
		{"Generation mode", st.GenerationMode},
		{"Attachments", fmt.Sprintf("%d pending", len(st.Attachments))},
		{"Poll interval", formatDurationShort(pollInterval)},
	}
	if st.Error != "" {
		rows = append(rows, [2]string{"Last error", st.Error})
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session"))
	for _, r := range rows {
		b.WriteString("\n" + RenderLabel(r[0]) + ValueStyle.Render(r[1]))
	}
	return b.String()
}

// =============================================================================
// FORMAT HELPERS
// =============================================================================

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
