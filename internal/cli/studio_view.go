package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"yt-clip-studio/internal/model"
	"yt-clip-studio/internal/poller"
)

func (m studioModel) View() string {
	if m.fatalErr != nil {
		return studioErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	switch m.mode {
	case studioModeForm:
		return m.viewForm("tab/shift+tab or up/down: move | left/right/space: choose | enter: next/submit | ctrl+s: submit | esc: cancel")
	case studioModeClipText:
		return m.viewForm("enter: apply | esc: cancel")
	case studioModeWatch:
		return m.viewWatch()
	case studioModeClips:
		return m.viewClips()
	default:
		return m.viewJobs()
	}
}

func (m studioModel) viewJobs() string {
	header := studioTitleStyle.Render("yt-clip-studio") + "\n" +
		studioMutedStyle.Render("up/down: move | enter: open | w: watch | n: new job | r: refresh | q: quit")

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left, m.renderJobList(m.width), m.renderJobDetails(m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
	}
	leftW := clampInt(m.width/2, 34, 64)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderJobList(leftW), m.renderJobDetails(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m studioModel) renderJobList(width int) string {
	jobs := m.tracker.Jobs().Jobs()
	maxRows := clampInt(m.height-10, 4, 20)
	lines := make([]string, 0, maxRows+3)
	if len(jobs) == 0 {
		lines = append(lines, studioMutedStyle.Render("No jobs yet."))
		lines = append(lines, studioMutedStyle.Render("Press n to submit a YouTube link."))
	}
	start, end := listWindow(len(jobs), m.cursor, maxRows)
	if start > 0 {
		lines = append(lines, studioMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		j := jobs[i]
		line := fmt.Sprintf("%s %-10s %3d%%  %s", statusMark(j.Status), j.Status, j.Progress, defaultIfEmpty(j.Title, j.YouTubeURL))
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.cursor {
			line = studioSelStyle.Width(maxInt(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(jobs) {
		lines = append(lines, studioMutedStyle.Render("..."))
	}
	return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderJobDetails(width int) string {
	jobs := m.tracker.Jobs().Jobs()
	lines := []string{}
	if len(jobs) == 0 {
		lines = append(lines, "No job selected")
	} else {
		j := jobs[clampInt(m.cursor, 0, len(jobs)-1)]
		lines = append(lines, "Job Details", "")
		lines = append(lines, kv("id", j.ID))
		lines = append(lines, kv("title", defaultIfEmpty(j.Title, "(untitled)")))
		lines = append(lines, kv("url", j.YouTubeURL))
		lines = append(lines, kv("status", j.Status))
		lines = append(lines, kv("progress", fmt.Sprintf("%d%%", j.Progress)))
		lines = append(lines, kv("clips", fmt.Sprintf("%d", j.ClipCount)))
		lines = append(lines, kv("clip_length", fmt.Sprintf("%ds", j.ClipLength)))
		lines = append(lines, kv("language", j.Language))
		lines = append(lines, kv("style", j.Style))
		if j.SourceDuration > 0 {
			lines = append(lines, kv("source", formatSeconds(j.SourceDuration)))
		}
		if j.CreatedAt != "" {
			lines = append(lines, kv("created", j.CreatedAt))
		}
		if j.Status == model.StatusError {
			lines = append(lines, "", studioErrorStyle.Render(poller.FailureMessage(j)))
		}
	}
	if m.offline {
		lines = append(lines, "", studioMutedStyle.Render("offline: cached list"))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: completed jobs open straight into the clip editor."
	}
	style := studioMutedStyle
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "error:"):
		style = studioErrorStyle
	case strings.HasPrefix(lower, "job completed"), strings.HasPrefix(lower, "saved"), strings.HasPrefix(lower, "downloaded"), strings.HasPrefix(lower, "job created"):
		style = studioOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m studioModel) viewForm(hints string) string {
	if m.form == nil {
		return ""
	}
	header := studioTitleStyle.Render(m.form.Title)
	lines := make([]string, 0, len(m.form.Fields)+6)
	for i, f := range m.form.Fields {
		prefix := "  "
		if i == m.form.Index {
			prefix = "> "
		}
		display := strings.TrimSpace(f.Value)
		if display == "" {
			display = studioMutedStyle.Render("(empty)")
		}
		if f.Kind == studioFieldSelect {
			display = "[" + display + "]"
		}
		lines = append(lines, wrapOrTrim(fmt.Sprintf("%s%s: %s", prefix, f.Label, display), maxInt(m.width-6, 20)))
	}

	curr := m.form.currentField()
	body := strings.Join(lines, "\n") + fmt.Sprintf("\n\n%s\n", curr.Label)
	if strings.TrimSpace(curr.Help) != "" {
		body += studioMutedStyle.Render(curr.Help) + "\n"
	}
	if curr.Kind == studioFieldSelect {
		body += studioMutedStyle.Render(strings.Join(curr.Options, " | "))
	} else {
		body += m.form.Input.View()
	}
	if m.form.Saving {
		body += studioMutedStyle.Render("\nSubmitting...")
	}
	if strings.TrimSpace(m.form.Error) != "" {
		body += "\n" + studioErrorStyle.Render(m.form.Error)
	}
	panel := studioPanelStyle.Width(maxInt(m.width, 40)).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, studioMutedStyle.Render(hints), panel)
}

func (m studioModel) viewWatch() string {
	header := studioTitleStyle.Render("Processing") + "\n" +
		studioMutedStyle.Render("r: retry failed job | enter/c: open clips | esc/b: back | q: quit")

	job, ok := m.tracker.Active()
	if !ok {
		return lipgloss.JoinVertical(lipgloss.Left, header, studioPanelStyle.Render("No active job."))
	}
	width := maxInt(m.width, 40)
	lines := []string{
		wrapOrTrim(defaultIfEmpty(job.Title, "(untitled)"), width-6),
		studioMutedStyle.Render(wrapOrTrim(job.YouTubeURL, width-6)),
		"",
		m.progress.ViewAs(float64(clampInt(job.Progress, 0, 100)) / 100),
		"",
	}
	switch job.Status {
	case model.StatusCompleted:
		lines = append(lines, studioOKStyle.Render(fmt.Sprintf("Completed: %d clips ready", job.ClipCount)))
		lines = append(lines, "Press enter to open the clip editor.")
	case model.StatusError:
		lines = append(lines, studioErrorStyle.Render(poller.FailureMessage(job)))
		if m.retrying {
			lines = append(lines, studioMutedStyle.Render("Resubmitting..."))
		} else {
			lines = append(lines, "Press r to retry.")
		}
	default:
		state := m.tracker.State()
		if state == poller.StatePolling {
			lines = append(lines, fmt.Sprintf("%s %s  %d%%", m.spinner.View(), job.Status, job.Progress))
		} else {
			lines = append(lines, fmt.Sprintf("%s  %d%%  (%s)", job.Status, job.Progress, state))
		}
	}
	panel := studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, m.renderStatusLine(m.width))
}

func (m studioModel) viewClips() string {
	header := studioTitleStyle.Render("Clips") + "\n" +
		studioMutedStyle.Render("up/down: clip | left/right or [ ]: start | shift+left/right or , .: end | t: title | c: caption | s: save | u: undo | o: download clip | z: download all | esc: back")

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left, m.renderClipList(m.width), m.renderEditor(m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
	}
	leftW := clampInt(m.width*2/5, 30, 56)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderClipList(leftW), m.renderEditor(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m studioModel) renderClipList(width int) string {
	lines := []string{}
	switch {
	case m.clipsLoading:
		lines = append(lines, studioMutedStyle.Render("Loading clips..."))
	case len(m.clips) == 0:
		lines = append(lines, studioMutedStyle.Render("No clips for this job."))
	}
	maxRows := clampInt(m.height-10, 4, 20)
	start, end := listWindow(len(m.clips), m.clipCursor, maxRows)
	for i := start; i < end; i++ {
		c := m.clips[i]
		line := fmt.Sprintf("%3d  %s-%s  %s", c.ViralScore, formatSeconds(c.StartTime), formatSeconds(c.EndTime), c.Title)
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.clipCursor {
			line = studioSelStyle.Width(maxInt(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m studioModel) renderEditor(width int) string {
	lines := []string{}
	if !m.editor.Bound() {
		lines = append(lines, "Select a clip to edit.")
	} else {
		s := m.editor
		start, end := s.Range()
		title := "Trim Editor"
		if s.Dirty() {
			title += studioMutedStyle.Render("  (unsaved)")
		}
		lines = append(lines, title, "")
		lines = append(lines, kv("title", s.Title()))
		lines = append(lines, kv("caption", s.Caption()))
		lines = append(lines, kv("range", fmt.Sprintf("%s - %s", formatSeconds(start), formatSeconds(end))))
		lines = append(lines, kv("duration", fmt.Sprintf("%ds", s.Duration())))
		lines = append(lines, kv("max", formatSeconds(s.MaxRange())))
		lines = append(lines, trimBar(start, end, s.MaxRange(), clampInt(width-8, 10, 60)))
		lines = append(lines, kv("viral_score", fmt.Sprintf("%d", s.Clip().ViralScore)))
		target := m.deps.dispatcher.ClipTarget(s.Clip())
		if target.Available {
			lines = append(lines, kv("video", target.Name))
		} else {
			lines = append(lines, kv("video", studioMutedStyle.Render(target.Reason)))
		}
	}
	if m.saving {
		lines = append(lines, "", studioMutedStyle.Render("Saving..."))
	}
	if m.clipError != "" {
		lines = append(lines, "", studioErrorStyle.Render(m.clipError))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return studioPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

// trimBar draws the selected range over the whole editable span.
func trimBar(start, end, maxRange, width int) string {
	if maxRange <= 0 || width <= 0 {
		return ""
	}
	from := start * width / maxRange
	to := max((end*width+maxRange-1)/maxRange, from+1)
	to = min(to, width)
	return strings.Repeat("─", from) + studioRangeStyle.Render(strings.Repeat("█", to-from)) + strings.Repeat("─", width-to)
}

func statusMark(status string) string {
	switch status {
	case model.StatusCompleted:
		return "✓"
	case model.StatusError:
		return "✗"
	case model.StatusProcessing:
		return "…"
	default:
		return "·"
	}
}
