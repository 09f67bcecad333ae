package telegram

import (
	"fmt"
	"sort"
	"strings"

	"golang-fundamental-scryper/internal/crawler/dto"
	"golang-fundamental-scryper/pkg/utils"
)

const maxMessageLen = 4090

// FormatRunSummary renders a finished crawl run as a Markdown message.
func FormatRunSummary(s dto.RunSummary) string {
	var b strings.Builder

	icon := "✅"
	if s.Error != "" || (s.Failed > 0 && s.Succeeded == 0) {
		icon = "❌"
	} else if s.Failed > 0 {
		icon = "⚠️"
	}

	title := "Crawl Run Completed"
	if s.Error != "" {
		title = "Crawl Run Failed"
	}
	b.WriteString(fmt.Sprintf("%s *%s* %s\n\n", icon, title, icon))
	b.WriteString(fmt.Sprintf("🆔 *Run:* `%s`\n", s.RunID))
	b.WriteString(fmt.Sprintf("🚀 *Trigger:* %s\n", s.Trigger))
	b.WriteString(fmt.Sprintf("🕒 *Finished:* %s\n", s.FinishedAt.In(utils.GetISTTimeLocation()).Format("02 Jan 2006 15:04 MST")))
	b.WriteString(fmt.Sprintf("⏱ *Duration:* %s\n\n", s.Duration().Round(1e9)))

	if s.Bootstrap.Skipped {
		b.WriteString("📋 *Listing:* already populated, skipped\n")
	} else {
		b.WriteString(fmt.Sprintf("📋 *Listing:* %d discovered, %d stored, %d rejected\n",
			s.Bootstrap.Discovered, s.Bootstrap.Stored, s.Bootstrap.Rejected))
	}

	b.WriteString(fmt.Sprintf("📊 *Detail pages:* %d attempted, %d updated, %d failed\n", s.Attempted, s.Succeeded, s.Failed))
	if s.Ambiguous > 0 {
		b.WriteString(fmt.Sprintf("❔ *Unparseable values:* %d\n", s.Ambiguous))
	}

	if len(s.Failures) > 0 {
		reasons := make([]string, 0, len(s.Failures))
		for reason := range s.Failures {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)

		b.WriteString("\n*Failures:*\n")
		for _, reason := range reasons {
			b.WriteString(fmt.Sprintf("• %s: %d\n", reason, s.Failures[dto.FailureReason(reason)]))
		}
	}

	if s.Error != "" {
		b.WriteString(fmt.Sprintf("\n🛑 *Error:* %s\n", s.Error))
	}

	return b.String()
}

// SplitMessage breaks text on line boundaries into chunks no longer than maxLen bytes.
// A single line longer than maxLen is cut as is.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, line[:maxLen])
			line = line[maxLen:]
		}
		if current.Len()+len(line) > maxLen {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
