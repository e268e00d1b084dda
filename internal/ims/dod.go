package ims

import (
	"strings"

	"scrumgame/internal/domain"
)

// FormatDoD renders Definition-of-Done confirmations as a markdown comment.
func FormatDoD(states []domain.DoDConfirmState) string {
	var b strings.Builder
	b.WriteString("**Definition of Done**\n")
	if len(states) == 0 {
		b.WriteString("\n_No items confirmed._\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, s := range states {
		if s.Checked {
			b.WriteString("- [x] ")
		} else {
			b.WriteString("- [ ] ")
		}
		b.WriteString(s.Item)
		if s.Explanation != "" {
			b.WriteString(": ")
			b.WriteString(s.Explanation)
		}
		b.WriteString("\n")
	}
	return b.String()
}
