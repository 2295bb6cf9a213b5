// Package prompt formats the dual-context review prompt.
package prompt

import (
	"strings"

	"github.com/hyperjump/minaoshi/internal/models"
)

const (
	header = "\nYou are reviewing a newly written code snippet in a software project. " +
		"Use the existing patterns from the same file (local context) and from the rest of the project " +
		"or similar repositories (global context) to assess it.\n\n### New Code\n"
	localHeader  = "\n\n### Local Context (Same File)\n"
	globalHeader = "\n### Global Context (Other Files or Repos)\n"
	instruction  = "\n### Review the new code based on the context above. " +
		"Highlight structure, bugs, and improvements. Keep comments minimal but insightful (max 5)."
)

// SystemMessage is sent alongside the prompt to chat models.
const SystemMessage = "You are a helpful software engineer providing feedback on code."

// Assemble builds the review prompt. The output depends only on its arguments.
func Assemble(newCode string, local, global []models.Match) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString(newCode)
	b.WriteString(localHeader)
	writeMatches(&b, local)
	b.WriteString(globalHeader)
	writeMatches(&b, global)
	b.WriteString(instruction)
	return b.String()
}

func writeMatches(b *strings.Builder, matches []models.Match) {
	for _, m := range matches {
		b.WriteString("\nFile: ")
		b.WriteString(m.Snippet.File)
		b.WriteString("\n")
		b.WriteString(m.Snippet.Code)
		b.WriteString("\n")
	}
}
