package contextwindow

import (
	"fmt"
	"strings"

	"github.com/contextforge/contextforge/rag/types"
)

const systemPreamble = `You are a precise question answering system. Answer the user's question using the provided context information.

Instructions:
1. Answer accurately, based on the context information.
2. Do not speculate about content missing from the context; say "the provided information does not cover this" instead.
3. Integrate information from multiple documents into a comprehensive answer.
4. When several sources contribute, say which ones.
5. Answer in clear, natural language.`

// RenderPrompt turns a context window into the final prompt string. Pure:
// fully determined by its input, no side effects.
func RenderPrompt(window types.ContextWindow) string {
	var b strings.Builder
	b.WriteString(systemPreamble)

	if len(window.ConversationHistory) > 0 {
		b.WriteString("\n\nConversation history:\n")
		b.WriteString(strings.Join(window.ConversationHistory, "\n"))
	}

	b.WriteString("\n\nContext information:\n")
	for i, doc := range window.Documents {
		fmt.Fprintf(&b, "\n[Document %d]", i+1)
		if title, ok := doc.Metadata["title"].(string); ok && title != "" {
			fmt.Fprintf(&b, " Title: %s", title)
		}
		if source, ok := doc.Metadata["source"].(string); ok && source != "" {
			fmt.Fprintf(&b, " Source: %s", source)
		}
		fmt.Fprintf(&b, "\nContent: %s\n", doc.Content)
	}

	fmt.Fprintf(&b, "\n\nQuestion: %s", window.Query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
