package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pragnyanramtha/longmem/core"
)

// composeSystemPrompt builds the static template, a profile section, and a
// per-query memories section formatted as "- [type] key: value" lines.
func composeSystemPrompt(template string, profile map[string]string, results []core.RetrievalResult) string {
	var b strings.Builder
	b.WriteString(template)

	if len(profile) > 0 {
		b.WriteString("\n\nWhat you know about the user:\n")
		keys := make([]string, 0, len(profile))
		for k := range profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, profile[k])
		}
	}

	if len(results) > 0 {
		b.WriteString("\nRelevant to this message:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", r.Memory.Type, r.Memory.Key, r.Memory.Value)
		}
	}

	return b.String()
}
