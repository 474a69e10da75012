package distiller

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pragnyanramtha/longmem/core"
)

type rawAction struct {
	Action     string  `json:"action"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type rawDelta struct {
	Actions []rawAction `json:"actions"`
}

// parseDelta decodes raw into a core.Delta, first trying it verbatim, then
// stripping a markdown code fence, then repairing a truncated response with
// repairTruncatedJSON. Text after the first complete JSON value of a
// candidate is ignored. Any action naming an invalid
// MemoryType or Action string is dropped rather than failing the whole
// delta, since one malformed entry shouldn't discard the rest.
func parseDelta(raw string) (core.Delta, error) {
	candidates := []string{raw, stripCodeFence(raw)}
	if repaired, ok := repairTruncatedJSON(stripCodeFence(raw)); ok {
		candidates = append(candidates, repaired)
	}

	var lastErr error
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var rd rawDelta
		if err := json.NewDecoder(strings.NewReader(candidate)).Decode(&rd); err != nil {
			lastErr = err
			continue
		}
		return toDelta(rd), nil
	}
	return core.Delta{}, fmt.Errorf("no candidate parsed: %w", lastErr)
}

func toDelta(rd rawDelta) core.Delta {
	delta := core.Delta{Actions: make([]core.DistilledMemory, 0, len(rd.Actions))}
	for _, a := range rd.Actions {
		action := core.Action(a.Action)
		if !core.ValidAction(action) {
			continue
		}
		confidence := a.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = core.DefaultConfidence
		}
		dm := core.DistilledMemory{
			Action:     action,
			TargetID:   a.TargetID,
			Category:   a.Category,
			Key:        a.Key,
			Value:      a.Value,
			Confidence: confidence,
		}
		if mt := core.MemoryType(a.Type); core.ValidMemoryType(mt) {
			dm.Type = mt
		}
		delta.Actions = append(delta.Actions, dm)
	}
	return delta
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if last := len(lines) - 1; last >= 0 && strings.TrimSpace(lines[last]) == "```" {
		lines = lines[:last]
	}
	return strings.Join(lines, "\n")
}

// openStack scans s for unmatched '{'/'[' outside of string literals, along
// with the index of the last comma seen outside a string literal, the index
// of the last comma that separates array elements, and whether s ends mid
// string literal.
func openStack(s string) (stack []byte, lastSafeCut, lastElemCut int, inString bool) {
	lastSafeCut, lastElemCut = -1, -1
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) > 0 && stack[len(stack)-1] == '{' {
				stack = stack[:len(stack)-1]
			}
		case ']':
			if len(stack) > 0 && stack[len(stack)-1] == '[' {
				stack = stack[:len(stack)-1]
			}
		case ',':
			if !inString {
				lastSafeCut = i
				if len(stack) > 0 && stack[len(stack)-1] == '[' {
					lastElemCut = i
				}
			}
		}
	}
	return stack, lastSafeCut, lastElemCut, inString
}

// repairTruncatedJSON handles a response cut off mid-object: it walks the
// string tracking bracket depth outside of string literals and appends the
// closing brackets needed to balance what remains. When s ends inside a
// string literal, it first cuts back to the last comma between array
// elements (dropping the partial last action), or, if there is none, to the
// last comma outside a string. A partial token outside a string literal (a
// cut-off number, or a key with no value) is not removed.
func repairTruncatedJSON(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	stack, lastSafeCut, lastElemCut, inString := openStack(s)
	if len(stack) == 0 {
		return s, false // already balanced; nothing to repair
	}

	if inString {
		// Cut the dangling partial string and whatever followed it, then
		// recompute the stack against the shorter prefix: the cut may have
		// removed opens that the original scan counted.
		cut := lastElemCut
		if cut < 0 {
			cut = lastSafeCut
		}
		if cut < 0 {
			return "", false
		}
		s = s[:cut]
		stack, _, _, _ = openStack(s)
		if len(stack) == 0 {
			return s, true
		}
	}

	var closers strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			closers.WriteByte('}')
		} else {
			closers.WriteByte(']')
		}
	}

	repaired := strings.TrimRight(s, ", \n\t")
	repaired += closers.String()
	return repaired, true
}
