package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const snippetRunes = 160

// DecodeLLMJSON unmarshals a model's JSON reply into target. Replies wrapped
// in a markdown fence or surrounded by chatter are retried on the outermost
// object or array they contain.
func DecodeLLMJSON(content string, target any) error {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return errors.New("empty payload")
	}
	err := json.Unmarshal([]byte(raw), target)
	if err == nil {
		return nil
	}
	inner := extractJSON(raw)
	if inner == "" || inner == raw {
		return fmt.Errorf("%w (payload snippet: %s)", err, summarizePayloadSnippet(raw))
	}
	if err := json.Unmarshal([]byte(inner), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, summarizePayloadSnippet(inner))
	}
	return nil
}

// StripCodeFence removes a surrounding markdown code fence, and its language
// tag, from generated prose.
func StripCodeFence(content string) string {
	text := strings.TrimSpace(content)
	rest, fenced := strings.CutPrefix(text, "```")
	if !fenced {
		return text
	}
	rest = strings.TrimLeft(rest, " \t\r\n")
	if tag, body, found := strings.Cut(rest, "\n"); found && !strings.ContainsAny(tag, " {[") {
		rest = body
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func extractJSON(content string) string {
	text := StripCodeFence(content)
	if text == "" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return text
	}
	for _, delims := range []string{"{}", "[]"} {
		start := strings.IndexByte(text, delims[0])
		end := strings.LastIndexByte(text, delims[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}

// summarizePayloadSnippet flattens whitespace and clips a payload for
// inclusion in error messages.
func summarizePayloadSnippet(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	if flat == "" {
		return "<empty>"
	}
	if runes := []rune(flat); len(runes) > snippetRunes {
		return string(runes[:snippetRunes]) + "..."
	}
	return flat
}
