package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxConsoleValueRunes bounds one rendered console value; generated text
// and prompts can run to thousands of characters.
const maxConsoleValueRunes = 240

const redacted = "[redacted]"

var secretKeys = map[string]struct{}{
	"api_key":       {},
	"token":         {},
	"api_token":     {},
	"authorization": {},
}

// isSecretKey reports whether a (possibly dotted) attribute key names a
// credential.
func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(clip(err.Error()))
		}
		return quoteIfNeeded(clip(fmt.Sprint(v.Any())))
	default:
		return quoteIfNeeded(clip(v.String()))
	}
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxConsoleValueRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxConsoleValueRunes]) + "…"
}

func quoteIfNeeded(s string) string {
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
