package workspace

import (
	"fmt"
	"strings"
)

// Separator splits namespaces in store keys.
const Separator = "."

// Key namespaces
const (
	settingsPrefix = "settings" + Separator
	metaPrefix     = "meta" + Separator
	historyKey     = "history"
)

var keyEscaper = strings.NewReplacer("%", "%25", Separator, "%2E")

// EscapeKey makes path safe to embed in a store key. "%" is escaped as well
// as the separator so that the mapping stays reversible for every input.
func EscapeKey(path string) string {
	return keyEscaper.Replace(path)
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(escaped string) (string, error) {
	if !strings.Contains(escaped, "%") {
		return escaped, nil
	}
	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(escaped) {
			return "", fmt.Errorf("%w: truncated escape in %q", ErrInvalidKey, escaped)
		}
		switch strings.ToUpper(escaped[i+1 : i+3]) {
		case "25":
			b.WriteByte('%')
		case "2E":
			b.WriteByte('.')
		default:
			return "", fmt.Errorf("%w: unknown escape %q in %q", ErrInvalidKey, escaped[i:i+3], escaped)
		}
		i += 2
	}
	return b.String(), nil
}

func metaKey(path string) string {
	return metaPrefix + EscapeKey(path)
}

func settingKey(name string) string {
	return settingsPrefix + EscapeKey(name)
}
