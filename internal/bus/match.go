package bus

import "strings"

// Patterns are dot-separated topic segments. "*" matches exactly one
// segment; a trailing ">" matches one or more remaining segments.
// Examples: "orders.*.BINANCE", "fills.>", "time".
func compilePattern(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, ErrBadPattern
	}
	segments := strings.Split(pattern, ".")
	for i, segment := range segments {
		if segment == "" {
			return nil, ErrBadPattern
		}
		if segment == ">" && i != len(segments)-1 {
			return nil, ErrBadPattern
		}
	}
	return segments, nil
}

func matchSegments(pattern []string, topic string) bool {
	rest := topic
	for _, segment := range pattern {
		if segment == ">" {
			return rest != ""
		}
		if rest == "" {
			return false
		}
		head := rest
		if idx := strings.IndexByte(rest, '.'); idx >= 0 {
			head, rest = rest[:idx], rest[idx+1:]
		} else {
			rest = ""
		}
		if segment != "*" && segment != head {
			return false
		}
	}
	return rest == ""
}
