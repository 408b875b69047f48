package telegram

import (
	"errors"
	"strconv"
	"strings"
)

var (
	ErrLineNotRecognized = errors.New("line not recognized")
	ErrMalformedNumber   = errors.New("malformed number")
)

// Extract decodes the value of `<identifier>(<number>)` or
// `<identifier>(<number>*<unit>)` at the start of line.
// Any text after the closing parenthesis is ignored.
func Extract(line, identifier string) (float64, bool) {
	v, err := parseValue(line, identifier)
	return v, err == nil
}

func parseValue(line, identifier string) (float64, error) {
	rest, ok := strings.CutPrefix(line, identifier)
	if !ok {
		return 0, ErrLineNotRecognized
	}
	rest, ok = strings.CutPrefix(rest, "(")
	if !ok {
		return 0, ErrLineNotRecognized
	}

	n := scanFloat(rest)
	if n == 0 {
		return 0, ErrMalformedNumber
	}
	value, err := strconv.ParseFloat(rest[:n], 64)
	if err != nil {
		// Out of range literals land here.
		return 0, ErrMalformedNumber
	}

	rest = rest[n:]
	if unit, ok := strings.CutPrefix(rest, "*"); ok {
		end := strings.IndexByte(unit, ')')
		if end < 0 {
			return 0, ErrMalformedNumber
		}
		rest = unit[end:]
	}
	if !strings.HasPrefix(rest, ")") {
		return 0, ErrMalformedNumber
	}
	return value, nil
}

// scanFloat returns the length of the decimal literal at the start of s,
// or 0 if there is none. An exponent is only consumed when it has digits.
func scanFloat(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	intDigits := countDigits(s[i:])
	i += intDigits
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		fracDigits = countDigits(s[i+1:])
		if intDigits == 0 && fracDigits == 0 {
			return 0
		}
		i += 1 + fracDigits
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if d := countDigits(s[j:]); d > 0 {
			i = j + d
		}
	}
	return i
}

func countDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
