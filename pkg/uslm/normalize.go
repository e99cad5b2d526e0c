package uslm

import (
	"strings"
	"unicode"
)

const identifierRoot = "/us/usc/"

// NormalizeNumber strips leading zeros from a "digits + optional letter
// suffix" value ("0101" -> "101", "007A" -> "7a") and normalizes en/em
// dashes to plain hyphens. Values that do not fit the pattern are returned
// with only the dash normalization applied.
func NormalizeNumber(value string) string {
	var digits, suffix strings.Builder

	rest := value
	sawNonzero := false
	hasDigit := false
	for len(rest) > 0 {
		c := rest[0]
		if c < '0' || c > '9' {
			break
		}
		hasDigit = true
		if c != '0' {
			sawNonzero = true
		}
		if sawNonzero || c != '0' {
			digits.WriteByte(c)
		}
		rest = rest[1:]
	}

	if digits.Len() == 0 && hasDigit {
		// All zeros: keep a single zero.
		digits.WriteByte('0')
	}
	if digits.Len() == 0 {
		return normalizeDashes(value)
	}

	for _, r := range rest {
		if r >= 'a' && r <= 'z' {
			suffix.WriteRune(r)
		} else if r >= 'A' && r <= 'Z' {
			suffix.WriteRune(unicode.ToLower(r))
		} else {
			return normalizeDashes(value)
		}
	}

	return normalizeDashes(digits.String() + suffix.String())
}

func normalizeDashes(s string) string {
	s = strings.ReplaceAll(s, "–", "-")
	return strings.ReplaceAll(s, "—", "-")
}

// normalizeWhitespace trims every line, drops blank lines, and rejoins the
// remainder with blank-line separators. Applied uniformly to headings,
// bodies, and note text so fixtures and comparisons stay stable.
func normalizeWhitespace(s string) string {
	if s == "" {
		return ""
	}
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n\n"))
}

// parseTitleFromIdentifier extracts the title number from a structured
// identifier like "/us/usc/t42/ch21".
func parseTitleFromIdentifier(ident string) (string, bool) {
	if !strings.HasPrefix(ident, identifierRoot) {
		return "", false
	}
	rest := strings.Trim(ident[len(identifierRoot):], "/")
	for _, part := range strings.Split(rest, "/") {
		if len(part) > 1 && part[0] == 't' && isASCIIDigit(part[1]) {
			return NormalizeNumber(part[1:]), true
		}
	}
	return "", false
}

// parseSectionFromIdentifier extracts the section number from a structured
// identifier like "/us/usc/t42/ch21/s1983".
func parseSectionFromIdentifier(ident string) (string, bool) {
	rest := strings.Trim(strings.ReplaceAll(ident, identifierRoot, ""), "/")
	parts := strings.Split(rest, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if len(part) > 1 && part[0] == 's' && isASCIIDigit(part[1]) {
			return NormalizeNumber(part[1:]), true
		}
	}
	return "", false
}

// parseLevelNumFromIdentifier extracts a level's display number from the
// structured identifier path segment carrying that kind's prefix
// ("/us/usc/t10/stA/ptI" with kind part -> "I").
func parseLevelNumFromIdentifier(ident string, kind LevelKind) (string, bool) {
	rest := strings.Trim(strings.ReplaceAll(ident, identifierRoot, ""), "/")
	prefix := levelPrefixes[kind]
	if prefix == "" {
		return "", false
	}

	for _, part := range strings.Split(rest, "/") {
		if !strings.HasPrefix(part, prefix) {
			continue
		}
		numPart := part[len(prefix):]
		if numPart == "" || !isASCIIAlnum(numPart[0]) {
			continue
		}

		// A segment like "sch1" also starts with a shorter prefix's
		// letters; skip when a longer known prefix matches this segment.
		longer := false
		for otherKind, otherPrefix := range levelPrefixes {
			if otherKind != kind &&
				strings.HasPrefix(otherPrefix, prefix) &&
				len(otherPrefix) > len(prefix) &&
				strings.HasPrefix(part, otherPrefix) {
				longer = true
				break
			}
		}
		if !longer {
			return NormalizeNumber(numPart), true
		}
	}
	return "", false
}

// numFromText recovers a display number from numbering element text like
// "§ 1983." or "CHAPTER 21—".
func numFromText(text string) (string, bool) {
	trimmed := normalizeWhitespace(text)
	if trimmed == "" {
		return "", false
	}

	if rest, ok := strings.CutPrefix(trimmed, "§"); ok {
		fields := strings.Fields(rest)
		if len(fields) > 0 {
			if token := trimNonAlnum(fields[0]); token != "" {
				return NormalizeNumber(token), true
			}
		}
	}

	fields := strings.Fields(trimmed)
	if len(fields) > 0 {
		if candidate := trimNonAlnum(fields[len(fields)-1]); candidate != "" {
			return NormalizeNumber(candidate), true
		}
	}

	return "", false
}

// trimNonAlnum strips punctuation from both ends of a token, keeping
// interior characters (so "1437f–1" survives while "21—" loses its dash).
func trimNonAlnum(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !isAlnumRune(r)
	})
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isASCIIAlnum(b byte) bool {
	return isASCIIDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlnumRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
