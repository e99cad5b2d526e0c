// Package crossref extracts statutory cross-reference mentions from US Code
// section text. It tokenizes the text once and runs a small recursive
// descent grammar over the token stream, recognizing "42 U.S.C. 1983" style
// citations, "section 552 of title 5" phrases, and qualifier chains like
// "subsection (a) of section 1001". Each mention carries the byte offset
// and length of the section number it was parsed from, so callers can
// highlight or link the exact span in the original text.
package crossref

import (
	"regexp"
	"strings"
)

// Mention is one extracted cross-reference. TitleNum and Link are empty
// when the citation names no title and the caller supplied no default.
type Mention struct {
	Section  string `json:"section"`
	TitleNum string `json:"titleNum,omitempty"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	Link     string `json:"link,omitempty"`
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokSectionNumber
	tokTitleNumber
	tokDesignator
	tokPunct
)

// token is one lexeme. start/end are byte offsets into the scanned text,
// meaningful only for number tokens.
type token struct {
	kind  tokenKind
	value string
	start int
	end   int
}

// mention is an in-flight reference before link construction.
type mention struct {
	section  string
	titleNum string
	offset   int
	length   int
}

// target is a single section or an inclusive range of two endpoints.
type target struct {
	start mention
	end   *mention
}

var (
	tokenRE         = regexp.MustCompile(`\d+[a-zA-Z]*(?:-\d+)?|\([A-Za-z0-9ivxIVX]+\)|U\.?S\.?C\.?|[A-Za-z]+(?:/[A-Za-z]+)?|[,.;:§]`)
	titleNumberRE   = regexp.MustCompile(`^\d+$`)
	sectionNumberRE = regexp.MustCompile(`^\d+[a-zA-Z]*(?:-\d+)?$`)
	designatorRE    = regexp.MustCompile(`^\(([A-Za-z0-9ivxIVX]+)\)$`)
)

// qualifierKeywords maps singular and plural forms to the qualifier type.
var qualifierKeywords = map[string]string{
	"subsection":    "subsection",
	"subsections":   "subsection",
	"subdivision":   "subdivision",
	"subdivisions":  "subdivision",
	"paragraph":     "paragraph",
	"paragraphs":    "paragraph",
	"subparagraph":  "subparagraph",
	"subparagraphs": "subparagraph",
	"clause":        "clause",
	"clauses":       "clause",
}

var sectionKeywords = map[string]bool{
	"section":  true,
	"sections": true,
	"sec":      true,
	"secs":     true,
}

var separatorWords = map[string]bool{
	"and":    true,
	"or":     true,
	"and/or": true,
}

// Extract scans text for statutory cross-references. defaultTitle is the
// title number attributed to citations that do not name one; pass "" when
// the surrounding title is unknown.
func Extract(text, defaultTitle string) []Mention {
	tokens := tokenize(text)
	var refs []Mention
	index := 0

	for index < len(tokens) {
		tok := tokens[index]

		if tok.kind == tokTitleNumber {
			if parsed, next, ok := parseTitleUSC(tokens, index); ok {
				refs = append(refs, parsed...)
				index = next
				continue
			}
		}

		if isQualifierKeyword(tok) || isSectionKeyword(tok) {
			if parsed, next, ok := parseReference(tokens, index, defaultTitle); ok {
				refs = append(refs, parsed...)
				index = next
				continue
			}
		}

		index++
	}

	return dedupe(refs)
}

func tokenize(text string) []token {
	var tokens []token
	for _, loc := range tokenRE.FindAllStringIndex(text, -1) {
		raw := text[loc[0]:loc[1]]

		if raw == "§" {
			tokens = append(tokens, token{kind: tokWord, value: "section"})
			continue
		}

		stripped := strings.ReplaceAll(strings.ToLower(raw), ".", "")
		if stripped == "usc" {
			tokens = append(tokens, token{kind: tokWord, value: "usc"})
			continue
		}

		if titleNumberRE.MatchString(raw) {
			// Bare digits: title or section, decided by position.
			tokens = append(tokens, token{kind: tokTitleNumber, value: raw, start: loc[0], end: loc[1]})
			continue
		}
		if sectionNumberRE.MatchString(raw) {
			tokens = append(tokens, token{kind: tokSectionNumber, value: strings.ToLower(raw), start: loc[0], end: loc[1]})
			continue
		}
		if m := designatorRE.FindStringSubmatch(raw); m != nil {
			tokens = append(tokens, token{kind: tokDesignator, value: m[1]})
			continue
		}
		if len(raw) == 1 && strings.ContainsAny(raw, ",;.:") {
			tokens = append(tokens, token{kind: tokPunct, value: raw})
			continue
		}

		tokens = append(tokens, token{kind: tokWord, value: strings.ToLower(raw)})
	}
	return tokens
}

func isQualifierKeyword(t token) bool {
	if t.kind != tokWord {
		return false
	}
	_, ok := qualifierKeywords[t.value]
	return ok
}

func isSectionKeyword(t token) bool {
	return t.kind == tokWord && sectionKeywords[t.value]
}

func isWord(tokens []token, index int, value string) bool {
	return index < len(tokens) && tokens[index].kind == tokWord && tokens[index].value == value
}

func isSeparator(t token) bool {
	switch t.kind {
	case tokPunct:
		return t.value == "," || t.value == ";"
	case tokWord:
		return separatorWords[t.value]
	}
	return false
}

// parseTitleUSC recognizes "42 U.S.C. 1983" and list forms like
// "42 U.S.C. 2000e, 2000e-2".
func parseTitleUSC(tokens []token, index int) ([]Mention, int, bool) {
	if index >= len(tokens) || tokens[index].kind != tokTitleNumber {
		return nil, 0, false
	}
	titleNum := tokens[index].value

	if index+1 >= len(tokens) || !isWord(tokens, index+1, "usc") {
		return nil, 0, false
	}

	items, next, ok := parseSectionList(tokens, index+2, true, titleNum)
	if !ok {
		return nil, 0, false
	}
	return buildMentions(items), next, true
}

// parseReference recognizes "section 552 of title 5" and qualifier forms
// like "subsection (a) of section 1001".
func parseReference(tokens []token, index int, defaultTitle string) ([]Mention, int, bool) {
	if index >= len(tokens) {
		return nil, 0, false
	}

	if isQualifierKeyword(tokens[index]) {
		next, ok := parseQualifierChainList(tokens, index)
		if !ok {
			return nil, 0, false
		}
		if !isWord(tokens, next, "of") {
			return nil, 0, false
		}
		next++

		if next >= len(tokens) || !isSectionKeyword(tokens[next]) {
			return nil, 0, false
		}
		keyword := tokens[next].value
		allowMultiple := keyword == "sections" || keyword == "secs"

		items, after, ok := parseSectionListWithTitle(tokens, next+1, allowMultiple, defaultTitle)
		if !ok {
			return nil, 0, false
		}
		return buildMentions(items), after, true
	}

	if isSectionKeyword(tokens[index]) {
		items, after, ok := parseSectionListWithTitle(tokens, index+1, true, defaultTitle)
		if !ok {
			return nil, 0, false
		}
		return buildMentions(items), after, true
	}

	return nil, 0, false
}

// parseQualifierChainList consumes "subsection (a), (b) and paragraph (1)
// of clause (ii)" style sequences and reports where they end.
func parseQualifierChainList(tokens []token, index int) (int, bool) {
	next, ok := parseQualifierChain(tokens, index)
	if !ok {
		return 0, false
	}

	for {
		sep, ok := consumeSeparators(tokens, next)
		if !ok {
			break
		}
		if sep >= len(tokens) || !isQualifierKeyword(tokens[sep]) {
			break
		}
		chainNext, ok := parseQualifierChain(tokens, sep)
		if !ok {
			break
		}
		next = chainNext
	}

	return next, true
}

func parseQualifierChain(tokens []token, index int) (int, bool) {
	next, ok := parseQualifier(tokens, index)
	if !ok {
		return 0, false
	}

	for isWord(tokens, next, "of") {
		if next+1 >= len(tokens) || !isQualifierKeyword(tokens[next+1]) {
			break
		}
		qualNext, ok := parseQualifier(tokens, next+1)
		if !ok {
			break
		}
		next = qualNext
	}

	return next, true
}

func parseQualifier(tokens []token, index int) (int, bool) {
	if index >= len(tokens) || !isQualifierKeyword(tokens[index]) {
		return 0, false
	}
	return parseDesignatorList(tokens, index+1)
}

func parseDesignatorList(tokens []token, index int) (int, bool) {
	if index >= len(tokens) || tokens[index].kind != tokDesignator {
		return 0, false
	}
	next := index + 1

	for {
		sep, ok := consumeSeparators(tokens, next)
		if !ok {
			break
		}
		if sep >= len(tokens) || tokens[sep].kind != tokDesignator {
			break
		}
		next = sep + 1
	}

	return next, true
}

// parseSectionListWithTitle parses a section list and then looks for a
// trailing "of title N", which retroactively overrides the title on every
// mention in the list. "of this title" deliberately does not match, so the
// default stands.
func parseSectionListWithTitle(tokens []token, index int, allowMultiple bool, defaultTitle string) ([]target, int, bool) {
	items, next, ok := parseSectionList(tokens, index, allowMultiple, defaultTitle)
	if !ok {
		return nil, 0, false
	}

	if isWord(tokens, next, "of") && isWord(tokens, next+1, "title") &&
		next+2 < len(tokens) && tokens[next+2].kind == tokTitleNumber {
		titleNum := tokens[next+2].value
		next += 3
		for i := range items {
			items[i].start.titleNum = titleNum
			if items[i].end != nil {
				items[i].end.titleNum = titleNum
			}
		}
	}

	return items, next, true
}

func parseSectionList(tokens []token, index int, allowMultiple bool, titleNum string) ([]target, int, bool) {
	first, next, ok := parseSectionItem(tokens, index, titleNum)
	if !ok {
		return nil, 0, false
	}
	items := []target{first}

	if !allowMultiple {
		return items, next, true
	}

	for {
		sep, ok := consumeSeparators(tokens, next)
		if !ok {
			break
		}
		if sep < len(tokens) && isSectionKeyword(tokens[sep]) {
			sep++
		}

		// "42 U.S.C." starting here belongs to the next citation.
		if sep+1 < len(tokens) && tokens[sep].kind == tokTitleNumber && isWord(tokens, sep+1, "usc") {
			break
		}

		item, itemNext, ok := parseSectionItem(tokens, sep, titleNum)
		if !ok {
			break
		}
		items = append(items, item)
		next = itemNext
	}

	return items, next, true
}

// parseSectionItem parses one section number or an "A to B" / "A through B"
// range, optionally suffixed ", inclusive".
func parseSectionItem(tokens []token, index int, titleNum string) (target, int, bool) {
	value, start, end, ok := numberToken(tokens, index)
	if !ok {
		return target{}, 0, false
	}

	next := index + 1
	startMention := mention{section: value, titleNum: titleNum, offset: start, length: end - start}

	if isWord(tokens, next, "to") || isWord(tokens, next, "through") {
		endValue, endStart, endEnd, ok := numberToken(tokens, next+1)
		if !ok {
			return target{}, 0, false
		}
		next += 2

		if next < len(tokens) && tokens[next].kind == tokPunct && tokens[next].value == "," {
			if isWord(tokens, next+1, "inclusive") {
				next += 2
			}
		} else if isWord(tokens, next, "inclusive") {
			next++
		}

		endMention := mention{section: endValue, titleNum: titleNum, offset: endStart, length: endEnd - endStart}
		return target{start: startMention, end: &endMention}, next, true
	}

	return target{start: startMention}, next, true
}

// numberToken accepts either number class, since bare digits are tokenized
// as title numbers but read as section numbers in section position.
func numberToken(tokens []token, index int) (value string, start, end int, ok bool) {
	if index >= len(tokens) {
		return "", 0, 0, false
	}
	t := tokens[index]
	if t.kind != tokTitleNumber && t.kind != tokSectionNumber {
		return "", 0, 0, false
	}
	return t.value, t.start, t.end, true
}

// consumeSeparators skips one or more commas, semicolons, and joining
// words. ok is false when nothing was consumed.
func consumeSeparators(tokens []token, index int) (int, bool) {
	next := index
	for next < len(tokens) && isSeparator(tokens[next]) {
		next++
	}
	return next, next > index
}

func buildMentions(items []target) []Mention {
	var refs []Mention
	for _, item := range items {
		refs = append(refs, buildMention(item.start))
		if item.end != nil {
			refs = append(refs, buildMention(*item.end))
		}
	}
	return refs
}

func buildMention(m mention) Mention {
	return Mention{
		Section:  m.section,
		TitleNum: m.titleNum,
		Offset:   m.offset,
		Length:   m.length,
		Link:     SectionLink(m.titleNum, m.section),
	}
}

// SectionLink builds the canonical slug for a section, or "" when the
// title is unknown.
func SectionLink(titleNum, section string) string {
	if titleNum == "" {
		return ""
	}
	return "/statutes/usc/section/" + titleNum + "/" + section
}

func dedupe(refs []Mention) []Mention {
	seen := make(map[Mention]bool, len(refs))
	result := make([]Mention, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		result = append(result, r)
	}
	return result
}
