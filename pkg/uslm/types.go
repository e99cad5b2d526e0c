// Package uslm parses United States Code XML documents in the USLM schema
// into a stream of structural events: the document title, its organizational
// levels (subtitles, chapters, parts, ...), and its sections with classified
// content blocks.
//
// The parser is single-pass and chunk-fed: callers push byte chunks with
// Feed and collect events with Drain, or use the Parse / ParseStream
// convenience wrappers over an io.Reader. Memory is bounded by the nesting
// depth of the document, not its size.
package uslm

// LevelKind identifies one of the fixed organizational level kinds the
// US Code uses above the section.
type LevelKind string

const (
	LevelTitle       LevelKind = "title"
	LevelSubtitle    LevelKind = "subtitle"
	LevelChapter     LevelKind = "chapter"
	LevelSubchapter  LevelKind = "subchapter"
	LevelPart        LevelKind = "part"
	LevelSubpart     LevelKind = "subpart"
	LevelDivision    LevelKind = "division"
	LevelSubdivision LevelKind = "subdivision"
)

// levelHierarchy is the canonical, schema-wide ordering of level kinds.
// A kind's position here is its LevelIndex, independent of which kinds a
// given document actually contains.
var levelHierarchy = []LevelKind{
	LevelTitle,
	LevelSubtitle,
	LevelChapter,
	LevelSubchapter,
	LevelPart,
	LevelSubpart,
	LevelDivision,
	LevelSubdivision,
}

// levelPrefixes maps each kind to the identifier prefix the USLM schema
// uses in structured identifier paths (/us/usc/t42/ch21 etc.) and that we
// reuse when building deterministic level identifiers like "42-ch21".
var levelPrefixes = map[LevelKind]string{
	LevelTitle:       "t",
	LevelSubtitle:    "st",
	LevelChapter:     "ch",
	LevelSubchapter:  "sch",
	LevelPart:        "pt",
	LevelSubpart:     "spt",
	LevelDivision:    "d",
	LevelSubdivision: "sd",
}

// LevelIndex returns the canonical rank of a level kind, or -1 for an
// unknown kind.
func LevelIndex(kind LevelKind) int {
	for i, k := range levelHierarchy {
		if k == kind {
			return i
		}
	}
	return -1
}

// SectionLevelIndex returns the rank assigned to sections, one past the
// deepest organizational level.
func SectionLevelIndex() int {
	return len(levelHierarchy)
}

// levelKindForTag reports whether a tag opens an organizational level below
// the title, and which kind.
func levelKindForTag(tag string) (LevelKind, bool) {
	kind := LevelKind(tag)
	if kind == LevelTitle {
		return "", false
	}
	for _, k := range levelHierarchy {
		if k == kind {
			return kind, true
		}
	}
	return "", false
}

// Level is one emitted organizational level.
type Level struct {
	Kind             LevelKind `json:"kind"`
	LevelIndex       int       `json:"levelIndex"`
	Identifier       string    `json:"identifier"`
	Num              string    `json:"num"`
	Heading          string    `json:"heading"`
	TitleNum         string    `json:"titleNum"`
	ParentIdentifier string    `json:"parentIdentifier"`
}

// ParentRefKind distinguishes the two ways a section attaches to the
// hierarchy.
type ParentRefKind string

const (
	ParentTitle ParentRefKind = "title"
	ParentLevel ParentRefKind = "level"
)

// ParentRef is a resolved reference to a section's parent: either the
// document title itself or a specific organizational level that has already
// been emitted.
type ParentRef struct {
	Kind       ParentRefKind `json:"kind"`
	TitleNum   string        `json:"titleNum,omitempty"`
	LevelKind  LevelKind     `json:"levelKind,omitempty"`
	Identifier string        `json:"identifier,omitempty"`
}

// Section is one emitted statutory section with its classified content.
type Section struct {
	// SectionKey is "{title}:{sectionNum}" and is unique within a parse.
	SectionKey string `json:"sectionKey"`
	TitleNum   string `json:"titleNum"`
	// SectionNum is the base number, suffixed "-2", "-3", ... when the
	// same base number recurs within the title.
	SectionNum   string    `json:"sectionNum"`
	Heading      string    `json:"heading"`
	Body         string    `json:"body"`
	HistoryShort string    `json:"historyShort"`
	HistoryLong  string    `json:"historyLong"`
	Citations    string    `json:"citations"`
	Path         string    `json:"path"`
	ParentRef    ParentRef `json:"parentRef"`
	// BracketedNum marks sections whose numbering text was bracketed in
	// the source ("[5]"), which the Code uses for repealed or renumbered
	// material.
	BracketedNum bool `json:"bracketedNum,omitempty"`
}

// Event is one structural event in document order. Exactly one of the
// pointer fields is non-nil per event kind.
type Event struct {
	Kind    EventKind `json:"kind"`
	Title   *Title    `json:"title,omitempty"`
	Level   *Level    `json:"level,omitempty"`
	Section *Section  `json:"section,omitempty"`
}

// EventKind tags the variant of an Event.
type EventKind string

const (
	EventTitle   EventKind = "title"
	EventLevel   EventKind = "level"
	EventSection EventKind = "section"
)

// Title is the document-root event, emitted at most once per parse.
type Title struct {
	TitleNum  string `json:"titleNum"`
	TitleName string `json:"titleName"`
}

// Result collects the output of a whole-document parse.
type Result struct {
	TitleNum  string
	TitleName string
	Levels    []Level
	Sections  []Section
}

// SectionPath builds the canonical slug for a section.
func SectionPath(titleNum, sectionNum string) string {
	return "/statutes/usc/section/" + titleNum + "/" + sectionNum
}
