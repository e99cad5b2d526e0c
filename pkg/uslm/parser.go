package uslm

import (
	"fmt"
	"io"
	"strings"
)

// levelFrame tracks one open organizational level element.
type levelFrame struct {
	kind      LevelKind
	num       string
	heading   string
	bracketed bool
	ignored   bool
	emitted   bool
	// identifier is filled in when the frame is emitted.
	identifier string
}

// sectionFrame accumulates one open section element.
type sectionFrame struct {
	num          string
	valueAttr    string
	bracketed    bool
	heading      strings.Builder
	body         strings.Builder
	historyShort strings.Builder
	historyLong  []string
	citations    []string
}

// noteFrame accumulates one open note element for routing on close.
type noteFrame struct {
	topic   string
	role    string
	heading string
	body    strings.Builder
}

// captureKind discriminates pending text captures.
type captureKind int

const (
	capIgnore captureKind = iota
	capMetaTitle
	capMainHeading
	capLevelNum
	capLevelHeading
	capSectionNum
	capSectionHeading
	capBodyHeading
	capNoteHeading
)

// capture collects the character data of one num or heading element until
// its close tag.
type capture struct {
	tag   string
	kind  captureKind
	buf   strings.Builder
	level *levelFrame
	note  *noteFrame
}

// bodyTags are the section-content elements whose text is classified as
// body material.
var bodyTags = map[string]bool{
	"content":      true,
	"chapeau":      true,
	"p":            true,
	"subsection":   true,
	"paragraph":    true,
	"subparagraph": true,
	"clause":       true,
	"subclause":    true,
	"item":         true,
	"subitem":      true,
}

// Option configures a Parser.
type Option func(*Parser)

// WithDefaultTitle supplies the title number to use when the document
// carries no structured identifiers.
func WithDefaultTitle(num string) Option {
	return func(p *Parser) { p.defaultTitleNum = num }
}

// Parser is a push-fed USLM structural parser. Feed it byte chunks in any
// split; Drain returns the events produced so far; Close flushes the
// remainder. Output is identical for any chunking of the same input, and
// state is bounded by element nesting depth.
type Parser struct {
	lx      lexer
	pending []Event

	defaultTitleNum string
	titleNum        string
	titleResolved   bool
	titleName       string
	mainHeading     string
	titleEmitted    bool
	inMainTitle     bool
	mainTitleSeen   bool

	tagStack []string
	levels   []*levelFrame
	section  *sectionFrame
	captures []*capture
	notes    []*noteFrame

	metaDepth           int
	noteRegionDepth     int
	quotedContentDepth  int
	sourceCreditDepth   int
	bodyCaptureDepth    int
	ignoredSectionDepth int

	sectionCounts map[string]int
	emittedLevels map[string]bool
}

// NewParser returns a parser ready to accept chunks.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		sectionCounts: make(map[string]int),
		emittedLevels: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.titleNum = p.defaultTitleNum
	return p
}

// Feed appends a chunk of document bytes and advances the state machine as
// far as the complete constructs in the buffer allow.
func (p *Parser) Feed(chunk []byte) {
	p.lx.write(chunk)
	p.pump()
}

// Drain returns the events produced since the last call and clears them.
func (p *Parser) Drain() []Event {
	evs := p.pending
	p.pending = nil
	return evs
}

// Close marks the input complete and returns any remaining events.
// Structures left open by truncated input are dropped, never emitted
// half-built.
func (p *Parser) Close() []Event {
	p.lx.close()
	p.pump()
	return p.Drain()
}

// Parse consumes a whole document from r and collects the results.
func Parse(r io.Reader, opts ...Option) (*Result, error) {
	res := &Result{}
	err := ParseStream(r, func(ev Event) error {
		switch ev.Kind {
		case EventTitle:
			res.TitleNum = ev.Title.TitleNum
			res.TitleName = ev.Title.TitleName
		case EventLevel:
			res.Levels = append(res.Levels, *ev.Level)
		case EventSection:
			res.Sections = append(res.Sections, *ev.Section)
		}
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ParseStream consumes a whole document from r, invoking fn for each event
// in document order. A non-nil error from fn stops the parse.
func ParseStream(r io.Reader, fn func(Event) error, opts ...Option) error {
	p := NewParser(opts...)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.Feed(buf[:n])
			for _, ev := range p.Drain() {
				if fnErr := fn(ev); fnErr != nil {
					return fnErr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
	}
	for _, ev := range p.Close() {
		if fnErr := fn(ev); fnErr != nil {
			return fnErr
		}
	}
	return nil
}

func (p *Parser) pump() {
	for {
		ev, ok := p.lx.next()
		if !ok {
			return
		}
		switch ev.kind {
		case tagEventText:
			p.handleText(ev.text)
		case tagEventOpen:
			parent := ""
			if len(p.tagStack) > 0 {
				parent = p.tagStack[len(p.tagStack)-1]
			}
			p.tagStack = append(p.tagStack, ev.name)
			p.handleOpen(ev.name, parent, ev.attrs)
			if ev.selfClosing {
				p.tagStack = p.tagStack[:len(p.tagStack)-1]
				p.handleClose(ev.name)
			}
		case tagEventClose:
			if len(p.tagStack) > 0 {
				p.tagStack = p.tagStack[:len(p.tagStack)-1]
			}
			p.handleClose(ev.name)
		}
	}
}

func (p *Parser) handleOpen(tag, parent string, attrs map[string]string) {
	if ident := attrs["identifier"]; ident != "" && !p.titleResolved {
		if t, ok := parseTitleFromIdentifier(ident); ok {
			p.titleNum = t
			p.titleResolved = true
		}
	}

	switch {
	case tag == "meta":
		p.metaDepth++

	case p.metaDepth > 0:
		if tag == "title" {
			p.pushCapture(&capture{tag: tag, kind: capMetaTitle})
		}

	case tag == "quotedContent":
		p.quotedContentDepth++

	case tag == "notes":
		p.noteRegionDepth++

	case tag == "note":
		p.noteRegionDepth++
		n := &noteFrame{topic: attrs["topic"], role: attrs["role"]}
		p.notes = append(p.notes, n)

	case tag == "sourceCredit":
		p.sourceCreditDepth++

	case tag == "section":
		p.openSection(attrs)

	case tag == "num":
		p.openNum(parent, attrs)

	case tag == "heading":
		p.openHeading(parent)

	case tag == "title":
		if !p.mainTitleSeen && p.section == nil && len(p.notes) == 0 &&
			p.noteRegionDepth == 0 && p.quotedContentDepth == 0 {
			p.mainTitleSeen = true
			p.inMainTitle = true
		}

	case bodyTags[tag]:
		if p.inBody() {
			p.section.body.WriteString("\n")
		}
		p.bodyCaptureDepth++

	default:
		if kind, ok := levelKindForTag(tag); ok {
			p.openLevel(kind, attrs)
		}
	}
}

func (p *Parser) handleClose(tag string) {
	if len(p.captures) > 0 {
		top := p.captures[len(p.captures)-1]
		if top.tag == tag {
			p.captures = p.captures[:len(p.captures)-1]
			p.finishCapture(top)
			return
		}
	}

	switch {
	case tag == "meta":
		if p.metaDepth > 0 {
			p.metaDepth--
		}

	case p.metaDepth > 0:
		// Still inside metadata; nothing else to track.

	case tag == "quotedContent":
		if p.quotedContentDepth > 0 {
			p.quotedContentDepth--
		}

	case tag == "notes":
		if p.noteRegionDepth > 0 {
			p.noteRegionDepth--
		}

	case tag == "note":
		if p.noteRegionDepth > 0 {
			p.noteRegionDepth--
		}
		if len(p.notes) > 0 {
			n := p.notes[len(p.notes)-1]
			p.notes = p.notes[:len(p.notes)-1]
			p.routeNote(n)
		}

	case tag == "sourceCredit":
		if p.sourceCreditDepth > 0 {
			p.sourceCreditDepth--
		}

	case tag == "section":
		if p.ignoredSectionDepth > 0 {
			p.ignoredSectionDepth--
		} else if p.section != nil {
			p.closeSection()
		}

	case tag == "title":
		// Nested title elements inside notes or quoted text close here
		// too; only the document's own title ends the main region.
		if p.inMainTitle && len(p.notes) == 0 &&
			p.noteRegionDepth == 0 && p.quotedContentDepth == 0 {
			p.inMainTitle = false
			if p.titleNum != "" {
				p.ensureTitleEmitted()
			}
		}

	case bodyTags[tag]:
		if p.inBody() {
			p.section.body.WriteString("\n")
		}
		if p.bodyCaptureDepth > 0 {
			p.bodyCaptureDepth--
		}

	default:
		if kind, ok := levelKindForTag(tag); ok {
			p.closeLevel(kind)
		}
	}
}

func (p *Parser) handleText(text string) {
	if len(p.captures) > 0 {
		top := p.captures[len(p.captures)-1]
		if top.kind != capIgnore {
			top.buf.WriteString(text)
		}
		return
	}
	if p.metaDepth > 0 {
		return
	}
	if len(p.notes) > 0 {
		p.notes[len(p.notes)-1].body.WriteString(text)
		return
	}
	if p.noteRegionDepth > 0 {
		return
	}
	if p.section == nil || p.ignoredSectionDepth > 0 {
		return
	}
	if p.sourceCreditDepth > 0 {
		p.section.historyShort.WriteString(text)
		return
	}
	if p.inBody() {
		p.section.body.WriteString(text)
	}
}

// inBody reports whether character data should be classified as section
// body material right now.
func (p *Parser) inBody() bool {
	return p.section != nil &&
		p.ignoredSectionDepth == 0 &&
		p.bodyCaptureDepth > 0 &&
		p.noteRegionDepth == 0 &&
		p.quotedContentDepth == 0 &&
		p.sourceCreditDepth == 0
}

func (p *Parser) openLevel(kind LevelKind, attrs map[string]string) {
	frame := &levelFrame{
		kind:    kind,
		ignored: p.noteRegionDepth > 0 || p.quotedContentDepth > 0 || p.section != nil,
	}
	if ident := attrs["identifier"]; ident != "" {
		if num, ok := parseLevelNumFromIdentifier(ident, kind); ok {
			frame.num = num
		}
	}
	p.levels = append(p.levels, frame)
}

func (p *Parser) closeLevel(kind LevelKind) {
	if len(p.levels) == 0 {
		return
	}
	frame := p.levels[len(p.levels)-1]
	if frame.kind != kind {
		return
	}
	p.levels = p.levels[:len(p.levels)-1]
	p.emitLevelIfReady(frame)
}

func (p *Parser) openSection(attrs map[string]string) {
	if p.section != nil || p.ignoredSectionDepth > 0 ||
		p.noteRegionDepth > 0 || p.quotedContentDepth > 0 {
		p.ignoredSectionDepth++
		return
	}
	p.emitPendingLevels()
	frame := &sectionFrame{}
	if ident := attrs["identifier"]; ident != "" {
		if num, ok := parseSectionFromIdentifier(ident); ok {
			frame.num = num
		}
	}
	p.section = frame
}

func (p *Parser) closeSection() {
	frame := p.section
	p.section = nil

	num := frame.num
	if num == "" {
		num = NormalizeNumber(frame.valueAttr)
	}
	if num == "" {
		return // unnumbered sections carry nothing addressable
	}

	count := p.sectionCounts[num]
	p.sectionCounts[num] = count + 1
	final := num
	if count > 0 {
		final = fmt.Sprintf("%s-%d", num, count+1)
	}

	heading := normalizeWhitespace(frame.heading.String())
	if frame.bracketed {
		heading = strings.TrimSpace(strings.TrimSuffix(heading, "]"))
	}

	sec := &Section{
		SectionKey:   p.titleNum + ":" + final,
		TitleNum:     p.titleNum,
		SectionNum:   final,
		Heading:      heading,
		Body:         normalizeWhitespace(frame.body.String()),
		HistoryShort: normalizeWhitespace(frame.historyShort.String()),
		HistoryLong:  strings.Join(frame.historyLong, "\n\n"),
		Citations:    strings.Join(frame.citations, "\n\n"),
		Path:         SectionPath(p.titleNum, final),
		ParentRef:    p.currentParentRef(),
		BracketedNum: frame.bracketed,
	}
	p.ensureTitleEmitted()
	p.pending = append(p.pending, Event{Kind: EventSection, Section: sec})
}

// currentParentRef resolves the innermost emitted level, falling back to
// the title itself.
func (p *Parser) currentParentRef() ParentRef {
	for i := len(p.levels) - 1; i >= 0; i-- {
		frame := p.levels[i]
		if frame.emitted && frame.identifier != "" {
			return ParentRef{
				Kind:       ParentLevel,
				LevelKind:  frame.kind,
				Identifier: frame.identifier,
			}
		}
	}
	return ParentRef{Kind: ParentTitle, TitleNum: p.titleNum}
}

func (p *Parser) openNum(parent string, attrs map[string]string) {
	switch {
	case len(p.notes) > 0 || p.noteRegionDepth > 0 || p.quotedContentDepth > 0:
		// Flows with the surrounding note or quoted text.
	case p.section != nil && p.ignoredSectionDepth == 0 && parent == "section" && p.bodyCaptureDepth == 0:
		p.section.valueAttr = attrs["value"]
		p.pushCapture(&capture{tag: "num", kind: capSectionNum})
	case p.bodyCaptureDepth > 0:
		// Designator inside body content, e.g. "(a)"; plain body text.
	default:
		if _, ok := levelKindForTag(parent); ok && len(p.levels) > 0 {
			frame := p.levels[len(p.levels)-1]
			if !frame.ignored {
				p.pushCapture(&capture{tag: "num", kind: capLevelNum, level: frame})
				return
			}
		}
		p.pushCapture(&capture{tag: "num", kind: capIgnore})
	}
}

func (p *Parser) openHeading(parent string) {
	switch {
	case len(p.notes) > 0:
		p.pushCapture(&capture{tag: "heading", kind: capNoteHeading, note: p.notes[len(p.notes)-1]})
	case p.noteRegionDepth > 0 || p.quotedContentDepth > 0:
		p.pushCapture(&capture{tag: "heading", kind: capIgnore})
	case p.section != nil && p.ignoredSectionDepth == 0:
		if p.bodyCaptureDepth > 0 {
			p.pushCapture(&capture{tag: "heading", kind: capBodyHeading})
			return
		}
		if parent == "section" {
			p.pushCapture(&capture{tag: "heading", kind: capSectionHeading})
			return
		}
		p.pushCapture(&capture{tag: "heading", kind: capIgnore})
	default:
		if _, ok := levelKindForTag(parent); ok && len(p.levels) > 0 {
			frame := p.levels[len(p.levels)-1]
			if !frame.ignored {
				p.pushCapture(&capture{tag: "heading", kind: capLevelHeading, level: frame})
				return
			}
		}
		if parent == "title" && p.inMainTitle {
			p.pushCapture(&capture{tag: "heading", kind: capMainHeading})
			return
		}
		p.pushCapture(&capture{tag: "heading", kind: capIgnore})
	}
}

func (p *Parser) pushCapture(c *capture) {
	p.captures = append(p.captures, c)
}

func (p *Parser) finishCapture(c *capture) {
	raw := c.buf.String()
	switch c.kind {
	case capMetaTitle:
		if p.titleName == "" {
			p.titleName = normalizeWhitespace(raw)
		}
	case capMainHeading:
		if p.mainHeading == "" {
			p.mainHeading = normalizeWhitespace(raw)
		}
	case capLevelNum:
		trimmed := normalizeWhitespace(raw)
		if strings.HasPrefix(trimmed, "[") {
			c.level.bracketed = true
			trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
		}
		if c.level.num == "" {
			if num, ok := numFromText(trimmed); ok {
				c.level.num = num
			}
		}
	case capLevelHeading:
		c.level.heading = normalizeWhitespace(raw)
		p.emitLevelIfReady(c.level)
	case capSectionNum:
		trimmed := normalizeWhitespace(raw)
		if strings.HasPrefix(trimmed, "[") {
			p.section.bracketed = true
			trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
		}
		if p.section.num == "" {
			if num, ok := numFromText(trimmed); ok {
				p.section.num = num
			}
		}
	case capSectionHeading:
		p.section.heading.WriteString(raw)
	case capBodyHeading:
		text := strings.Join(strings.Fields(raw), " ")
		if text != "" && p.inBody() {
			p.section.body.WriteString("\n**" + text + "**\n")
		}
	case capNoteHeading:
		if c.note.heading == "" {
			c.note.heading = normalizeWhitespace(raw)
		}
	}
}

// emitPendingLevels flushes unemitted ancestor frames outermost-first, so
// parents always precede children and sections in the stream.
func (p *Parser) emitPendingLevels() {
	for _, frame := range p.levels {
		p.emitLevelIfReady(frame)
	}
}

func (p *Parser) emitLevelIfReady(frame *levelFrame) {
	if frame.ignored || frame.emitted || frame.num == "" {
		return
	}
	frame.emitted = true
	frame.identifier = p.titleNum + "-" + levelPrefixes[frame.kind] + frame.num
	if p.emittedLevels[frame.identifier] {
		return
	}
	p.emittedLevels[frame.identifier] = true

	heading := frame.heading
	if frame.bracketed {
		heading = strings.TrimSpace(strings.TrimSuffix(heading, "]"))
	}

	parent := p.titleNum + "-title"
	for i := len(p.levels) - 1; i >= 0; i-- {
		anc := p.levels[i]
		if anc != frame && anc.emitted && anc.identifier != "" {
			parent = anc.identifier
			break
		}
	}

	p.ensureTitleEmitted()
	p.pending = append(p.pending, Event{Kind: EventLevel, Level: &Level{
		Kind:             frame.kind,
		LevelIndex:       LevelIndex(frame.kind),
		Identifier:       frame.identifier,
		Num:              frame.num,
		Heading:          heading,
		TitleNum:         p.titleNum,
		ParentIdentifier: parent,
	}})
}

func (p *Parser) routeNote(n *noteFrame) {
	if p.section == nil || p.ignoredSectionDepth > 0 {
		return
	}
	heading := n.heading
	body := normalizeWhitespace(n.body.String())
	if heading == "" && body == "" {
		return
	}
	lower := strings.ToLower(heading)

	switch {
	case n.topic == "amendments" || strings.Contains(lower, "amendments"):
		p.section.historyLong = append(p.section.historyLong, noteEntry(heading, body))
	case strings.Contains(n.role, "crossHeading") ||
		strings.Contains(lower, "editorial") ||
		strings.Contains(lower, "statutory"):
		// Navigation and editorial apparatus, not statutory content.
	default:
		p.section.citations = append(p.section.citations, noteEntry(heading, body))
	}
}

func noteEntry(heading, body string) string {
	switch {
	case heading == "":
		return body
	case body == "":
		return heading
	default:
		return heading + "\n" + body
	}
}

func (p *Parser) ensureTitleEmitted() {
	if p.titleEmitted {
		return
	}
	p.titleEmitted = true
	name := p.titleName
	if name == "" {
		name = p.mainHeading
	}
	if name == "" && p.titleNum != "" {
		name = "Title " + p.titleNum
	}
	p.pending = append(p.pending, Event{Kind: EventTitle, Title: &Title{
		TitleNum:  p.titleNum,
		TitleName: name,
	}})
}
