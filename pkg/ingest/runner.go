// Package ingest orchestrates the pipeline: download a title's USLM XML,
// stream it through the structural parser, extract cross-references from
// the section text, and persist the resulting node hierarchy.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coolbeans/uscingest/pkg/crossref"
	"github.com/coolbeans/uscingest/pkg/store"
	"github.com/coolbeans/uscingest/pkg/uslm"
)

// Fetcher downloads one document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// NodeWriter receives the ingested hierarchy.
type NodeWriter interface {
	InsertNodes(ctx context.Context, nodes []store.Node) error
	RecordSourceVersion(ctx context.Context, v store.SourceVersion) error
}

// ContentBlock is one classified slice of a section, serialized into the
// node's content column.
type ContentBlock struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Label   string `json:"label,omitempty"`
}

// SectionMetadata carries derived data alongside the blocks.
type SectionMetadata struct {
	CrossReferences []crossref.Mention `json:"crossReferences,omitempty"`
}

// SectionContent is the JSON document stored for each section node.
type SectionContent struct {
	Blocks   []ContentBlock   `json:"blocks"`
	Metadata *SectionMetadata `json:"metadata,omitempty"`
}

// Runner executes ingestion runs against a fetcher and a node store.
type Runner struct {
	config  Config
	fetcher Fetcher
	nodes   NodeWriter
	log     *slog.Logger
}

// NewRunner wires a Runner. A nil logger falls back to slog.Default.
func NewRunner(config Config, fetcher Fetcher, nodes NodeWriter, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{config: config, fetcher: fetcher, nodes: nodes, log: log}
}

// Run ingests every configured title sequentially. A failing title is
// logged and skipped; the joined failures are returned after the rest of
// the run completes.
func (r *Runner) Run(ctx context.Context) error {
	var failures []error

	for _, titleNum := range r.config.Titles {
		if err := ctx.Err(); err != nil {
			return err
		}

		url := r.config.URLFor(titleNum)
		r.log.Info("fetching title", "title", titleNum, "url", url)

		body, err := r.fetcher.Fetch(ctx, url)
		if err != nil {
			r.log.Error("fetch failed, skipping title", "title", titleNum, "error", err)
			failures = append(failures, fmt.Errorf("title %s: %w", titleNum, err))
			continue
		}

		count, err := r.IngestTitle(ctx, titleNum, url, body)
		if err != nil {
			r.log.Error("ingest failed", "title", titleNum, "error", err)
			failures = append(failures, fmt.Errorf("title %s: %w", titleNum, err))
			continue
		}
		r.log.Info("title ingested", "title", titleNum, "nodes", count)
	}

	return errors.Join(failures...)
}

// IngestTitle parses one title document and writes its nodes. It returns
// the number of nodes written.
func (r *Runner) IngestTitle(ctx context.Context, titleNum, sourceURL string, body []byte) (int, error) {
	builder := &nodeBuilder{
		sourceURL:  sourceURL,
		accessedAt: time.Now(),
		seenIDs:    make(map[string]bool),
	}

	flush := func() error {
		if len(builder.pending) == 0 {
			return nil
		}
		if err := r.nodes.InsertNodes(ctx, builder.pending); err != nil {
			return err
		}
		builder.pending = builder.pending[:0]
		return nil
	}

	err := uslm.ParseStream(bytes.NewReader(body), func(ev uslm.Event) error {
		builder.add(ev)
		if len(builder.pending) >= r.config.BatchSize {
			return flush()
		}
		return nil
	}, uslm.WithDefaultTitle(titleNum))
	if err != nil {
		return 0, fmt.Errorf("parsing title %s: %w", titleNum, err)
	}
	if err := flush(); err != nil {
		return 0, err
	}

	if builder.total == 0 {
		return 0, fmt.Errorf("title %s produced no nodes", titleNum)
	}

	version := store.SourceVersion{
		SourceURL:  sourceURL,
		TitleNum:   titleNum,
		IngestedAt: builder.accessedAt,
		NodeCount:  builder.total,
	}
	if err := r.nodes.RecordSourceVersion(ctx, version); err != nil {
		return 0, err
	}
	return builder.total, nil
}

// nodeBuilder turns parse events into store nodes, assigning sort orders
// in document order and skipping identifiers it has already produced.
type nodeBuilder struct {
	sourceURL  string
	accessedAt time.Time
	sortOrder  int
	seenIDs    map[string]bool
	pending    []store.Node
	total      int
}

func (b *nodeBuilder) add(ev uslm.Event) {
	switch ev.Kind {
	case uslm.EventTitle:
		b.addTitle(ev.Title)
	case uslm.EventLevel:
		b.addLevel(ev.Level)
	case uslm.EventSection:
		b.addSection(ev.Section)
	}
}

func (b *nodeBuilder) push(node store.Node) {
	if b.seenIDs[node.ID] {
		return
	}
	b.seenIDs[node.ID] = true
	node.SortOrder = b.sortOrder
	b.sortOrder++
	b.pending = append(b.pending, node)
	b.total++
}

func (b *nodeBuilder) addTitle(title *uslm.Title) {
	b.push(store.Node{
		ID:              title.TitleNum + "-title",
		LevelName:       "title",
		LevelIndex:      0,
		Name:            title.TitleName,
		Path:            "/statutes/usc/title/" + title.TitleNum,
		ReadableID:      title.TitleNum,
		HeadingCitation: "Title " + title.TitleNum,
		SourceURL:       b.sourceURL,
		AccessedAt:      b.accessedAt,
	})
}

func (b *nodeBuilder) addLevel(level *uslm.Level) {
	b.push(store.Node{
		ID:              level.Identifier,
		ParentID:        level.ParentIdentifier,
		LevelName:       string(level.Kind),
		LevelIndex:      level.LevelIndex,
		Name:            level.Heading,
		Path:            levelPath(level),
		ReadableID:      level.Num,
		HeadingCitation: capitalizeFirst(string(level.Kind)) + " " + level.Num,
		SourceURL:       b.sourceURL,
		AccessedAt:      b.accessedAt,
	})
}

func (b *nodeBuilder) addSection(section *uslm.Section) {
	parentID := section.TitleNum + "-title"
	if section.ParentRef.Kind == uslm.ParentLevel {
		parentID = section.ParentRef.Identifier
	}

	readableID := section.TitleNum + " USC " + section.SectionNum
	b.push(store.Node{
		ID:              section.SectionKey,
		ParentID:        parentID,
		LevelName:       "section",
		LevelIndex:      uslm.SectionLevelIndex(),
		Name:            section.Heading,
		Path:            section.Path,
		ReadableID:      readableID,
		HeadingCitation: readableID,
		SourceURL:       b.sourceURL,
		AccessedAt:      b.accessedAt,
		Content:         sectionContentJSON(section),
	})
}

// sectionContentJSON renders the section's classified blocks, attaching
// extracted cross-references only when there are any.
func sectionContentJSON(section *uslm.Section) string {
	content := SectionContent{
		Blocks: []ContentBlock{
			{Type: "body", Content: section.Body},
			{Type: "historyShort", Content: section.HistoryShort},
			{Type: "historyLong", Content: section.HistoryLong},
			{Type: "citations", Content: section.Citations},
		},
	}

	if refs := ExtractSectionCrossReferences(section); len(refs) > 0 {
		content.Metadata = &SectionMetadata{CrossReferences: refs}
	}

	data, err := json.Marshal(content)
	if err != nil {
		// Only unmarshalable types reach here, and SectionContent has none.
		return "{}"
	}
	return string(data)
}

// ExtractSectionCrossReferences scans the section's body and citations
// text for statutory references, defaulting to the section's own title.
func ExtractSectionCrossReferences(section *uslm.Section) []crossref.Mention {
	text := section.Body
	if section.Citations != "" {
		if text != "" {
			text += "\n\n"
		}
		text += section.Citations
	}
	if text == "" {
		return nil
	}
	return crossref.Extract(text, section.TitleNum)
}

func levelPath(level *uslm.Level) string {
	return "/statutes/usc/" + string(level.Kind) + "/" + level.TitleNum + "/" + level.Num
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
