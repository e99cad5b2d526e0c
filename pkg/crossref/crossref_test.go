package crossref

import (
	"reflect"
	"strings"
	"testing"
)

func findMention(refs []Mention, section, titleNum string) *Mention {
	for i := range refs {
		if refs[i].Section == section && refs[i].TitleNum == titleNum {
			return &refs[i]
		}
	}
	return nil
}

func TestTitlePrefixedCitations(t *testing.T) {
	text := "See 42 U.S.C. 1983 and 18 U.S.C. 1001."
	refs := Extract(text, "42")

	first := findMention(refs, "1983", "42")
	if first == nil {
		t.Fatalf("42 U.S.C. 1983 not found in %+v", refs)
	}
	if want := strings.Index(text, "1983"); first.Offset != want {
		t.Errorf("offset = %d, want %d", first.Offset, want)
	}
	if first.Length != len("1983") {
		t.Errorf("length = %d, want %d", first.Length, len("1983"))
	}
	if first.Link != "/statutes/usc/section/42/1983" {
		t.Errorf("link = %q", first.Link)
	}

	second := findMention(refs, "1001", "18")
	if second == nil {
		t.Fatalf("18 U.S.C. 1001 not found in %+v", refs)
	}
	if want := strings.Index(text, "1001"); second.Offset != want {
		t.Errorf("offset = %d, want %d", second.Offset, want)
	}
}

func TestSectionOfTitle(t *testing.T) {
	text := "Section 552 of title 5 applies."
	refs := Extract(text, "1")

	r := findMention(refs, "552", "5")
	if r == nil {
		t.Fatalf("section 552 of title 5 not found in %+v", refs)
	}
	if want := strings.Index(text, "552"); r.Offset != want {
		t.Errorf("offset = %d, want %d", r.Offset, want)
	}
	if r.Link != "/statutes/usc/section/5/552" {
		t.Errorf("link = %q", r.Link)
	}
	if findMention(refs, "552", "1") != nil {
		t.Error("default title should be overridden by explicit title")
	}
}

func TestRangeWithInclusive(t *testing.T) {
	text := "Sections 101 to 103, inclusive, are reserved."
	refs := Extract(text, "12")

	if findMention(refs, "101", "12") == nil {
		t.Errorf("range start 101 not found in %+v", refs)
	}
	if findMention(refs, "103", "12") == nil {
		t.Errorf("range end 103 not found in %+v", refs)
	}
	if len(refs) != 2 {
		t.Errorf("got %d mentions, want 2", len(refs))
	}
}

func TestThroughRange(t *testing.T) {
	refs := Extract("sections 201 through 205 shall not apply", "7")
	if findMention(refs, "201", "7") == nil || findMention(refs, "205", "7") == nil {
		t.Errorf("range endpoints missing in %+v", refs)
	}
}

func TestQualifierChains(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		defTitle    string
		wantSection string
		wantTitle   string
	}{
		{
			name:        "single qualifier",
			text:        "as provided in subsection (a) of section 1001",
			defTitle:    "18",
			wantSection: "1001",
			wantTitle:   "18",
		},
		{
			name:        "chained qualifiers keep default title",
			text:        "paragraph (1) of subsection (b) of section 78c of this title",
			defTitle:    "15",
			wantSection: "78c",
			wantTitle:   "15",
		},
		{
			name:        "qualifier with explicit title",
			text:        "clause (ii) of section 401 of title 23",
			defTitle:    "42",
			wantSection: "401",
			wantTitle:   "23",
		},
		{
			name:        "designator list",
			text:        "subsections (a), (b), and (c) of section 1320",
			defTitle:    "42",
			wantSection: "1320",
			wantTitle:   "42",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := Extract(tt.text, tt.defTitle)
			if findMention(refs, tt.wantSection, tt.wantTitle) == nil {
				t.Errorf("Extract(%q) = %+v, want section %q title %q",
					tt.text, refs, tt.wantSection, tt.wantTitle)
			}
		})
	}
}

func TestSectionListWithRepeatedKeyword(t *testing.T) {
	text := "sections 101, 102, and section 103 of title 7 are amended"
	refs := Extract(text, "1")
	for _, section := range []string{"101", "102", "103"} {
		m := findMention(refs, section, "7")
		if m == nil {
			t.Errorf("section %s of title 7 not found in %+v", section, refs)
			continue
		}
		if want := strings.Index(text, section); m.Offset != want {
			t.Errorf("section %s: offset = %d, want %d", section, m.Offset, want)
		}
	}
}

func TestTitleUSCTerminatesList(t *testing.T) {
	text := "section 3401, and 26 U.S.C. 3402"
	refs := Extract(text, "5")
	if findMention(refs, "3401", "5") == nil {
		t.Errorf("3401 should keep the default title: %+v", refs)
	}
	if findMention(refs, "3402", "26") == nil {
		t.Errorf("3402 should belong to the 26 U.S.C. citation: %+v", refs)
	}
	if findMention(refs, "26", "5") != nil {
		t.Errorf("title number 26 must not be read as a section: %+v", refs)
	}
}

func TestEmptyDefaultTitle(t *testing.T) {
	refs := Extract("section 12 applies here", "")
	if len(refs) != 1 {
		t.Fatalf("got %d mentions, want 1: %+v", len(refs), refs)
	}
	if refs[0].TitleNum != "" || refs[0].Link != "" {
		t.Errorf("mention = %+v, want empty title and link", refs[0])
	}
}

func TestSectionSymbol(t *testing.T) {
	text := "under § 1983 of this title"
	refs := Extract(text, "42")
	m := findMention(refs, "1983", "42")
	if m == nil {
		t.Fatalf("§ citation not found in %+v", refs)
	}
	if want := strings.Index(text, "1983"); m.Offset != want {
		t.Errorf("offset = %d, want %d", m.Offset, want)
	}
}

func TestLetterSuffixLowercased(t *testing.T) {
	refs := Extract("see section 2000E-2 of title 42", "1")
	if findMention(refs, "2000e-2", "42") == nil {
		t.Errorf("suffixed section not lowercased: %+v", refs)
	}
}

func TestNoFalsePositives(t *testing.T) {
	tests := []string{
		"",
		"section of the act",
		"this title governs",
		"the 1983 amendments changed everything",
		"subsection (a) applies",
	}
	for _, text := range tests {
		if refs := Extract(text, "42"); len(refs) != 0 {
			t.Errorf("Extract(%q) = %+v, want none", text, refs)
		}
	}
}

func TestDedupe(t *testing.T) {
	dup := Mention{Section: "5", TitleNum: "1", Offset: 10, Length: 1, Link: "/statutes/usc/section/1/5"}
	other := Mention{Section: "5", TitleNum: "1", Offset: 20, Length: 1, Link: "/statutes/usc/section/1/5"}
	got := dedupe([]Mention{dup, other, dup})
	want := []Mention{dup, other}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupe = %+v, want %+v", got, want)
	}
}
