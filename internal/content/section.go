package content

import (
	"encoding/json"
	"sort"
	"strings"
)

// SectionType is the semantic role of a section.
type SectionType string

const (
	SectionIntro      SectionType = "intro"
	SectionConcept    SectionType = "concept"
	SectionExample    SectionType = "example"
	SectionPractice   SectionType = "practice"
	SectionSummary    SectionType = "summary"
	SectionAssessment SectionType = "assessment"
	SectionOther      SectionType = "other"
)

// ParseSectionType maps a wire value onto a known type. Anything
// unrecognized becomes SectionOther.
func ParseSectionType(s string) SectionType {
	switch t := SectionType(strings.ToLower(strings.TrimSpace(s))); t {
	case SectionIntro, SectionConcept, SectionExample, SectionPractice,
		SectionSummary, SectionAssessment:
		return t
	case "introduction":
		return SectionIntro
	default:
		return SectionOther
	}
}

// Section is one discrete chunk of fetched content. Sections are immutable
// once fetched and identified by ID.
type Section struct {
	ID      string      `json:"id" yaml:"id"`
	Type    SectionType `json:"type" yaml:"type"`
	Title   string      `json:"title,omitempty" yaml:"title,omitempty"`
	Body    string      `json:"content" yaml:"content"`
	Ordinal int         `json:"ordinal" yaml:"ordinal"`
}

// UnmarshalJSON normalizes the section type.
func (s *Section) UnmarshalJSON(data []byte) error {
	type alias Section
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Type = ParseSectionType(string(a.Type))
	*s = Section(a)
	return nil
}

// HasHeading reports whether the section renders a heading line.
func (s Section) HasHeading() bool {
	return strings.TrimSpace(s.Title) != ""
}

// SortByOrdinal orders sections in place; ties keep their arrival order.
func SortByOrdinal(sections []Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Ordinal < sections[j].Ordinal
	})
}

// Dedupe drops repeated section IDs, keeping the first occurrence. Streams
// may redeliver a section after a reconnect.
func Dedupe(sections []Section) []Section {
	seen := make(map[string]bool, len(sections))
	out := sections[:0:0]
	for _, s := range sections {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

// CountType returns how many sections have the given type.
func CountType(sections []Section, t SectionType) int {
	n := 0
	for _, s := range sections {
		if s.Type == t {
			n++
		}
	}
	return n
}
