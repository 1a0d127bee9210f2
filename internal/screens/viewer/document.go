package viewer

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/engage/internal/content"
	"github.com/abhisek/engage/internal/engagement"
	"github.com/abhisek/engage/internal/ui/theme"
)

// document is the laid-out content: the lines the viewport scrolls over
// and the blocks the visibility observer measures.
type document struct {
	lines  []string
	blocks []engagement.Block
	// starts maps section id to its first line.
	starts map[string]int
}

// reflection reports whether a section carries a reflection prompt and the
// learner's current text.
type reflection func(sectionID string) (wanted bool, text string)

// layoutDocument renders sections at width. Each heading is one block; each
// blank-line separated paragraph of a body is one block.
func layoutDocument(kind content.Kind, sections []content.Section, width int, refl reflection) document {
	doc := document{starts: make(map[string]int, len(sections))}
	width = max(width, 20)
	body := lipgloss.NewStyle().Width(width).Foreground(theme.Text)

	for n, s := range sections {
		if n > 0 {
			doc.lines = append(doc.lines, "")
		}
		doc.starts[s.ID] = len(doc.lines)
		index := 0

		if s.HasHeading() || kind == content.KindFlashcards {
			doc.blocks = append(doc.blocks, engagement.Block{
				SectionID: s.ID, Kind: engagement.BlockHeading, Index: index, Top: len(doc.lines), Height: 1,
			})
			doc.lines = append(doc.lines, heading(kind, s, n, len(sections)))
			index++
		}

		for _, para := range paragraphs(s.Body) {
			rendered := strings.Split(body.Render(para), "\n")
			doc.blocks = append(doc.blocks, engagement.Block{
				SectionID: s.ID, Kind: engagement.BlockParagraph, Index: index, Top: len(doc.lines), Height: len(rendered),
			})
			doc.lines = append(doc.lines, rendered...)
			doc.lines = append(doc.lines, "")
			index++
		}

		if refl != nil {
			if wanted, text := refl(s.ID); wanted {
				doc.lines = append(doc.lines, reflectionLine(text, width))
			}
		}
	}
	return doc
}

func heading(kind content.Kind, s content.Section, n, total int) string {
	title := strings.TrimSpace(s.Title)
	if kind == content.KindFlashcards {
		if title == "" {
			title = "Card"
		}
		return theme.SectionHeading.Render(fmt.Sprintf("▌ %s", title)) +
			"  " + theme.SectionTag.Render(fmt.Sprintf("%d/%d", n+1, total))
	}
	return theme.SectionHeading.Render(title) + "  " + theme.SectionTag.Render(string(s.Type))
}

func reflectionLine(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return theme.Warning.Render("  ✎ Your reflection: (press w to write)")
	}
	room := max(width-22, 10)
	if r := []rune(text); len(r) > room {
		text = string(r[:room-1]) + "…"
	}
	return theme.Hint.Render("  ✎ Your reflection: " + text)
}

// paragraphs splits a body on blank lines.
func paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sectionAt returns the id of the section whose lines contain line, or "".
func (d document) sectionAt(line int, order []content.Section) string {
	id := ""
	best := -1
	for _, s := range order {
		start, ok := d.starts[s.ID]
		if ok && start <= line && start > best {
			best, id = start, s.ID
		}
	}
	return id
}
