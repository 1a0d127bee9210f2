package assessment

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Response is a learner's answer to one question. Each variant pairs with
// exactly one question variant.
type Response interface {
	isResponse()
}

// OptionResponse answers a multiple-choice question with the raw option
// text. Use ResolveOption to turn a typed label into the option.
type OptionResponse struct {
	Option string
}

// BoolResponse answers a true-false question.
type BoolResponse struct {
	Value bool
}

// TextResponse answers a short-answer question.
type TextResponse struct {
	Text string
}

// BlanksResponse answers a fill-in-blank question, keyed by blank id.
type BlanksResponse struct {
	Blanks map[string]string
}

// EssayResponse answers a long-answer question.
type EssayResponse struct {
	Text string
}

func (OptionResponse) isResponse() {}
func (BoolResponse) isResponse()   {}
func (TextResponse) isResponse()   {}
func (BlanksResponse) isResponse() {}
func (*Pairing) isResponse()       {}
func (EssayResponse) isResponse()  {}

// Fits reports whether r is the response variant for q.
func Fits(q Question, r Response) bool {
	switch q.(type) {
	case *MultipleChoice:
		_, ok := r.(OptionResponse)
		return ok
	case *TrueFalse:
		_, ok := r.(BoolResponse)
		return ok
	case *ShortAnswer:
		_, ok := r.(TextResponse)
		return ok
	case *FillInBlank:
		_, ok := r.(BlanksResponse)
		return ok
	case *Matching:
		p, ok := r.(*Pairing)
		return ok && p != nil
	case *LongAnswer:
		_, ok := r.(EssayResponse)
		return ok
	}
	return false
}

// ResolveOption maps what the learner typed or picked back to the raw
// option text. An exact option match wins; otherwise a leading letter
// label ("B", "b)", "B. Rome") selects the option at that position. Input
// that matches neither is returned trimmed and unchanged.
func ResolveOption(options []string, input string) string {
	s := strings.TrimSpace(input)
	for _, o := range options {
		if strings.TrimSpace(o) == s {
			return o
		}
	}
	if s == "" {
		return s
	}
	r := rune(s[0])
	if r > unicode.MaxASCII || !unicode.IsLetter(r) {
		return s
	}
	if len(s) > 1 && !strings.ContainsRune(").:", rune(s[1])) {
		return s
	}
	idx := int(unicode.ToUpper(r) - 'A')
	if idx < 0 || idx >= len(options) {
		return s
	}
	return options[idx]
}

// OptionLabel is the letter shown before option i.
func OptionLabel(i int) string {
	return string(rune('A' + i))
}

// Pairing is the response to a matching question. Each item holds at most
// one match and each match is held by at most one item: assigning a match
// that another item holds moves it.
type Pairing struct {
	byItem  map[string]string
	byMatch map[string]string
}

// NewPairing returns an empty pairing.
func NewPairing() *Pairing {
	return &Pairing{byItem: make(map[string]string), byMatch: make(map[string]string)}
}

// PairingFrom builds a pairing from an item→match map. When two items
// name the same match, the later item in sorted order keeps it.
func PairingFrom(m map[string]string) *Pairing {
	p := NewPairing()
	for _, item := range slices.Sorted(maps.Keys(m)) {
		p.Assign(item, m[item])
	}
	return p
}

// Assign pairs item with match. Any previous match of item is released,
// and if another item held match it loses it; that item's id is returned.
func (p *Pairing) Assign(itemID, matchID string) (released string) {
	if itemID == "" || matchID == "" {
		return ""
	}
	if cur, ok := p.byItem[itemID]; ok {
		if cur == matchID {
			return ""
		}
		delete(p.byMatch, cur)
	}
	if holder, ok := p.byMatch[matchID]; ok && holder != itemID {
		delete(p.byItem, holder)
		released = holder
	}
	p.byItem[itemID] = matchID
	p.byMatch[matchID] = itemID
	return released
}

// Unassign clears item's match.
func (p *Pairing) Unassign(itemID string) {
	if cur, ok := p.byItem[itemID]; ok {
		delete(p.byMatch, cur)
		delete(p.byItem, itemID)
	}
}

// MatchFor returns the match paired with item.
func (p *Pairing) MatchFor(itemID string) (string, bool) {
	m, ok := p.byItem[itemID]
	return m, ok
}

// ItemFor returns the item holding match.
func (p *Pairing) ItemFor(matchID string) (string, bool) {
	i, ok := p.byMatch[matchID]
	return i, ok
}

// Len is the number of paired items.
func (p *Pairing) Len() int {
	return len(p.byItem)
}

// Pairs returns a copy of the item→match map.
func (p *Pairing) Pairs() map[string]string {
	return maps.Clone(p.byItem)
}

// Clone returns an independent copy.
func (p *Pairing) Clone() *Pairing {
	return &Pairing{byItem: maps.Clone(p.byItem), byMatch: maps.Clone(p.byMatch)}
}

// Available lists the matches item may choose. Matches held by other
// items are hidden so the exchange is visible; in review mode every match
// stays listed.
func (p *Pairing) Available(q *Matching, itemID string, review bool) []Option {
	if review {
		return slices.Clone(q.Matches)
	}
	out := make([]Option, 0, len(q.Matches))
	for _, m := range q.Matches {
		if holder, ok := p.byMatch[m.ID]; ok && holder != itemID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// MarshalJSON encodes the item→match map.
func (p *Pairing) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.byItem)
}

// EncodeResponse renders a response in its wire shape: option text,
// boolean, free text, blank-id→text map or item-id→match-id map.
func EncodeResponse(r Response) any {
	switch v := r.(type) {
	case OptionResponse:
		return v.Option
	case BoolResponse:
		return v.Value
	case TextResponse:
		return v.Text
	case BlanksResponse:
		return v.Blanks
	case *Pairing:
		return v.Pairs()
	case EssayResponse:
		return v.Text
	}
	return nil
}

// EncodeResponses renders a response map for submission.
func EncodeResponses(rs map[string]Response) map[string]any {
	out := make(map[string]any, len(rs))
	for id, r := range rs {
		out[id] = EncodeResponse(r)
	}
	return out
}

// DecodeResponse parses a wire response for q.
func DecodeResponse(q Question, raw json.RawMessage) (Response, error) {
	switch q.(type) {
	case *MultipleChoice:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode option: %w", err)
		}
		return OptionResponse{Option: s}, nil
	case *TrueFalse:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return BoolResponse{Value: b}, nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode boolean: %w", err)
		}
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			return nil, fmt.Errorf("decode boolean: %w", err)
		}
		return BoolResponse{Value: b}, nil
	case *ShortAnswer:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return TextResponse{Text: s}, nil
	case *FillInBlank:
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode blanks: %w", err)
		}
		return BlanksResponse{Blanks: m}, nil
	case *Matching:
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode pairs: %w", err)
		}
		return PairingFrom(m), nil
	case *LongAnswer:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode essay: %w", err)
		}
		return EssayResponse{Text: s}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidQuestion, q.QuestionID())
}
