package assessment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairing_AssignReplacesItemMatch(t *testing.T) {
	q := matchingQuestion()
	p := NewPairing()

	p.Assign("fr", "paris")
	p.Assign("fr", "rome")

	m, ok := p.MatchFor("fr")
	require.True(t, ok)
	assert.Equal(t, "rome", m)
	assert.Equal(t, 1, p.Len())

	_, held := p.ItemFor("paris")
	assert.False(t, held, "paris must be released")

	ids := optionIDs(p.Available(q, "it", false))
	assert.Contains(t, ids, "paris")
	assert.NotContains(t, ids, "rome")
}

func TestPairing_SetExchange(t *testing.T) {
	p := NewPairing()
	p.Assign("fr", "paris")

	released := p.Assign("it", "paris")
	assert.Equal(t, "fr", released)

	_, ok := p.MatchFor("fr")
	assert.False(t, ok, "fr lost its match")
	item, _ := p.ItemFor("paris")
	assert.Equal(t, "it", item)
	assert.Equal(t, 1, p.Len())
}

func TestPairing_Available(t *testing.T) {
	q := matchingQuestion()
	p := NewPairing()
	p.Assign("fr", "paris")

	assert.Equal(t, []string{"paris", "rome", "oslo"}, optionIDs(p.Available(q, "fr", false)), "own match stays listed")
	assert.Equal(t, []string{"rome", "oslo"}, optionIDs(p.Available(q, "it", false)))
	assert.Equal(t, []string{"paris", "rome", "oslo"}, optionIDs(p.Available(q, "it", true)), "review lists everything")
}

func TestPairing_UnassignAndClone(t *testing.T) {
	p := NewPairing()
	p.Assign("fr", "paris")
	c := p.Clone()
	p.Unassign("fr")

	assert.Equal(t, 0, p.Len())
	assert.Equal(t, map[string]string{"fr": "paris"}, c.Pairs())
}

func TestPairingFrom_CollidingMatches(t *testing.T) {
	p := PairingFrom(map[string]string{"a": "x", "b": "x"})
	assert.Equal(t, map[string]string{"b": "x"}, p.Pairs())
}

func TestResolveOption(t *testing.T) {
	opts := []string{"Paris", "Rome", "Berlin"}
	tests := []struct {
		in, want string
	}{
		{"Paris", "Paris"},
		{" Rome ", "Rome"},
		{"B", "Rome"},
		{"b)", "Rome"},
		{"C. Berlin", "Berlin"},
		{"A: Paris", "Paris"},
		{"paris", "paris"},
		{"D", "D"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveOption(opts, tt.in))
		})
	}
}

func TestEncodeDecodeResponses(t *testing.T) {
	q := matchingQuestion()
	p := NewPairing()
	p.Assign("fr", "paris")

	body, err := json.Marshal(EncodeResponses(map[string]Response{
		"q1": OptionResponse{Option: "Paris"},
		"m":  p,
		"tf": BoolResponse{Value: true},
	}))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))

	r, err := DecodeResponse(q, raw["m"])
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"fr": "paris"}, r.(*Pairing).Pairs())

	r, err = DecodeResponse(capitals(), raw["q1"])
	require.NoError(t, err)
	assert.Equal(t, OptionResponse{Option: "Paris"}, r)

	tf := &TrueFalse{Base: Base{ID: "tf", Text: "?"}}
	r, err = DecodeResponse(tf, json.RawMessage(`"TRUE"`))
	require.NoError(t, err)
	assert.Equal(t, BoolResponse{Value: true}, r)

	_, err = DecodeResponse(&Invalid{Base: Base{ID: "x"}}, raw["q1"])
	assert.ErrorIs(t, err, ErrInvalidQuestion)
}

func optionIDs(opts []Option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}
