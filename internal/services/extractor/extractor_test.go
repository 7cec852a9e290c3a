package extractor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type verdict struct {
	Summary        string `json:"summary" validate:"required"`
	Recommendation string `json:"recommendation" validate:"required"`
	Note           string `json:"note"`
}

func newTestExtractor() *Extractor {
	return NewExtractor(nil, arbor.NewLogger())
}

func TestParse_Stages(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		name    string
		input   string
		stage   Stage
		summary string
	}{
		{
			name:    "direct",
			input:   `  {"summary":"flu","recommendation":"rest"}  `,
			stage:   StageDirect,
			summary: "flu",
		},
		{
			name:    "wrapped in prose",
			input:   "Berikut hasilnya:\n{\"summary\":\"flu\",\"recommendation\":\"rest\"}\nSemoga membantu.",
			stage:   StageSpan,
			summary: "flu",
		},
		{
			name:    "balanced span after greedy span fails",
			input:   `note {"summary":"a","recommendation":"b"} and later {broken}`,
			stage:   StageSpan,
			summary: "a",
		},
		{
			name: "fenced with comments",
			input: "```json\n{\n  // model commentary\n  \"summary\": \"demam\", /* inline */\n" +
				"  \"recommendation\": \"istirahat\",\n}\n```",
			stage:   StageSanitized,
			summary: "demam",
		},
		{
			name:    "braces inside strings",
			input:   `x {"summary":"uses } and { chars","recommendation":"ok"} y`,
			stage:   StageSpan,
			summary: "uses } and { chars",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse[verdict](e, tt.input, nil)
			require.NoError(t, res.Err)
			assert.True(t, res.OK())
			assert.Equal(t, tt.stage, res.Stage)
			assert.Equal(t, tt.summary, res.Value.Summary)
		})
	}
}

func TestParse_MissingRequiredField(t *testing.T) {
	e := newTestExtractor()

	res := Parse[verdict](e, `{"summary":"only summary"}`, nil)
	assert.False(t, res.OK())
	assert.Equal(t, StageFallback, res.Stage)
	assert.Error(t, res.Err)
}

func TestParse_Array(t *testing.T) {
	e := newTestExtractor()

	res := Parse[[]string](e, "Questions:\n[\"a\", \"b\", \"c\"]", nil)
	require.True(t, res.OK())
	assert.Equal(t, []string{"a", "b", "c"}, res.Value)
}

func TestParse_CustomCheck(t *testing.T) {
	e := newTestExtractor()
	atLeastThree := func(v []string) error {
		if len(v) < 3 {
			return errors.New("too few")
		}
		return nil
	}

	res := Parse[[]string](e, `["a"]`, atLeastThree)
	assert.False(t, res.OK())
	assert.ErrorContains(t, res.Err, "too few")
}

func TestParse_Empty(t *testing.T) {
	res := Parse[verdict](newTestExtractor(), "   ", nil)
	assert.ErrorIs(t, res.Err, ErrNoStructuredContent)
}

func TestExtract_Fallback(t *testing.T) {
	e := newTestExtractor()
	fallback := func() verdict {
		return verdict{Summary: "default", Recommendation: "rest 1-2 days"}
	}

	for _, input := range []string{"", "not json at all", `{"summary":1}`, `{"note":"x"}`} {
		v, res := Extract(e, "analysis", input, nil, fallback)
		assert.Equal(t, "default", v.Summary, input)
		assert.Equal(t, StageFallback, res.Stage)
		assert.ErrorIs(t, res.Err, ErrExtractionFallbackUsed)
		assert.False(t, res.OK())
	}
}

func TestExtract_Success(t *testing.T) {
	e := newTestExtractor()
	called := false

	v, res := Extract(e, "analysis", `{"summary":"s","recommendation":"r"}`, nil, func() verdict {
		called = true
		return verdict{}
	})
	assert.False(t, called)
	assert.Equal(t, "s", v.Summary)
	assert.NoError(t, res.Err)
}

func TestSanitize(t *testing.T) {
	in := "```json\n{\n\t\"a\": 1,   // trailing\n// whole line\n/* block\ncomment */ \"b\": [1, 2,],\n}\n```"
	out := Sanitize(in)

	assert.NotContains(t, out, "```")
	assert.NotContains(t, out, "whole line")
	assert.NotContains(t, out, "block")
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, `"b": [1, 2]`)
}

func TestGreedySpan(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, greedySpan(`xx {"a":{"b":1}} yy`))
	assert.Equal(t, `[1,[2]]`, greedySpan(`- [1,[2]] -`))
	assert.Equal(t, "", greedySpan("no brackets"))
	assert.Equal(t, "", greedySpan("} before {"))
}

func TestBalancedSpans(t *testing.T) {
	spans := balancedSpans(`{"a":1} text {"b":"}"} [1,2]`, 8)
	assert.Equal(t, []string{`{"a":1}`, `{"b":"}"}`, `[1,2]`}, spans)
}
