package window

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/llmbridge/pkg/types"
)

func newTestWindower(t *testing.T, ratio float64) *Windower {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OverlapRatio = ratio
	w, err := New(cfg)
	require.NoError(t, err)
	return w
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min", func(c *Config) { c.MinWindowSize = 0 }},
		{"max below min", func(c *Config) { c.MaxWindowSize = c.MinWindowSize - 1 }},
		{"negative ratio", func(c *Config) { c.OverlapRatio = -0.1 }},
		{"ratio of one", func(c *Config) { c.OverlapRatio = 1 }},
		{"zero token length", func(c *Config) { c.AvgTokenLength = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			w, err := New(cfg)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	w := newTestWindower(t, 0.1)

	assert.Equal(t, 0, w.EstimateTokens(""))
	assert.Equal(t, 1, w.EstimateTokens("abc"))
	assert.Equal(t, 1, w.EstimateTokens("abcd"))
	assert.Equal(t, 2, w.EstimateTokens("abcde"))
}

func TestCalculateWindowSize(t *testing.T) {
	w := newTestWindower(t, 0.1)

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty clamps to min", "", 1000},
		{"short clamps to min", strings.Repeat("a", 400), 1000},
		{"mid range", strings.Repeat("a", 4000), 1200},
		{"huge clamps to max", strings.Repeat("a", 100000), 8000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.CalculateWindowSize(tt.input))
		})
	}
}

func TestCreateWindows_Edges(t *testing.T) {
	w := newTestWindower(t, 0.2)

	assert.Empty(t, w.CreateWindows("", 10))

	single := w.CreateWindows("short text", 100)
	require.Len(t, single, 1)
	assert.Equal(t, types.Window{Text: "short text", Start: 0, End: 10}, single[0])

	whole := w.CreateWindows("no window size given", 0)
	require.Len(t, whole, 1)
	assert.Equal(t, "no window size given", whole[0].Text)
}

func TestCreateWindows_QuickBrownFox(t *testing.T) {
	w := newTestWindower(t, 0.2)
	text := "the quick brown fox jumps over"

	windows := w.CreateWindows(text, 10)

	require.Len(t, windows, 3)
	assert.Equal(t, types.Window{Text: "the quick brown", Start: 0, End: 15}, windows[0])
	assert.Equal(t, types.Window{Text: " brown fox", Start: 9, End: 19}, windows[1])
	assert.Equal(t, types.Window{Text: " jumps over", Start: 19, End: 30}, windows[2])

	assert.Equal(t, text, w.MergeOverlappingContent(windows))
}

func TestCreateWindows_NoWordSplit(t *testing.T) {
	w := newTestWindower(t, 0.25)
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit ", 20) +
		"naïve café façade über straße"

	for _, size := range []int{7, 13, 32, 50, 111} {
		windows := w.CreateWindows(text, size)
		require.NotEmpty(t, windows)

		assert.Equal(t, 0, windows[0].Start)
		assert.Equal(t, len(text), windows[len(windows)-1].End)

		for i, win := range windows {
			assert.Equal(t, text[win.Start:win.End], win.Text)
			if win.Start > 0 {
				assert.True(t, isSpace(text[win.Start]), "size %d window %d starts mid-word", size, i)
			}
			if win.End < len(text) {
				assert.True(t, isSpace(text[win.End]), "size %d window %d ends mid-word", size, i)
			}
			if i > 0 {
				prev := windows[i-1]
				assert.Greater(t, win.Start, prev.Start)
				assert.LessOrEqual(t, win.Start, prev.End, "windows must not leave gaps")
			}
		}
	}
}

func TestMergeOverlappingContent_Reconstructs(t *testing.T) {
	texts := []string{
		"the quick brown fox jumps over the lazy dog",
		strings.Repeat("alpha beta gamma delta ", 40),
		"one\ttwo\nthree  four     five six seven eight nine ten eleven twelve",
		"unbrokenwordwithoutanyspaceswhatsoever followed by words",
	}

	for _, ratio := range []float64{0, 0.1, 0.3, 0.5} {
		w := newTestWindower(t, ratio)
		for _, text := range texts {
			for _, size := range []int{5, 12, 20, 64} {
				windows := w.CreateWindows(text, size)
				assert.Equal(t, text, w.MergeOverlappingContent(windows),
					"ratio %v size %d", ratio, size)
			}
		}
	}
}

func TestMergeOverlappingContent_Empty(t *testing.T) {
	w := newTestWindower(t, 0.1)
	assert.Equal(t, "", w.MergeOverlappingContent(nil))
}

func TestMergeOverlappingContent_WithoutSpans(t *testing.T) {
	w := newTestWindower(t, 0.1)

	windows := []types.Window{
		{Text: "The quick brown fox jumps over"},
		{Text: "fox jumps over the lazy dog"},
	}
	assert.Equal(t, "The quick brown fox jumps over the lazy dog", w.MergeOverlappingContent(windows))
}

func TestMergeTexts(t *testing.T) {
	w := newTestWindower(t, 0.1)

	tests := []struct {
		name  string
		texts []string
		want  string
	}{
		{
			name:  "empty",
			texts: nil,
			want:  "",
		},
		{
			name:  "single",
			texts: []string{"only one"},
			want:  "only one",
		},
		{
			name:  "overlap removed",
			texts: []string{"The quick brown fox jumps over", "fox jumps over the lazy dog"},
			want:  "The quick brown fox jumps over the lazy dog",
		},
		{
			name:  "no overlap joins with a space",
			texts: []string{"alpha beta", "gamma delta"},
			want:  "alpha beta gamma delta",
		},
		{
			name:  "existing whitespace is not doubled",
			texts: []string{"alpha beta ", "gamma delta"},
			want:  "alpha beta gamma delta",
		},
		{
			name:  "overlap shorter than minimum is ignored",
			texts: []string{"tail end", "end of story"},
			want:  "tail end end of story",
		},
		{
			name:  "overlap ending mid-word is rejected",
			texts: []string{"xxxxx abcdefghijkl", "abcdefghijklmnop qr"},
			want:  "xxxxx abcdefghijkl abcdefghijklmnop qr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.MergeTexts(tt.texts))
		})
	}
}

func TestProcessContext(t *testing.T) {
	w := newTestWindower(t, 0.1)
	text := strings.Repeat("word ", 3000)

	t.Run("computed size", func(t *testing.T) {
		windows := w.ProcessContext(text, ProcessOptions{})
		require.NotEmpty(t, windows)
		size := w.CalculateWindowSize(text)
		for _, win := range windows {
			assert.Zero(t, win.TokenCount)
			assert.LessOrEqual(t, len(win.Text), size+len("word "))
		}
		assert.Equal(t, text, w.MergeOverlappingContent(windows))
	})

	t.Run("explicit size with token counts", func(t *testing.T) {
		windows := w.ProcessContext(text, ProcessOptions{WindowSize: 500, IncludeTokenCounts: true})
		require.Greater(t, len(windows), 1)
		for _, win := range windows {
			assert.Equal(t, w.EstimateTokens(win.Text), win.TokenCount)
		}
	})
}
