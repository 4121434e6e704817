package window

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dshills/llmbridge/pkg/types"
)

const (
	// sizeHeadroom scales the token estimate when sizing a window.
	sizeHeadroom = 1.2

	// minOverlap is the shortest text overlap the merger will trust.
	minOverlap = 10

	// minOverlapRatio is the share of the incoming window an overlap must cover.
	minOverlapRatio = 0.1
)

// Config controls window sizing and overlap.
type Config struct {
	MinWindowSize  int
	MaxWindowSize  int
	OverlapRatio   float64
	AvgTokenLength float64
}

// DefaultConfig returns sizing suited to typical chat model context limits.
func DefaultConfig() Config {
	return Config{
		MinWindowSize:  1000,
		MaxWindowSize:  8000,
		OverlapRatio:   0.1,
		AvgTokenLength: 4,
	}
}

// Validate checks that the configuration can produce windows.
func (c Config) Validate() error {
	if c.MinWindowSize <= 0 {
		return types.Configurationf("window: min window size must be positive, got %d", c.MinWindowSize)
	}
	if c.MaxWindowSize < c.MinWindowSize {
		return types.Configurationf("window: max window size %d is below min %d", c.MaxWindowSize, c.MinWindowSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return types.Configurationf("window: overlap ratio must be in [0,1), got %v", c.OverlapRatio)
	}
	if c.AvgTokenLength <= 0 {
		return types.Configurationf("window: average token length must be positive, got %v", c.AvgTokenLength)
	}
	return nil
}

// ProcessOptions tunes ProcessContext.
type ProcessOptions struct {
	// WindowSize overrides the computed size when positive.
	WindowSize int
	// IncludeTokenCounts fills Window.TokenCount.
	IncludeTokenCounts bool
}

// Windower splits long text into overlapping, word-aligned windows and merges
// them back.
type Windower struct {
	cfg    Config
	logger zerolog.Logger
}

// Option configures a Windower.
type Option func(*Windower)

func WithLogger(l zerolog.Logger) Option {
	return func(w *Windower) { w.logger = l }
}

// New validates cfg and returns a Windower.
func New(cfg Config, opts ...Option) (*Windower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &Windower{cfg: cfg, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Config returns the active configuration.
func (w *Windower) Config() Config {
	return w.cfg
}

// EstimateTokens approximates the token count of s from its length.
func (w *Windower) EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(len(s)) / w.cfg.AvgTokenLength))
}

// CalculateWindowSize sizes a window for input, clamped to the configured
// bounds.
func (w *Windower) CalculateWindowSize(input string) int {
	size := int(math.Ceil(float64(w.EstimateTokens(input)) * sizeHeadroom))
	if size < w.cfg.MinWindowSize {
		return w.cfg.MinWindowSize
	}
	if size > w.cfg.MaxWindowSize {
		return w.cfg.MaxWindowSize
	}
	return size
}

// CreateWindows walks text producing windows of roughly windowSize bytes that
// overlap by OverlapRatio. Every interior boundary is moved forward to the
// next whitespace byte so no word is split. Empty text yields no windows and
// text no longer than windowSize yields a single window.
func (w *Windower) CreateWindows(text string, windowSize int) []types.Window {
	n := len(text)
	if n == 0 {
		return nil
	}
	if windowSize <= 0 || n <= windowSize {
		return []types.Window{{Text: text, Start: 0, End: n}}
	}

	overlap := int(math.Floor(float64(windowSize) * w.cfg.OverlapRatio))
	stride := windowSize - overlap
	if stride < 1 {
		stride = 1
	}

	var windows []types.Window
	start := 0
	for {
		end := start + windowSize
		if end >= n {
			end = n
		} else {
			end = nextSpace(text, end)
		}
		windows = append(windows, types.Window{Text: text[start:end], Start: start, End: end})
		if end >= n {
			break
		}

		next := nextSpace(text, start+stride)
		if next <= start {
			next = end
		}
		start = next
	}

	w.logger.Debug().
		Int("length", n).
		Int("window_size", windowSize).
		Int("overlap", overlap).
		Int("windows", len(windows)).
		Msg("created windows")
	return windows
}

// MergeOverlappingContent folds windows back into one text. Windows that still
// carry consistent offsets are spliced exactly; otherwise the longest
// word-boundary-safe suffix/prefix overlap is removed, and windows with no
// usable overlap are joined with a single space.
func (w *Windower) MergeOverlappingContent(windows []types.Window) string {
	if len(windows) == 0 {
		return ""
	}

	result := windows[0].Text
	positional := windows[0].HasSpan()
	spanStart, spanEnd := windows[0].Start, windows[0].End

	for _, next := range windows[1:] {
		if positional && next.HasSpan() && next.Start >= spanStart && next.Start <= spanEnd && next.End >= spanEnd {
			k := spanEnd - next.Start
			if k <= len(result) && strings.HasSuffix(result, next.Text[:k]) {
				result += next.Text[k:]
				spanStart, spanEnd = next.Start, next.End
				continue
			}
		}
		positional = false
		result = mergePair(result, next.Text)
	}
	return result
}

// MergeTexts folds plain strings using only the text-overlap heuristic.
func (w *Windower) MergeTexts(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	result := texts[0]
	for _, next := range texts[1:] {
		result = mergePair(result, next)
	}
	return result
}

// ProcessContext sizes, windows and optionally annotates text in one call.
func (w *Windower) ProcessContext(text string, opts ProcessOptions) []types.Window {
	size := opts.WindowSize
	if size <= 0 {
		size = w.CalculateWindowSize(text)
	}
	windows := w.CreateWindows(text, size)
	if opts.IncludeTokenCounts {
		for i := range windows {
			windows[i].TokenCount = w.EstimateTokens(windows[i].Text)
		}
	}
	return windows
}

func mergePair(result, next string) string {
	if next == "" {
		return result
	}
	if result == "" {
		return next
	}
	if l := findOverlap(result, next); l > 0 {
		return result + next[l:]
	}
	if endsWithSpace(result) || startsWithSpace(next) {
		return result + next
	}
	return result + " " + next
}

// findOverlap returns the length of the longest suffix of result that equals a
// prefix of next, is long enough to trust, and does not cut a word at either
// junction. It returns 0 when there is no such overlap.
func findOverlap(result, next string) int {
	minLen := int(math.Ceil(float64(len(next)) * minOverlapRatio))
	if minLen < minOverlap {
		minLen = minOverlap
	}
	maxLen := len(result)
	if len(next) < maxLen {
		maxLen = len(next)
	}
	for l := maxLen; l >= minLen; l-- {
		if result[len(result)-l:] != next[:l] {
			continue
		}
		if boundarySafe(result[:len(result)-l], next[:l], next[l:]) {
			return l
		}
	}
	return 0
}

// boundarySafe reports whether neither junction of the overlap joins two word
// characters.
func boundarySafe(before, overlap, after string) bool {
	if before != "" {
		last, _ := utf8.DecodeLastRuneInString(before)
		first, _ := utf8.DecodeRuneInString(overlap)
		if isWord(last) && isWord(first) {
			return false
		}
	}
	if after != "" {
		last, _ := utf8.DecodeLastRuneInString(overlap)
		first, _ := utf8.DecodeRuneInString(after)
		if isWord(last) && isWord(first) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// nextSpace returns the first index >= pos holding an ASCII whitespace byte,
// or len(text). ASCII bytes never occur inside a multi-byte UTF-8 sequence.
func nextSpace(text string, pos int) int {
	for pos < len(text) && !isSpace(text[pos]) {
		pos++
	}
	return pos
}

func endsWithSpace(s string) bool {
	return s != "" && isSpace(s[len(s)-1])
}

func startsWithSpace(s string) bool {
	return s != "" && isSpace(s[0])
}
