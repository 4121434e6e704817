// Package window splits long text into overlapping windows that fit a model's
// context and merges per-window text back together.
//
// # Basic Usage
//
//	w, err := window.New(window.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	windows := w.ProcessContext(document, window.ProcessOptions{
//	    IncludeTokenCounts: true,
//	})
//	for _, win := range windows {
//	    fmt.Printf("bytes %d-%d: ~%d tokens\n", win.Start, win.End, win.TokenCount)
//	}
//
//	original := w.MergeOverlappingContent(windows)
//
// # Sizing
//
// Token counts use a length heuristic (bytes / AvgTokenLength, default 4).
// CalculateWindowSize adds 20% headroom to the estimate and clamps it to
// [MinWindowSize, MaxWindowSize].
//
// # Boundaries
//
// Window offsets are byte offsets. Every interior boundary is moved forward
// to the next ASCII whitespace byte, so a window never splits a word or a
// multi-byte character. Consecutive windows overlap by roughly
// OverlapRatio * windowSize bytes.
//
// # Merging
//
// Windows that still carry their offsets are spliced exactly, so merging the
// output of CreateWindows returns the input. Text that has been transformed
// (for example one model response per window) is merged with MergeTexts, which
// drops the longest suffix/prefix overlap of at least max(10, 10%) bytes that
// starts and ends on a word boundary, and otherwise joins with a space.
package window
