package types

// Window is a bounded slice of a longer text. Start and End are byte offsets
// into the source, so Text == source[Start:End] for windows produced by the
// windower.
type Window struct {
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	TokenCount int    `json:"token_count,omitempty"`
}

// HasSpan reports whether the window carries offsets consistent with its text.
func (w Window) HasSpan() bool {
	return w.End > w.Start && w.End-w.Start == len(w.Text)
}

// Len returns the window length in bytes.
func (w Window) Len() int {
	return len(w.Text)
}
