package ctxwindow

// ApproxTokenizer estimates token count as roughly four characters per
// token, the same rule of thumb Anthropic and OpenAI both publish for quick
// budget estimates. It is deliberately not model-exact; swap in a real BPE
// tokenizer where exactness matters more than startup cost.
type ApproxTokenizer struct{}

// CountTokens returns max(1, len(text)/4) for any non-empty text, and 0 for
// empty text.
func (ApproxTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
