package session

import "strings"

// Sentence chunking for the LLM-to-TTS pipeline. The reply is flushed to
// synthesis one sentence at a time so the first audio plays while the model
// is still generating.

// sentenceBoundary returns the index just past the first sentence boundary in
// s, or -1 when s contains no complete sentence yet. A boundary is '.', '!',
// or '?' immediately followed by whitespace, or a blank line (paragraph
// break). Trailing punctuation without following whitespace is not a boundary
// because the stream may still append to the token (e.g. "3.5").
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i + 1
			}
		case '\n':
			if s[i+1] == '\n' {
				return i + 1
			}
		}
	}
	return -1
}

// splitSentence cuts the first complete sentence off buf. It returns the
// cleaned sentence (may be empty when the boundary was only whitespace) and
// the remaining text with leading whitespace dropped. ok is false when buf
// holds no complete sentence.
func splitSentence(buf string) (sentence, rest string, ok bool) {
	idx := sentenceBoundary(buf)
	if idx < 0 {
		return "", buf, false
	}
	sentence = cleanForSpeech(buf[:idx])
	rest = strings.TrimLeft(buf[idx:], " \t\n\r")
	return sentence, rest, true
}

// cleanForSpeech prepares a text fragment for synthesis: markdown emphasis
// markers are dropped (the model occasionally emits **bold** or *italics*
// despite instructions, and the TTS voice would read the asterisks) and
// surrounding whitespace is trimmed.
func cleanForSpeech(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "*") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
