package session

import "testing"

func TestSentenceBoundary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want int
	}{
		{name: "period with space", in: "Hello there. How", want: 12},
		{name: "exclamation with newline", in: "Welcome!\nWe", want: 8},
		{name: "question with tab", in: "Ready?\tGo", want: 6},
		{name: "paragraph break", in: "First line\n\nsecond", want: 11},
		{name: "no boundary", in: "still generating", want: -1},
		{name: "trailing period only", in: "version 3.", want: -1},
		{name: "decimal number", in: "rate is 3.5 per", want: -1},
		{name: "empty", in: "", want: -1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := sentenceBoundary(tc.in); got != tc.want {
				t.Errorf("sentenceBoundary(%q): want %d, got %d", tc.in, tc.want, got)
			}
		})
	}
}

func TestSplitSentence(t *testing.T) {
	t.Parallel()

	sentence, rest, ok := splitSentence("Hello there. How can I help?")
	if !ok {
		t.Fatal("expected a complete sentence")
	}
	if sentence != "Hello there." {
		t.Errorf("sentence: got %q", sentence)
	}
	if rest != "How can I help?" {
		t.Errorf("rest: got %q", rest)
	}
}

func TestSplitSentence_Incomplete(t *testing.T) {
	t.Parallel()

	sentence, rest, ok := splitSentence("We have a deluxe room avail")
	if ok {
		t.Errorf("expected no boundary, got sentence %q", sentence)
	}
	if rest != "We have a deluxe room avail" {
		t.Errorf("rest should be untouched, got %q", rest)
	}
}

func TestSplitSentence_ConsumesAllSentences(t *testing.T) {
	t.Parallel()

	buf := "One. Two! Three? Four"
	var got []string
	for {
		sentence, rest, ok := splitSentence(buf)
		if !ok {
			break
		}
		buf = rest
		got = append(got, sentence)
	}

	want := []string{"One.", "Two!", "Three?"}
	if len(got) != len(want) {
		t.Fatalf("sentences: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: want %q, got %q", i, want[i], got[i])
		}
	}
	if buf != "Four" {
		t.Errorf("remainder: got %q", buf)
	}
}

func TestCleanForSpeech(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "  plain text  ", want: "plain text"},
		{in: "**bold** and *italic*", want: "bold and italic"},
		{in: "no markup", want: "no markup"},
		{in: "***", want: ""},
	}

	for _, tc := range cases {
		if got := cleanForSpeech(tc.in); got != tc.want {
			t.Errorf("cleanForSpeech(%q): want %q, got %q", tc.in, tc.want, got)
		}
	}
}
