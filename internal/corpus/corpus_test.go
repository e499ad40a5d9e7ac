package corpus

import (
	"testing"
)

func TestParse(t *testing.T) {
	c := Parse("the quick brown fox\n\nthe lazy dog\n")
	if got := c.NumSentences(); got != 2 {
		t.Fatalf("expected 2 sentences, got %d", got)
	}
	if got := c.TokenCount(); got != 7 {
		t.Errorf("expected 7 tokens, got %d", got)
	}
	first := c.Sentence(0)
	if len(first) != 4 || first[0] != "the" || first[3] != "fox" {
		t.Errorf("unexpected first sentence: %v", first)
	}
}

func TestParseEmpty(t *testing.T) {
	c := Parse("")
	if got := c.NumSentences(); got != 0 {
		t.Errorf("expected 0 sentences from empty text, got %d", got)
	}
	c = Parse("\n\n   \n\t\n")
	if got := c.NumSentences(); got != 0 {
		t.Errorf("expected 0 sentences from whitespace-only text, got %d", got)
	}
}

func TestAppendSentence(t *testing.T) {
	c := &Corpus{}
	if !c.AppendSentence("hello world") {
		t.Fatal("expected non-empty sentence to be accepted")
	}
	if c.AppendSentence("   ") {
		t.Fatal("expected blank sentence to be rejected")
	}
	if c.AppendSentence("") {
		t.Fatal("expected empty sentence to be rejected")
	}
	if got := c.NumSentences(); got != 1 {
		t.Errorf("expected 1 sentence, got %d", got)
	}
}

func TestTokenizationKeepsCase(t *testing.T) {
	c := Parse("Hello HELLO hello")
	s := c.Sentence(0)
	if s[0] != "Hello" || s[1] != "HELLO" || s[2] != "hello" {
		t.Errorf("tokens should keep case: %v", s)
	}
}
