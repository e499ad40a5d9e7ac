// Package corpus turns raw training text into sentences of whitespace-
// delimited tokens. Sentences are newline-separated; tokens keep their
// original case, matching what the vocabulary is built from.
package corpus

import (
	"strings"
)

// Corpus is an ordered collection of tokenized sentences.
type Corpus struct {
	sentences [][]string
}

// Parse splits text into sentences on newlines and tokenizes each on
// whitespace. Blank lines produce no sentence.
func Parse(text string) *Corpus {
	c := &Corpus{}
	for _, line := range strings.Split(text, "\n") {
		c.AppendSentence(line)
	}
	return c
}

// AppendSentence tokenizes a single line and appends it, reporting whether
// the line contained any tokens.
func (c *Corpus) AppendSentence(line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}
	c.sentences = append(c.sentences, tokens)
	return true
}

// NumSentences returns the number of non-empty sentences.
func (c *Corpus) NumSentences() int {
	return len(c.sentences)
}

// Sentence returns the tokens of sentence i.
func (c *Corpus) Sentence(i int) []string {
	return c.sentences[i]
}

// Sentences returns all tokenized sentences.
func (c *Corpus) Sentences() [][]string {
	return c.sentences
}

// TokenCount returns the total number of tokens across all sentences.
func (c *Corpus) TokenCount() int {
	total := 0
	for _, s := range c.sentences {
		total += len(s)
	}
	return total
}
