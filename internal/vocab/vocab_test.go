package vocab

import (
	"testing"

	"github.com/embeddinglab/wordvec-lab/internal/corpus"
)

func TestBuildSentinel(t *testing.T) {
	c := corpus.Parse("a b c")
	v := Build(c, 1)
	if v.Word(0) != NullWord {
		t.Fatalf("index 0 should be the sentinel, got %q", v.Word(0))
	}
	if v.Count(0) != 1 {
		t.Errorf("sentinel count should be 1, got %d", v.Count(0))
	}
	if idx, ok := v.Lookup(NullWord); !ok || idx != 0 {
		t.Errorf("sentinel lookup returned (%d, %v)", idx, ok)
	}
}

func TestBuildOrdering(t *testing.T) {
	// Counts: the=3, fox=2, dog=1, zebra=1. Ties break lexicographically.
	c := corpus.Parse("the fox the fox the\ndog zebra")
	v := Build(c, 1)

	want := []string{NullWord, "the", "fox", "dog", "zebra"}
	if v.Size() != len(want) {
		t.Fatalf("expected size %d, got %d", len(want), v.Size())
	}
	for i, w := range want {
		if v.Word(i) != w {
			t.Errorf("index %d: expected %q, got %q", i, w, v.Word(i))
		}
	}
	// Dense index permutation: every word maps back to its slot.
	for i := 0; i < v.Size(); i++ {
		idx, ok := v.Lookup(v.Word(i))
		if !ok || idx != i {
			t.Errorf("word %q: lookup returned (%d, %v), want %d", v.Word(i), idx, ok, i)
		}
	}
}

func TestBuildMinCount(t *testing.T) {
	c := corpus.Parse("common common common rare")
	v := Build(c, 2)
	if _, ok := v.Lookup("rare"); ok {
		t.Error("pruned word should not be in the vocabulary")
	}
	if _, ok := v.Lookup("common"); !ok {
		t.Error("surviving word missing from the vocabulary")
	}
	if v.Size() != 2 {
		t.Errorf("expected size 2 (sentinel + common), got %d", v.Size())
	}
	// CorpusSize counts surviving occurrences only, sentinel excluded.
	if v.CorpusSize() != 3 {
		t.Errorf("expected corpus size 3, got %d", v.CorpusSize())
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	v := Build(corpus.Parse(""), 1)
	if v.Size() != 1 {
		t.Errorf("empty corpus should yield sentinel-only vocabulary, got size %d", v.Size())
	}
	if v.CorpusSize() != 0 {
		t.Errorf("empty corpus should have corpus size 0, got %d", v.CorpusSize())
	}
}

func TestMapSentence(t *testing.T) {
	c := corpus.Parse("alpha beta beta")
	v := Build(c, 2)
	mapped := v.MapSentence([]string{"alpha", "beta", "gamma", "beta"})
	betaIdx, _ := v.Lookup("beta")
	if len(mapped) != 2 || mapped[0] != betaIdx || mapped[1] != betaIdx {
		t.Errorf("expected [%d %d], got %v", betaIdx, betaIdx, mapped)
	}
}
