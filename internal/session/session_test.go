package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/query"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
)

func newTestSession() *Session {
	return New(
		config.SessionConfig{BurstDeadline: 20 * time.Millisecond, TopRanks: 10},
		config.DefaultTraining(),
		nil,
	)
}

func initTestSession(t *testing.T, text string) *Session {
	t.Helper()
	s := newTestSession()
	s.SetCorpus(text)
	if _, err := s.Init(s.Defaults()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return s
}

func TestInitBuildsVocabulary(t *testing.T) {
	s := newTestSession()
	snap := s.SetCorpus("the quick brown fox\nthe lazy dog")
	if snap.NumSentences != 2 {
		t.Errorf("expected 2 sentences, got %d", snap.NumSentences)
	}
	if snap.Phase != PhaseUninitialized {
		t.Errorf("setting the corpus must not initialize, phase is %q", snap.Phase)
	}

	snap, err := s.Init(s.Defaults())
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	// Six distinct words plus the sentinel; seven token occurrences.
	if snap.VocabSize != 7 {
		t.Errorf("expected vocab size 7, got %d", snap.VocabSize)
	}
	if snap.CorpusSize != 7 {
		t.Errorf("expected corpus size 7, got %d", snap.CorpusSize)
	}
	if snap.Phase != PhaseReady {
		t.Errorf("expected ready phase, got %q", snap.Phase)
	}
	if snap.InstanceCount != 0 || snap.EpochCount != 0 {
		t.Errorf("fresh session should have zero progress: %+v", snap)
	}
}

func TestInitRejectsBadConfig(t *testing.T) {
	s := newTestSession()
	s.SetCorpus("a b c")
	cfg := s.Defaults()
	cfg.HiddenSize = 0
	if _, err := s.Init(cfg); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected invalid-input error, got %v", err)
	}
}

func TestTrainBeforeInit(t *testing.T) {
	s := newTestSession()
	if _, err := s.Train(10, false); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("expected invalid-state error, got %v", err)
	}
	if _, err := s.TrainContinue(); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("expected invalid-state error from continue, got %v", err)
	}
}

func TestTrainOnEmptyCorpus(t *testing.T) {
	s := newTestSession()
	snap, err := s.Init(s.Defaults())
	if err != nil {
		t.Fatalf("init on empty corpus should succeed: %v", err)
	}
	if snap.VocabSize != 1 {
		t.Errorf("expected sentinel-only vocabulary, got size %d", snap.VocabSize)
	}
	if _, err := s.Train(10, false); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("expected invalid-state error, got %v", err)
	}
}

func TestTrainAdvancesAndPauses(t *testing.T) {
	s := initTestSession(t, "the quick brown fox\nthe lazy dog")
	snap, err := s.Train(10, false)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if snap.InstanceCount < 10 {
		t.Errorf("expected at least 10 instances, got %d", snap.InstanceCount)
	}
	if snap.Phase != PhasePaused {
		t.Errorf("expected paused phase after burst, got %q", snap.Phase)
	}

	before := snap.InstanceCount
	snap, err = s.Train(5, false)
	if err != nil {
		t.Fatalf("second train failed: %v", err)
	}
	if snap.InstanceCount < before+5 {
		t.Errorf("second burst should add 5 more instances: %d -> %d", before, snap.InstanceCount)
	}
}

func TestTrainContinueRunsToDeadline(t *testing.T) {
	s := initTestSession(t, "a b c d")
	snap, err := s.TrainContinue()
	if err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	if snap.InstanceCount == 0 {
		t.Error("continue should have trained something before the deadline")
	}
	if snap.Phase != PhasePaused {
		t.Errorf("expected paused phase, got %q", snap.Phase)
	}
}

func TestSetQueryIn(t *testing.T) {
	s := initTestSession(t, "king queen man woman\nking man")
	snap, err := s.SetQueryIn([]string{"king", "-man"})
	if err != nil {
		t.Fatalf("set query failed: %v", err)
	}
	if len(snap.QueryIn) != 2 || snap.QueryIn[0] != "king" || snap.QueryIn[1] != "-man" {
		t.Errorf("query-in should round-trip with signs: %v", snap.QueryIn)
	}
	if len(snap.Records) == 0 {
		t.Error("setting a query should produce visible records")
	}
	for _, rec := range snap.Records {
		if rec.Term == "king" || rec.Term == "man" {
			t.Errorf("query term %q must not be ranked", rec.Term)
		}
	}
}

func TestSetQueryInUnknownTerm(t *testing.T) {
	s := initTestSession(t, "a b c")
	if _, err := s.SetQueryIn([]string{"a", "dragon"}); !errors.Is(err, apperrors.ErrUnknownTerm) {
		t.Errorf("expected unknown-term error, got %v", err)
	}
	// The failed call must not leave a partial query behind.
	if snap := s.Snapshot(); len(snap.QueryIn) != 0 {
		t.Errorf("query-in should stay empty after a rejected update: %v", snap.QueryIn)
	}
}

func TestQueryBeforeInit(t *testing.T) {
	s := newTestSession()
	s.SetCorpus("a b")
	if _, err := s.SetQueryIn([]string{"a"}); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("expected invalid-state error, got %v", err)
	}
	if _, _, err := s.PeekRanking([]string{"a"}); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("expected invalid-state error from peek, got %v", err)
	}
}

func TestUpdateQueryStatus(t *testing.T) {
	s := initTestSession(t, "king queen man woman apple")
	if _, err := s.SetQueryIn([]string{"king"}); err != nil {
		t.Fatalf("set query failed: %v", err)
	}

	snap, err := s.UpdateQueryStatus("queen", "good")
	if err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	found := false
	for _, rec := range snap.Records {
		if rec.Term == "queen" {
			found = true
			if rec.Status != query.StatusGood {
				t.Errorf("expected good status, got %q", rec.Status)
			}
		}
	}
	if !found {
		t.Fatal("queen should be visible")
	}

	snap, err = s.UpdateQueryStatus("queen", "ignored")
	if err != nil {
		t.Fatalf("ignore failed: %v", err)
	}
	for _, rec := range snap.Records {
		if rec.Term == "queen" {
			t.Error("ignored term should leave the visible set")
		}
	}

	if _, err := s.UpdateQueryStatus("queen", "sideways"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected invalid-input error for unknown status, got %v", err)
	}
	if _, err := s.UpdateQueryStatus("dragon", "good"); !errors.Is(err, apperrors.ErrUnknownTerm) {
		t.Errorf("expected unknown-term error, got %v", err)
	}
}

func TestWatchedTermSurfaces(t *testing.T) {
	s := initTestSession(t, "king queen man woman apple banana cherry")
	if _, err := s.SetQueryIn([]string{"king"}); err != nil {
		t.Fatalf("set query failed: %v", err)
	}
	snap, err := s.UpdateQueryStatus("banana", "watched")
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	found := false
	for _, rec := range snap.Records {
		if rec.Term == "banana" {
			found = true
			if rec.Status != query.StatusWatched {
				t.Errorf("expected watched status, got %q", rec.Status)
			}
		}
	}
	if !found {
		t.Error("watched term should always be visible")
	}
}

func TestValidateTerm(t *testing.T) {
	s := newTestSession()
	if v := s.ValidateTerm("a", false); v.Valid {
		t.Error("validation should fail before init")
	}

	s.SetCorpus("alpha beta")
	if _, err := s.Init(s.Defaults()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if v := s.ValidateTerm("alpha", false); !v.Valid {
		t.Errorf("known term should validate: %+v", v)
	}
	if v := s.ValidateTerm("gamma", false); v.Valid {
		t.Error("unknown term should not validate")
	}
	if v := s.ValidateTerm("-beta", true); !v.Valid {
		t.Errorf("signed known term should validate: %+v", v)
	}
	if v := s.ValidateTerm("-beta", false); v.Valid {
		t.Error("unsigned validation must not strip the sign marker")
	}
}

func TestAppendSentence(t *testing.T) {
	s := newTestSession()
	count, err := s.AppendSentence("hello world")
	if err != nil || count != 1 {
		t.Fatalf("append failed: count=%d err=%v", count, err)
	}
	if _, err := s.AppendSentence("   "); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected invalid-input error for blank sentence, got %v", err)
	}
}

func TestRankHistoryAcrossBursts(t *testing.T) {
	s := initTestSession(t, "king queen man woman\nqueen king\nman woman")
	if _, err := s.SetQueryIn([]string{"king"}); err != nil {
		t.Fatalf("set query failed: %v", err)
	}
	first := s.Snapshot()

	snap, err := s.Train(20, false)
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	for _, rec := range snap.Records {
		if len(rec.History) < 1 {
			t.Errorf("record %q should carry history after a burst", rec.Term)
		}
	}
	// The re-rank after the burst observes at the new instance count, so any
	// term visible both times gains a second entry.
	for _, rec := range snap.Records {
		for _, prev := range first.Records {
			if rec.Term == prev.Term && len(rec.History) < 2 {
				t.Errorf("record %q visible across bursts should have 2+ entries, has %d", rec.Term, len(rec.History))
			}
		}
	}
}

type captureSink struct {
	bursts chan BurstEvent
	ranks  chan string
}

func (c *captureSink) PublishBurst(e BurstEvent) { c.bursts <- e }
func (c *captureSink) RecordRanks(queryKey string, iteration int, records []query.OutRecord) {
	c.ranks <- queryKey
}

func TestSinksReceiveEvents(t *testing.T) {
	s := initTestSession(t, "king queen man woman")
	sink := &captureSink{bursts: make(chan BurstEvent, 4), ranks: make(chan string, 4)}
	s.SetBurstSink(sink)
	s.SetRankSink(sink)

	if _, err := s.SetQueryIn([]string{"king"}); err != nil {
		t.Fatalf("set query failed: %v", err)
	}
	select {
	case key := <-sink.ranks:
		if key != "king" {
			t.Errorf("expected query key king, got %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("rank sink never invoked")
	}

	if _, err := s.Train(8, false); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	select {
	case e := <-sink.bursts:
		if e.InstancesTrained < 8 {
			t.Errorf("burst event should report trained instances, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("burst sink never invoked")
	}
}

func TestReInitResetsProgress(t *testing.T) {
	s := initTestSession(t, "a b c d e")
	if _, err := s.Train(10, false); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	snap, err := s.Init(s.Defaults())
	if err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if snap.InstanceCount != 0 || snap.EpochCount != 0 {
		t.Errorf("re-init should reset training progress: %+v", snap)
	}
	if snap.Phase != PhaseReady {
		t.Errorf("expected ready phase after re-init, got %q", snap.Phase)
	}
}

func TestSnapshotSafeForConcurrentEncoding(t *testing.T) {
	s := initTestSession(t, "the quick brown fox\nthe lazy dog")
	snap, err := s.SetQueryIn([]string{"fox"})
	if err != nil {
		t.Fatalf("set query failed: %v", err)
	}

	// Status updates recompute the ranking at an unchanged instance count, so
	// every pass coalesces into the same history entries the snapshot was
	// built from. Encoding the snapshot concurrently must still be safe; run
	// under -race.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if _, err := json.Marshal(snap); err != nil {
				t.Errorf("encoding snapshot: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if _, err := s.UpdateQueryStatus("dog", "watched"); err != nil {
				t.Errorf("status update: %v", err)
				return
			}
			if _, err := s.UpdateQueryStatus("dog", "normal"); err != nil {
				t.Errorf("status update: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	for _, rec := range snap.Records {
		if len(rec.History) != 1 {
			t.Errorf("snapshot history grew after it was taken: %+v", rec)
		}
	}
}
