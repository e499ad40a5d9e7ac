// Package session owns the interactive training session: request dispatch,
// phase transitions, and breakpoint scheduling. The engine underneath is
// single-threaded and non-reentrant; a mutex serializes every request so the
// trainer holds exclusive access to the embedding matrices during a burst and
// the ranker only ever reads between bursts.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/corpus"
	"github.com/embeddinglab/wordvec-lab/internal/model"
	"github.com/embeddinglab/wordvec-lab/internal/query"
	"github.com/embeddinglab/wordvec-lab/internal/random"
	"github.com/embeddinglab/wordvec-lab/internal/train"
	"github.com/embeddinglab/wordvec-lab/internal/vocab"
	"github.com/embeddinglab/wordvec-lab/pkg/apperrors"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
	"github.com/embeddinglab/wordvec-lab/pkg/metrics"
)

// statusIgnored is accepted by UpdateQueryStatus alongside the query.Status
// values; it moves a term to the ignored set instead of marking its record.
const statusIgnored = "ignored"

// Session is the single training session owned by the service process.
type Session struct {
	mu sync.Mutex

	cfg      config.SessionConfig
	defaults config.TrainingConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	corpus   *corpus.Corpus
	trainCfg config.TrainingConfig
	vocab    *vocab.Vocabulary
	table    *vocab.UnigramTable
	store    *model.Store
	trainer  *train.Trainer

	queryIn []query.SignedTerm
	watched map[string]struct{}
	ignored map[string]struct{}
	ledger  *query.Ledger
	ranker  *query.Ranker

	phase       Phase
	lastRanking *query.Ranking

	burstSink BurstSink
	rankSink  RankSink
}

// New creates an empty session in the Uninitialized phase.
func New(cfg config.SessionConfig, defaults config.TrainingConfig, m *metrics.Metrics) *Session {
	return &Session{
		cfg:      cfg,
		defaults: defaults,
		metrics:  m,
		logger:   slog.Default().With("component", "session"),
		corpus:   &corpus.Corpus{},
		watched:  make(map[string]struct{}),
		ignored:  make(map[string]struct{}),
		ledger:   query.NewLedger(),
		ranker:   query.NewRanker(cfg.TopRanks),
		phase:    PhaseUninitialized,
	}
}

// SetBurstSink attaches an optional burst-event consumer.
func (s *Session) SetBurstSink(sink BurstSink) {
	s.burstSink = sink
}

// SetRankSink attaches an optional rank-history consumer.
func (s *Session) SetRankSink(sink RankSink) {
	s.rankSink = sink
}

// SetCorpus replaces the corpus text. The new corpus takes effect at the
// next Init; an already-initialized session keeps training on the old one
// until then.
func (s *Session) SetCorpus(text string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = corpus.Parse(text)
	if s.metrics != nil {
		s.metrics.SentencesIngested.Add(float64(s.corpus.NumSentences()))
	}
	s.logger.Info("corpus set",
		"sentences", s.corpus.NumSentences(),
		"tokens", s.corpus.TokenCount(),
	)
	return s.snapshotLocked()
}

// AppendSentence adds one sentence to the pending corpus and returns the new
// sentence count. Blank lines are rejected as invalid input.
func (s *Session) AppendSentence(line string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.corpus.AppendSentence(line) {
		return s.corpus.NumSentences(), fmt.Errorf("%w: empty sentence", apperrors.ErrInvalidInput)
	}
	if s.metrics != nil {
		s.metrics.SentencesIngested.Inc()
	}
	return s.corpus.NumSentences(), nil
}

// Defaults returns the configured training defaults, for callers that let
// requests override individual hyperparameters.
func (s *Session) Defaults() config.TrainingConfig {
	return s.defaults
}

// Init builds the vocabulary and negative-sampling table from the current
// corpus, allocates and initializes the embedding matrices, and moves the
// session to Ready. An empty corpus yields a sentinel-only vocabulary: Init
// succeeds but training requests will fail with an invalid-state error.
func (s *Session) Init(cfg config.TrainingConfig) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseTraining {
		return Snapshot{}, fmt.Errorf("%w: cannot init during a training burst", apperrors.ErrInvalidState)
	}

	if err := config.Validate(cfg); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	rng := random.New(cfg.Seed)
	v := vocab.Build(s.corpus, cfg.MinCount)
	s.trainCfg = cfg
	s.vocab = v
	s.table = vocab.NewUnigramTable(v)
	s.store = model.NewStore(v.Size(), cfg.HiddenSize, rng)
	s.trainer = train.New(cfg, v, s.table, s.store, rng, s.corpus.Sentences())
	s.trainer.SetWatched(s.watchedIndicesLocked())
	s.lastRanking = nil
	s.phase = PhaseReady

	if s.metrics != nil {
		s.metrics.VocabularySize.Set(float64(v.Size()))
		s.metrics.LearningRate.Set(cfg.Alpha)
	}
	s.logger.Info("session initialized",
		"vocab_size", v.Size(),
		"corpus_size", v.CorpusSize(),
		"sentences", s.corpus.NumSentences(),
		"hidden_size", cfg.HiddenSize,
		"skip_gram", cfg.SkipGram,
	)
	if v.Size() <= 1 {
		s.logger.Warn("corpus is empty after pruning, training disabled until corpus is replaced")
	}
	return s.snapshotLocked(), nil
}

// Train starts a bounded training burst. With iterations > 0 the burst stops
// once that many additional instances have been trained (watched instances
// when watched is true); either way the configured wall-clock deadline
// applies. Breakpoints are evaluated on sentence boundaries only.
func (s *Session) Train(iterations int, watched bool) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady && s.phase != PhasePaused {
		return Snapshot{}, fmt.Errorf("%w: train requested in phase %s", apperrors.ErrInvalidState, s.phase)
	}
	cond := train.StopCondition{}
	if iterations > 0 {
		if watched {
			cond.TargetWatched = s.trainer.Cursor().WatchedInstances + iterations
		} else {
			cond.TargetInstances = s.trainer.Cursor().InstanceCount + iterations
		}
	}
	return s.runBurstLocked(cond)
}

// TrainContinue resumes training with deadline-only breakpoint semantics.
func (s *Session) TrainContinue() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady && s.phase != PhasePaused {
		return Snapshot{}, fmt.Errorf("%w: train requested in phase %s", apperrors.ErrInvalidState, s.phase)
	}
	return s.runBurstLocked(train.StopCondition{})
}

func (s *Session) runBurstLocked(cond train.StopCondition) (Snapshot, error) {
	if s.phase != PhaseReady && s.phase != PhasePaused {
		return Snapshot{}, fmt.Errorf("%w: train requested in phase %s", apperrors.ErrInvalidState, s.phase)
	}
	cond.Deadline = time.Now().Add(s.cfg.BurstDeadline)

	before := s.trainer.Cursor()
	s.phase = PhaseTraining
	start := time.Now()
	breakpoint, err := s.trainer.RunBurst(cond)
	duration := time.Since(start)
	s.phase = PhasePaused
	if err != nil {
		return Snapshot{}, err
	}

	after := s.trainer.Cursor()
	if s.metrics != nil {
		s.metrics.TrainInstancesTotal.Add(float64(after.InstanceCount - before.InstanceCount))
		s.metrics.TrainEpochsTotal.Add(float64(after.EpochCount - before.EpochCount))
		s.metrics.TrainBurstsTotal.WithLabelValues(string(breakpoint)).Inc()
		s.metrics.TrainBurstDuration.Observe(duration.Seconds())
		s.metrics.LearningRate.Set(after.LearningRate)
	}
	s.logger.Info("training burst complete",
		"breakpoint", breakpoint,
		"instances", after.InstanceCount-before.InstanceCount,
		"instance_count", after.InstanceCount,
		"epoch", after.EpochCount,
		"learning_rate", after.LearningRate,
		"duration_ms", duration.Milliseconds(),
	)

	if s.burstSink != nil {
		event := BurstEvent{
			Breakpoint:       string(breakpoint),
			InstanceCount:    after.InstanceCount,
			InstancesTrained: after.InstanceCount - before.InstanceCount,
			EpochCount:       after.EpochCount,
			LearningRate:     after.LearningRate,
			DurationMs:       duration.Milliseconds(),
			Timestamp:        time.Now().UTC().Unix(),
		}
		go s.burstSink.PublishBurst(event)
	}

	s.recomputeRankingLocked()
	return s.snapshotLocked(), nil
}

// SetQueryIn replaces the signed query-in term list and recomputes the
// ranking. Every term must be in the vocabulary after stripping its sign
// marker; the first unknown term aborts the call.
func (s *Session) SetQueryIn(raw []string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		return Snapshot{}, fmt.Errorf("%w: query requested before init", apperrors.ErrInvalidState)
	}
	if s.phase == PhaseTraining {
		return Snapshot{}, fmt.Errorf("%w: query requested during a training burst", apperrors.ErrInvalidState)
	}

	terms := make([]query.SignedTerm, 0, len(raw))
	for _, r := range raw {
		t := query.ParseSigned(r)
		if t.Word == "" {
			return Snapshot{}, fmt.Errorf("%w: empty query term", apperrors.ErrInvalidInput)
		}
		if _, ok := s.vocab.Lookup(t.Word); !ok {
			return Snapshot{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownTerm, t.Word)
		}
		terms = append(terms, t)
	}
	s.queryIn = terms
	s.trainer.SetWatched(s.watchedIndicesLocked())
	s.recomputeRankingLocked()
	return s.snapshotLocked(), nil
}

// UpdateQueryStatus marks a term good/bad/watched/normal, or moves it to the
// ignored set, then recomputes the ranking so the visible set reflects the
// change immediately.
func (s *Session) UpdateQueryStatus(term string, status string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		return Snapshot{}, fmt.Errorf("%w: status update before init", apperrors.ErrInvalidState)
	}
	if _, ok := s.vocab.Lookup(term); !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownTerm, term)
	}

	key := query.Key(s.queryIn)
	switch status {
	case statusIgnored:
		s.ignored[term] = struct{}{}
		delete(s.watched, term)
	case string(query.StatusWatched):
		s.watched[term] = struct{}{}
		delete(s.ignored, term)
		s.ledger.SetStatus(key, term, query.StatusWatched)
	case string(query.StatusNormal):
		delete(s.watched, term)
		delete(s.ignored, term)
		s.ledger.SetStatus(key, term, query.StatusNormal)
	case string(query.StatusGood), string(query.StatusBad):
		delete(s.ignored, term)
		s.ledger.SetStatus(key, term, query.Status(status))
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, status)
	}

	s.trainer.SetWatched(s.watchedIndicesLocked())
	s.recomputeRankingLocked()
	return s.snapshotLocked(), nil
}

// ValidateTerm checks a term against the vocabulary, stripping the leading
// sign marker first when signed is true. Unknown terms are a validation
// result, not an error.
func (s *Session) ValidateTerm(raw string, signed bool) Validation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		return Validation{Valid: false, Message: "vocabulary not built yet"}
	}
	word := raw
	if signed {
		word = query.ParseSigned(raw).Word
	}
	if word == "" {
		return Validation{Valid: false, Message: "empty term"}
	}
	if _, ok := s.vocab.Lookup(word); !ok {
		return Validation{Valid: false, Message: fmt.Sprintf("%q is not in the vocabulary", word)}
	}
	return Validation{Valid: true}
}

// PeekRanking ranks the vocabulary for an ad-hoc signed query without
// mutating any session state. It returns the ranking together with the
// instance count it was computed at, which callers use as a cache version.
func (s *Session) PeekRanking(raw []string) (*query.Ranking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		return nil, 0, fmt.Errorf("%w: ranking requested before init", apperrors.ErrInvalidState)
	}
	if s.phase == PhaseTraining {
		return nil, 0, fmt.Errorf("%w: ranking requested during a training burst", apperrors.ErrInvalidState)
	}
	terms := make([]query.SignedTerm, 0, len(raw))
	for _, r := range raw {
		terms = append(terms, query.ParseSigned(r))
	}
	start := time.Now()
	ranking, err := s.ranker.Peek(s.store, s.vocab, terms)
	if err != nil {
		return nil, 0, err
	}
	if s.metrics != nil {
		s.metrics.RankingsTotal.Inc()
		s.metrics.RankingDuration.Observe(time.Since(start).Seconds())
	}
	return ranking, s.trainer.Cursor().InstanceCount, nil
}

// Snapshot returns the current session state without mutating anything.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ready reports whether the session has been initialized.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != PhaseUninitialized
}

// recomputeRankingLocked refreshes the ranking and record ledger against the
// current embeddings. A session without query terms has nothing to rank.
func (s *Session) recomputeRankingLocked() {
	if len(s.queryIn) == 0 || s.vocab == nil {
		return
	}
	start := time.Now()
	iteration := s.trainer.Cursor().InstanceCount
	ranking, err := s.ranker.Rank(s.store, s.vocab, s.queryIn, s.watched, s.ignored, s.ledger, iteration)
	if err != nil {
		// Query terms were validated at SetQueryIn against the same
		// vocabulary, so this only fires after a re-init changed it.
		s.logger.Warn("ranking skipped", "error", err)
		s.lastRanking = nil
		return
	}
	s.lastRanking = ranking
	if s.metrics != nil {
		s.metrics.RankingsTotal.Inc()
		s.metrics.RankingDuration.Observe(time.Since(start).Seconds())
	}
	if s.rankSink != nil {
		records := make([]query.OutRecord, len(ranking.Records))
		copy(records, ranking.Records)
		go s.rankSink.RecordRanks(ranking.QueryKey, iteration, records)
	}
}

// watchedIndicesLocked resolves the trainer's watched index set: the query-in
// terms plus every explicitly watched term.
func (s *Session) watchedIndicesLocked() []int {
	if s.vocab == nil {
		return nil
	}
	seen := make(map[int]struct{})
	indices := make([]int, 0, len(s.queryIn)+len(s.watched))
	for _, t := range s.queryIn {
		if idx, ok := s.vocab.Lookup(t.Word); ok {
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				indices = append(indices, idx)
			}
		}
	}
	for w := range s.watched {
		if idx, ok := s.vocab.Lookup(w); ok {
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				indices = append(indices, idx)
			}
		}
	}
	return indices
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:        s.phase,
		NumSentences: s.corpus.NumSentences(),
		QueryIn:      make([]string, 0, len(s.queryIn)),
		Records:      []query.OutRecord{},
	}
	for _, t := range s.queryIn {
		snap.QueryIn = append(snap.QueryIn, t.String())
	}
	if s.vocab != nil {
		snap.VocabSize = s.vocab.Size()
		snap.CorpusSize = s.vocab.CorpusSize()
	}
	if s.trainer != nil {
		cursor := s.trainer.Cursor()
		snap.SentenceIndex = cursor.SentenceIndex
		snap.EpochCount = cursor.EpochCount
		snap.InstanceCount = cursor.InstanceCount
		snap.WatchedInstances = cursor.WatchedInstances
		snap.LearningRate = cursor.LearningRate
	}
	if s.lastRanking != nil {
		snap.QueryVector = s.lastRanking.QueryVector
		snap.Records = s.lastRanking.Records
	}
	return snap
}
