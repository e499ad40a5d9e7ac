package session

import (
	"github.com/embeddinglab/wordvec-lab/internal/query"
)

// Phase is the session's position in the
// Uninitialized -> Ready -> (Training <-> Paused) state machine.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseReady         Phase = "ready"
	PhaseTraining      Phase = "training"
	PhasePaused        Phase = "paused"
)

// Snapshot is the full session state relayed to the UI layer after every
// operation. It is the sole channel by which the engine reports progress.
type Snapshot struct {
	Phase            Phase             `json:"phase"`
	VocabSize        int               `json:"vocab_size"`
	NumSentences     int               `json:"num_sentences"`
	CorpusSize       int               `json:"corpus_size"`
	SentenceIndex    int               `json:"sentence_index"`
	EpochCount       int               `json:"epoch_count"`
	InstanceCount    int               `json:"instance_count"`
	WatchedInstances int               `json:"watched_instances"`
	LearningRate     float64           `json:"learning_rate"`
	QueryIn          []string          `json:"query_in"`
	QueryVector      []float64         `json:"query_vector,omitempty"`
	Records          []query.OutRecord `json:"records"`
}

// Validation is the inline result of a term-in-vocabulary check. Unknown
// terms are reported here rather than raised as hard errors so the caller
// can render them next to the input field.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// BurstEvent summarizes one completed training burst for downstream
// consumers.
type BurstEvent struct {
	Breakpoint       string  `json:"breakpoint"`
	InstanceCount    int     `json:"instance_count"`
	InstancesTrained int     `json:"instances_trained"`
	EpochCount       int     `json:"epoch_count"`
	LearningRate     float64 `json:"learning_rate"`
	DurationMs       int64   `json:"duration_ms"`
	Timestamp        int64   `json:"timestamp"`
}

// BurstSink receives burst summaries after each training burst.
type BurstSink interface {
	PublishBurst(event BurstEvent)
}

// RankSink receives the surfaced records after each ranking pass.
type RankSink interface {
	RecordRanks(queryKey string, iteration int, records []query.OutRecord)
}
