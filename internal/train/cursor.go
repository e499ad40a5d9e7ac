package train

// Cursor tracks training progress. InstanceCount and EpochCount are
// monotonic; SentenceIndex wraps to 0 at the end of the corpus, incrementing
// EpochCount. LearningRate is recomputed from InstanceCount every sentence
// and is not independent state.
type Cursor struct {
	InstanceCount    int     `json:"instance_count"`
	WatchedInstances int     `json:"watched_instances"`
	SentenceIndex    int     `json:"sentence_index"`
	EpochCount       int     `json:"epoch_count"`
	LearningRate     float64 `json:"learning_rate"`
}

// learningRate anneals linearly from alpha to minAlpha over
// corpusSize * iterations instances. Once progress saturates the rate stays
// pinned at minAlpha; training is allowed to continue indefinitely past the
// configured number of epochs.
func learningRate(instanceCount, corpusSize, iterations int, alpha, minAlpha float64) float64 {
	denom := float64(corpusSize) * float64(iterations)
	if denom <= 0 {
		return minAlpha
	}
	progress := float64(instanceCount) / denom
	if progress > 1 {
		progress = 1
	}
	return alpha - (alpha-minAlpha)*progress
}
