package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/embeddinglab/wordvec-lab/internal/session"
	"github.com/embeddinglab/wordvec-lab/pkg/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sess := session.New(
		config.SessionConfig{BurstDeadline: 20 * time.Millisecond, TopRanks: 10},
		config.DefaultTraining(),
		nil,
	)
	h := New(sess, nil, nil)
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) session.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	return snap
}

func setupCorpus(t *testing.T, srv *httptest.Server, text string) {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/corpus", map[string]string{"text": text})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("corpus upload returned %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/v1/init", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("init returned %d", resp.StatusCode)
	}
}

func TestCorpusInitState(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/corpus", map[string]string{"text": "the quick brown fox\nthe lazy dog"})
	snap := decodeSnapshot(t, resp)
	if snap.NumSentences != 2 {
		t.Errorf("expected 2 sentences, got %d", snap.NumSentences)
	}

	resp = postJSON(t, srv.URL+"/api/v1/init", map[string]any{"hidden_size": 4, "seed": 7})
	snap = decodeSnapshot(t, resp)
	if snap.Phase != session.PhaseReady {
		t.Errorf("expected ready phase, got %q", snap.Phase)
	}
	if snap.VocabSize != 7 {
		t.Errorf("expected vocab size 7, got %d", snap.VocabSize)
	}

	stateResp, err := http.Get(srv.URL + "/api/v1/state")
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	snap = decodeSnapshot(t, stateResp)
	if snap.Phase != session.PhaseReady {
		t.Errorf("state endpoint disagrees on phase: %q", snap.Phase)
	}
}

func TestInitRejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/v1/init", map[string]any{"hiden_size": 4})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("misspelled field should be rejected, got %d", resp.StatusCode)
	}
}

func TestTrainEndpoint(t *testing.T) {
	srv := newTestServer(t)
	setupCorpus(t, srv, "a b c d\ne f g")

	resp := postJSON(t, srv.URL+"/api/v1/train", map[string]any{"iterations": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("train returned %d", resp.StatusCode)
	}
	snap := decodeSnapshot(t, resp)
	if snap.InstanceCount < 10 {
		t.Errorf("expected at least 10 instances, got %d", snap.InstanceCount)
	}
	if snap.Phase != session.PhasePaused {
		t.Errorf("expected paused phase, got %q", snap.Phase)
	}

	resp = postJSON(t, srv.URL+"/api/v1/train/continue", map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("continue returned %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTrainBeforeInitConflicts(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/v1/train", map[string]any{"iterations": 5})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("train before init should return 409, got %d", resp.StatusCode)
	}
}

func TestQueryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	setupCorpus(t, srv, "king queen man woman apple")

	resp := postJSON(t, srv.URL+"/api/v1/query", map[string]any{"terms": []string{"king", "-man"}})
	snap := decodeSnapshot(t, resp)
	if len(snap.QueryIn) != 2 {
		t.Errorf("expected 2 query terms, got %v", snap.QueryIn)
	}
	if len(snap.Records) == 0 {
		t.Error("expected visible records after setting the query")
	}

	resp = postJSON(t, srv.URL+"/api/v1/query", map[string]any{"terms": []string{"dragon"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown term should return 404, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/query/status", map[string]any{"term": "queen", "status": "good"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status update returned %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/query/status", map[string]any{"term": "queen", "status": "sideways"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status should return 400, got %d", resp.StatusCode)
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv := newTestServer(t)
	setupCorpus(t, srv, "alpha beta")

	resp, err := http.Get(srv.URL + "/api/v1/validate?term=alpha")
	if err != nil {
		t.Fatalf("validate request failed: %v", err)
	}
	defer resp.Body.Close()
	var v session.Validation
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding validation: %v", err)
	}
	if !v.Valid {
		t.Errorf("known term should validate: %+v", v)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/validate?term=-beta&signed=true")
	if err != nil {
		t.Fatalf("signed validate failed: %v", err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&v); err != nil {
		t.Fatalf("decoding validation: %v", err)
	}
	if !v.Valid {
		t.Errorf("signed known term should validate: %+v", v)
	}

	resp3, err := http.Get(srv.URL + "/api/v1/validate")
	if err != nil {
		t.Fatalf("missing-term validate failed: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("missing term should return 400, got %d", resp3.StatusCode)
	}
}

func TestRankingsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	setupCorpus(t, srv, "king queen man woman apple")

	resp, err := http.Get(srv.URL + "/api/v1/rankings?terms=king,-man")
	if err != nil {
		t.Fatalf("rankings request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rankings returned %d", resp.StatusCode)
	}
	var body struct {
		Version int `json:"version"`
		Ranking struct {
			QueryKey string `json:"query_key"`
			Records  []struct {
				Term string `json:"term"`
				Rank int    `json:"rank"`
			} `json:"records"`
		} `json:"ranking"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding rankings: %v", err)
	}
	if body.Ranking.QueryKey != "king,-man" {
		t.Errorf("unexpected query key %q", body.Ranking.QueryKey)
	}
	if len(body.Ranking.Records) == 0 {
		t.Error("expected ranked records")
	}

	resp2, err := http.Get(srv.URL + "/api/v1/rankings")
	if err != nil {
		t.Fatalf("empty rankings request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("missing terms should return 400, got %d", resp2.StatusCode)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/history?query=king&term=queen")
	if err != nil {
		t.Fatalf("history request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("history without postgres should return 503, got %d", resp.StatusCode)
	}
}

func TestCacheEndpointsWithoutRedis(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "disabled" {
		t.Errorf("expected disabled cache, got %v", body)
	}

	resp2 := postJSON(t, srv.URL+"/api/v1/cache/invalidate", map[string]any{})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("invalidate without redis should return 503, got %d", resp2.StatusCode)
	}
}

func TestAppendSentenceEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/corpus/sentence", map[string]string{"sentence": "hello world"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("append returned %d", resp.StatusCode)
	}
	var body map[string]int
	json.NewDecoder(resp.Body).Decode(&body)
	if body["num_sentences"] != 1 {
		t.Errorf("expected 1 sentence, got %d", body["num_sentences"])
	}

	resp2 := postJSON(t, srv.URL+"/api/v1/corpus/sentence", map[string]string{"sentence": "   "})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("blank sentence should return 400, got %d", resp2.StatusCode)
	}
}

func TestTrainNegativeIterationsDeadlineOnly(t *testing.T) {
	srv := newTestServer(t)
	setupCorpus(t, srv, "a b c d\ne f g")

	resp := postJSON(t, srv.URL+"/api/v1/train", map[string]any{"iterations": -1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("negative iterations should train deadline-only, got %d", resp.StatusCode)
	}
	snap := decodeSnapshot(t, resp)
	if snap.InstanceCount == 0 {
		t.Error("deadline-only burst should still train instances")
	}
	if snap.Phase != session.PhasePaused {
		t.Errorf("expected paused phase, got %q", snap.Phase)
	}
}
