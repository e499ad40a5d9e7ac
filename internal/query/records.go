package query

import (
	"strings"
)

// Status is the caller-assigned marker on a surfaced term.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusGood    Status = "good"
	StatusBad     Status = "bad"
	StatusWatched Status = "watched"
)

// ValidStatus reports whether s is a recognized status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNormal, StatusGood, StatusBad, StatusWatched:
		return true
	}
	return false
}

// HistoryEntry is one rank observation. Iteration is the instance count at
// which the rank was recorded.
type HistoryEntry struct {
	Rank      int `json:"rank"`
	Iteration int `json:"iteration"`
}

// OutRecord tracks one surfaced term's rank for a given query, across
// training bursts and for as long as the process lives.
type OutRecord struct {
	Term    string         `json:"term"`
	Status  Status         `json:"status"`
	Rank    int            `json:"rank"`
	History []HistoryEntry `json:"history"`
}

// observe sets the current rank and appends a history entry, coalescing with
// the previous entry when it shares the same iteration (last write wins).
func (r *OutRecord) observe(rank, iteration int) {
	r.Rank = rank
	if n := len(r.History); n > 0 && r.History[n-1].Iteration == iteration {
		r.History[n-1].Rank = rank
		return
	}
	r.History = append(r.History, HistoryEntry{Rank: rank, Iteration: iteration})
}

// clone returns a copy whose History shares no backing storage with r, so
// callers can hold the result while the ledger keeps coalescing entries in
// place.
func (r *OutRecord) clone() OutRecord {
	out := *r
	out.History = append([]HistoryEntry(nil), r.History...)
	return out
}

// SignedTerm is a query-in term with its sign: Negate subtracts the term's
// vector from the composed query instead of adding it.
type SignedTerm struct {
	Word   string `json:"word"`
	Negate bool   `json:"negate"`
}

// ParseSigned strips the leading sign marker from a raw query-in term.
func ParseSigned(raw string) SignedTerm {
	if strings.HasPrefix(raw, "-") {
		return SignedTerm{Word: raw[1:], Negate: true}
	}
	return SignedTerm{Word: raw}
}

// String renders the term with its sign marker.
func (t SignedTerm) String() string {
	if t.Negate {
		return "-" + t.Word
	}
	return t.Word
}

// Key builds the immutable, order-preserving composite key identifying a
// signed query-in list. Records are looked up by this key, so redefining the
// same query later resumes its accumulated history.
func Key(terms []SignedTerm) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// Ledger holds the per-query OutRecord sets. Records persist across query
// redefinitions and accumulate rank history for the process lifetime.
type Ledger struct {
	records map[string]map[string]*OutRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]map[string]*OutRecord)}
}

// findOrCreate returns the record for term under queryKey, creating it with
// StatusNormal when absent.
func (l *Ledger) findOrCreate(queryKey, term string) *OutRecord {
	set, ok := l.records[queryKey]
	if !ok {
		set = make(map[string]*OutRecord)
		l.records[queryKey] = set
	}
	rec, ok := set[term]
	if !ok {
		rec = &OutRecord{Term: term, Status: StatusNormal}
		set[term] = rec
	}
	return rec
}

// Record returns the existing record for term under queryKey, or nil.
func (l *Ledger) Record(queryKey, term string) *OutRecord {
	set, ok := l.records[queryKey]
	if !ok {
		return nil
	}
	return set[term]
}

// SetStatus marks the term's record under queryKey, creating it if needed.
func (l *Ledger) SetStatus(queryKey, term string, status Status) *OutRecord {
	rec := l.findOrCreate(queryKey, term)
	rec.Status = status
	return rec
}
