// Copyright the NGS-Barcode-Count contributors.

// Package counter accumulates per-sample counted-barcode tallies and
// pipeline-wide outcome statistics across concurrent worker goroutines. A
// Counter is safe for concurrent use: every mutation is a single
// mutex-protected or atomic transition, so a random-barcode (UMI)
// check-then-insert can never race against itself.
package counter

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Roco-scientist/NGS-Barcode-Count/decode"
)

// Stats holds the mutually-exclusive outcome tallies, one counter per
// decode.Outcome, updated with atomic adds so workers never block on each
// other to report a classification.
type Stats struct {
	matched           int64
	constantMismatch  int64
	sampleMismatch    int64
	countedMismatch   int64
	lowQuality        int64
	duplicate         int64 // matched reads dropped by random-barcode dedup
}

// Record increments the counter for outcome.
func (s *Stats) Record(outcome decode.Outcome) {
	switch outcome {
	case decode.Matched:
		atomic.AddInt64(&s.matched, 1)
	case decode.ConstantMismatch:
		atomic.AddInt64(&s.constantMismatch, 1)
	case decode.SampleMismatch:
		atomic.AddInt64(&s.sampleMismatch, 1)
	case decode.CountedMismatch:
		atomic.AddInt64(&s.countedMismatch, 1)
	case decode.LowQuality:
		atomic.AddInt64(&s.lowQuality, 1)
	}
}

// RecordDuplicate marks a Matched read that was subsequently dropped by
// random-barcode deduplication.
func (s *Stats) RecordDuplicate() { atomic.AddInt64(&s.duplicate, 1) }

// Total returns the number of reads processed across all outcomes.
func (s *Stats) Total() int64 {
	return atomic.LoadInt64(&s.matched) + atomic.LoadInt64(&s.constantMismatch) +
		atomic.LoadInt64(&s.sampleMismatch) + atomic.LoadInt64(&s.countedMismatch) +
		atomic.LoadInt64(&s.duplicate) + atomic.LoadInt64(&s.lowQuality)
}

func (s *Stats) Matched() int64          { return atomic.LoadInt64(&s.matched) }
func (s *Stats) ConstantMismatch() int64 { return atomic.LoadInt64(&s.constantMismatch) }
func (s *Stats) SampleMismatch() int64   { return atomic.LoadInt64(&s.sampleMismatch) }
func (s *Stats) CountedMismatch() int64  { return atomic.LoadInt64(&s.countedMismatch) }
func (s *Stats) LowQuality() int64       { return atomic.LoadInt64(&s.lowQuality) }
func (s *Stats) Duplicate() int64        { return atomic.LoadInt64(&s.duplicate) }

// sampleCounts is the per-sample mutable state: a tally of counted-barcode
// tuples and, when the scheme declares a Random segment, the set of random
// barcodes already seen per tuple.
type sampleCounts struct {
	mu     sync.Mutex
	counts map[string]int64
	seen   map[string]map[string]bool // tuple key -> set of random barcodes seen
}

// Counter is the shared accumulator a pipeline's worker goroutines report
// decoded reads to.
type Counter struct {
	Stats Stats

	dedup bool // true if the scheme has a Random segment

	mu      sync.Mutex // guards samples map insertion only
	samples map[string]*sampleCounts
}

// New returns an empty Counter. dedup enables random-barcode
// deduplication: a second read with the same sample, counted-barcode
// tuple, and random barcode is tallied as a Duplicate rather than counted
// again.
func New(dedup bool) *Counter {
	return &Counter{dedup: dedup, samples: map[string]*sampleCounts{}}
}

// Add records one matched, decoded read. It is safe to call concurrently
// from any number of goroutines.
func (c *Counter) Add(dr decode.DecodedRead) {
	sc := c.sampleFor(dr.SampleID)
	key := tupleKey(dr.Counted)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if c.dedup && dr.HasRandom {
		seen, ok := sc.seen[key]
		if !ok {
			seen = map[string]bool{}
			sc.seen[key] = seen
		}
		if seen[dr.Random] {
			// Accepted by the decoder, but a duplicate of an
			// already-counted fingerprint: tallied as Duplicate, not
			// Matched, so stats.total still sums its parts (P2).
			c.Stats.RecordDuplicate()
			return
		}
		seen[dr.Random] = true
	}

	c.Stats.Record(decode.Matched)
	sc.counts[key]++
}

// Fail records a classification failure (any non-Matched outcome).
func (c *Counter) Fail(outcome decode.Outcome) {
	c.Stats.Record(outcome)
}

// sampleFor returns the sampleCounts for sampleID, creating it under lock
// if this is the first read seen for that sample.
func (c *Counter) sampleFor(sampleID string) *sampleCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.samples[sampleID]
	if !ok {
		sc = &sampleCounts{counts: map[string]int64{}, seen: map[string]map[string]bool{}}
		c.samples[sampleID] = sc
	}
	return sc
}

// SampleIDs returns every sample that has received at least one matched
// read, in no particular order.
func (c *Counter) SampleIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.samples))
	for id := range c.samples {
		ids = append(ids, id)
	}
	return ids
}

// Counts returns a snapshot of sampleID's counted-barcode tuples and their
// tallies. Tuple keys are joined with tab, matching tupleKey.
func (c *Counter) Counts(sampleID string) map[string]int64 {
	c.mu.Lock()
	sc, ok := c.samples[sampleID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make(map[string]int64, len(sc.counts))
	for k, v := range sc.counts {
		out[k] = v
	}
	return out
}

// SplitTuple reverses tupleKey.
func SplitTuple(key string) []string {
	return strings.Split(key, "\t")
}

func tupleKey(counted []string) string {
	return strings.Join(counted, "\t")
}
