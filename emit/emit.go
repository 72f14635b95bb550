// Copyright the NGS-Barcode-Count contributors.

// Package emit writes a Counter's accumulated tallies to the on-disk
// output surface: per-sample count CSVs, an optional merged multi-sample
// CSV, optional singleton/pair enrichment tables, and an append-only run
// statistics log.
package emit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Roco-scientist/NGS-Barcode-Count/counter"
	"github.com/Roco-scientist/NGS-Barcode-Count/dict"
)

// Options configures where and how a Counter's results are written.
type Options struct {
	OutputDir string
	Prefix    string

	// K is the number of counted slots (the scheme's NumCounted).
	K int

	// CountedDict, if non-nil, supplies the human-readable name for each
	// DNA string cell. Absent a dict, cells are the raw DNA strings.
	CountedDict *dict.CountedDict

	Merge  bool
	Enrich bool
}

// WriteAll writes every enabled output file for c and returns the list of
// paths written, in the order they were created.
func WriteAll(c *counter.Counter, opts Options) ([]string, error) {
	var written []string

	samples := c.SampleIDs()
	sort.Strings(samples)

	for _, sampleID := range samples {
		path, err := writeSampleCounts(c, sampleID, opts)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if opts.Merge {
		path, err := writeMerged(c, samples, opts)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if opts.Enrich && opts.K >= 2 {
		paths, err := writeEnrich(c, samples, opts)
		if err != nil {
			return written, err
		}
		written = append(written, paths...)
	}

	return written, nil
}

// names maps a raw DNA-string tuple to its display names, substituting the
// CountedDict's human-readable name for each slot when one is configured.
func (o Options) names(tuple []string) []string {
	if o.CountedDict == nil {
		return tuple
	}
	out := make([]string, len(tuple))
	for i, dna := range tuple {
		if name, ok := o.CountedDict.ByBarcode(i+1, dna); ok {
			out[i] = name
		} else {
			out[i] = dna
		}
	}
	return out
}

func countsHeader(k int) []string {
	h := make([]string, 0, k+1)
	for i := 1; i <= k; i++ {
		h = append(h, fmt.Sprintf("Barcode_%d", i))
	}
	return append(h, "Count")
}

// sortedTuples returns the tuple keys of counts in lexicographic order,
// so every output file is reproducible regardless of map iteration order.
func sortedTuples(counts map[string]int64) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o Options) path(suffix string) string {
	return filepath.Join(o.OutputDir, o.Prefix+suffix)
}

func newCSVWriter(path string) (*os.File, *csv.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "creating %s", path)
	}
	return f, csv.NewWriter(f), nil
}

func writeSampleCounts(c *counter.Counter, sampleID string, opts Options) (string, error) {
	path := opts.path(fmt.Sprintf("_%s_counts.csv", sampleID))
	f, w, err := newCSVWriter(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := w.Write(countsHeader(opts.K)); err != nil {
		return "", errors.Wrap(err, "writing header")
	}

	counts := c.Counts(sampleID)
	for _, key := range sortedTuples(counts) {
		tuple := counter.SplitTuple(key)
		row := append(opts.names(tuple), strconv.FormatInt(counts[key], 10))
		if err := w.Write(row); err != nil {
			return "", errors.Wrapf(err, "writing row for sample %s", sampleID)
		}
	}
	w.Flush()
	return path, w.Error()
}

func writeMerged(c *counter.Counter, samples []string, opts Options) (string, error) {
	path := opts.path("_counts.all.csv")
	f, w, err := newCSVWriter(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := countsHeader(opts.K)
	header = header[:len(header)-1] // drop the single "Count" column
	header = append(header, samples...)
	if err := w.Write(header); err != nil {
		return "", errors.Wrap(err, "writing header")
	}

	perSample := make([]map[string]int64, len(samples))
	union := map[string]bool{}
	for i, sampleID := range samples {
		perSample[i] = c.Counts(sampleID)
		for key := range perSample[i] {
			union[key] = true
		}
	}

	keys := make([]string, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tuple := counter.SplitTuple(key)
		row := opts.names(tuple)
		for _, counts := range perSample {
			row = append(row, strconv.FormatInt(counts[key], 10))
		}
		if err := w.Write(row); err != nil {
			return "", errors.Wrap(err, "writing merged row")
		}
	}
	w.Flush()
	return path, w.Error()
}

// writeEnrich writes, for every sample, a singleton count table per
// counted slot (summed across the other slots) and, when K >= 3, a pair
// table for every unordered pair of slots.
func writeEnrich(c *counter.Counter, samples []string, opts Options) ([]string, error) {
	var written []string

	for _, sampleID := range samples {
		counts := c.Counts(sampleID)

		for slot := 1; slot <= opts.K; slot++ {
			path, err := writeSingletonTable(sampleID, slot, counts, opts)
			if err != nil {
				return written, err
			}
			written = append(written, path)
		}

		if opts.K >= 3 {
			for i := 1; i <= opts.K; i++ {
				for j := i + 1; j <= opts.K; j++ {
					path, err := writePairTable(sampleID, i, j, counts, opts)
					if err != nil {
						return written, err
					}
					written = append(written, path)
				}
			}
		}
	}

	return written, nil
}

func writeSingletonTable(sampleID string, slot int, counts map[string]int64, opts Options) (string, error) {
	path := opts.path(fmt.Sprintf("_%s_Barcode_%d_counts.csv", sampleID, slot))
	f, w, err := newCSVWriter(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := w.Write([]string{fmt.Sprintf("Barcode_%d", slot), "Count"}); err != nil {
		return "", errors.Wrap(err, "writing header")
	}

	sums := map[string]int64{}
	for key, n := range counts {
		tuple := counter.SplitTuple(key)
		sums[tuple[slot-1]] += n
	}
	for _, dna := range sortedStrings(sums) {
		name := dna
		if opts.CountedDict != nil {
			if n, ok := opts.CountedDict.ByBarcode(slot, dna); ok {
				name = n
			}
		}
		if err := w.Write([]string{name, strconv.FormatInt(sums[dna], 10)}); err != nil {
			return "", errors.Wrap(err, "writing singleton row")
		}
	}
	w.Flush()
	return path, w.Error()
}

func writePairTable(sampleID string, i, j int, counts map[string]int64, opts Options) (string, error) {
	path := opts.path(fmt.Sprintf("_%s_Barcode_%d_Barcode_%d_counts.csv", sampleID, i, j))
	f, w, err := newCSVWriter(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := w.Write([]string{fmt.Sprintf("Barcode_%d", i), fmt.Sprintf("Barcode_%d", j), "Count"}); err != nil {
		return "", errors.Wrap(err, "writing header")
	}

	type pairKey struct{ a, b string }
	sums := map[pairKey]int64{}
	for key, n := range counts {
		tuple := counter.SplitTuple(key)
		sums[pairKey{tuple[i-1], tuple[j-1]}] += n
	}

	pairs := make([]pairKey, 0, len(sums))
	for p := range sums {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].a != pairs[y].a {
			return pairs[x].a < pairs[y].a
		}
		return pairs[x].b < pairs[y].b
	})

	for _, p := range pairs {
		nameA, nameB := p.a, p.b
		if opts.CountedDict != nil {
			if n, ok := opts.CountedDict.ByBarcode(i, p.a); ok {
				nameA = n
			}
			if n, ok := opts.CountedDict.ByBarcode(j, p.b); ok {
				nameB = n
			}
		}
		row := []string{nameA, nameB, strconv.FormatInt(sums[p], 10)}
		if err := w.Write(row); err != nil {
			return "", errors.Wrap(err, "writing pair row")
		}
	}
	w.Flush()
	return path, w.Error()
}

func sortedStrings(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppendStats appends a run summary to barcode_stats.txt in opts.OutputDir,
// creating it if absent. Existing content is never truncated: successive
// runs accumulate a history.
func AppendStats(stats *counter.Stats, elapsed time.Duration, opts Options) error {
	path := filepath.Join(opts.OutputDir, "barcode_stats.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f,
		"run %s\ntotal\t%d\nmatched\t%d\nconstant_mismatch\t%d\nsample_mismatch\t%d\ncounted_mismatch\t%d\nduplicates\t%d\nlow_quality\t%d\nelapsed\t%s\n\n",
		time.Now().Format(time.RFC3339),
		stats.Total(), stats.Matched(), stats.ConstantMismatch(), stats.SampleMismatch(),
		stats.CountedMismatch(), stats.Duplicate(), stats.LowQuality(), elapsed,
	)
	if err != nil {
		return errors.Wrap(err, "writing barcode_stats.txt")
	}
	return nil
}
