// Copyright the NGS-Barcode-Count contributors.

// Package pipeline drives the concurrent decode: one reader goroutine
// feeds FASTQ records to a bounded channel, a pool of worker goroutines
// decode and tally them, and a WaitGroup signals completion.
package pipeline

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/Roco-scientist/NGS-Barcode-Count/counter"
	"github.com/Roco-scientist/NGS-Barcode-Count/decode"
	"github.com/Roco-scientist/NGS-Barcode-Count/fastq"
)

// progressEvery is the number of records between progress log callbacks.
const progressEvery = 1000000

// Options configures a Run.
type Options struct {
	Decoder *decode.Decoder
	Counter *counter.Counter

	// Workers is the number of decode goroutines. Zero selects
	// runtime.NumCPU()-1, floored at 1.
	Workers int

	// Progress, if non-nil, is called after every progressEvery records
	// have been read, with the cumulative count.
	Progress func(n int64)
}

// item is one FASTQ record in flight between the reader and a worker.
type item struct {
	seq, qual []byte
}

// Run streams records from r through the decoder and into the counter. It
// blocks until every record has been read and every worker has drained
// its input channel. The first read error, if any, is returned after the
// pipeline has fully drained.
func Run(r *fastq.Reader, opts Options) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}

	items := make(chan item, 64*workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for it := range items {
				dr, outcome := opts.Decoder.Decode(it.seq, it.qual)
				if outcome == decode.Matched {
					opts.Counter.Add(dr)
				} else {
					opts.Counter.Fail(outcome)
				}
			}
		}()
	}

	var n int64
	for r.Next() {
		rec := r.Record()
		items <- item{seq: rec.Sequence, qual: rec.Quality}
		n++
		if opts.Progress != nil && n%progressEvery == 0 {
			opts.Progress(n)
		}
	}
	close(items)
	wg.Wait()

	if err := r.Err(); err != nil {
		return errors.Wrap(err, "reading fastq records")
	}
	return nil
}
