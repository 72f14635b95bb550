// Copyright 2017, Kerby Shedden and the Muscato contributors.
// Copyright the NGS-Barcode-Count contributors.

// Package fastq reads FASTQ records from an already-decompressed stream.
package fastq

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Record is one FASTQ entry: a header, its sequence, and the aligned
// Phred+33 quality string. Sequence and Quality are always equal length.
type Record struct {
	Name     string
	Sequence []byte
	Quality  []byte
}

// MalformedRecordError reports a FASTQ record that doesn't conform to the
// four-line format: header, sequence, '+' separator, quality.
type MalformedRecordError struct {
	LineNum int
	Reason  string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed fastq record at line %d: %s", e.LineNum, e.Reason)
}

// Reader scans FASTQ records, one four-line block at a time, mirroring
// bufio.Scanner's Scan/err-is-terminal idiom.
type Reader struct {
	scanner *bufio.Scanner
	lineNum int
	rec     Record
	err     error
}

// NewReader wraps r, which must already be plaintext (the caller is
// responsible for gzip/snappy decompression based on file suffix).
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{scanner: scanner}
}

// Next advances to the next record, returning false at EOF or on the
// first malformed record; callers should check Err after a false return.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	lines := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				r.err = err
			} else if i != 0 {
				r.err = &MalformedRecordError{LineNum: r.lineNum + 1, Reason: "truncated record at end of file"}
			}
			return false
		}
		r.lineNum++
		lines = append(lines, r.scanner.Text())
	}

	header, seq, plus, qual := lines[0], lines[1], lines[2], lines[3]
	if !strings.HasPrefix(header, "@") {
		r.err = &MalformedRecordError{LineNum: r.lineNum - 3, Reason: fmt.Sprintf("expected header starting with '@', got %q", header)}
		return false
	}
	if !strings.HasPrefix(plus, "+") {
		r.err = &MalformedRecordError{LineNum: r.lineNum - 1, Reason: fmt.Sprintf("expected '+' separator, got %q", plus)}
		return false
	}
	if len(seq) != len(qual) {
		r.err = &MalformedRecordError{LineNum: r.lineNum - 2, Reason: fmt.Sprintf("sequence length %d does not match quality length %d", len(seq), len(qual))}
		return false
	}

	r.rec = Record{Name: strings.TrimPrefix(header, "@"), Sequence: []byte(seq), Quality: []byte(qual)}
	return true
}

// Record returns the record populated by the most recent successful Next.
func (r *Reader) Record() Record { return r.rec }

// Err returns the first error encountered, or nil if Next returned false
// because the stream was exhausted cleanly.
func (r *Reader) Err() error { return r.err }
