package fastq

import (
	"strings"
	"testing"
)

func TestReaderBasic(t *testing.T) {
	data := "@read1\nACGT\n+\nIIII\n@read2\nTTTT\n+\nFFFF\n"
	r := NewReader(strings.NewReader(data))

	var recs []Record
	for r.Next() {
		recs = append(recs, r.Record())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("read %d records, want 2", len(recs))
	}
	if recs[0].Name != "read1" || string(recs[0].Sequence) != "ACGT" || string(recs[0].Quality) != "IIII" {
		t.Errorf("recs[0] = %+v", recs[0])
	}
	if recs[1].Name != "read2" || string(recs[1].Sequence) != "TTTT" {
		t.Errorf("recs[1] = %+v", recs[1])
	}
}

func TestReaderRejectsMissingHeaderPrefix(t *testing.T) {
	data := "read1\nACGT\n+\nIIII\n"
	r := NewReader(strings.NewReader(data))
	if r.Next() {
		t.Fatal("expected Next to fail on a missing '@' prefix")
	}
	if r.Err() == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestReaderRejectsMissingPlusLine(t *testing.T) {
	data := "@read1\nACGT\nX\nIIII\n"
	r := NewReader(strings.NewReader(data))
	if r.Next() {
		t.Fatal("expected Next to fail on a missing '+' separator")
	}
}

func TestReaderRejectsLengthMismatch(t *testing.T) {
	data := "@read1\nACGT\n+\nIII\n"
	r := NewReader(strings.NewReader(data))
	if r.Next() {
		t.Fatal("expected Next to fail when sequence and quality lengths differ")
	}
}

func TestReaderRejectsTruncatedRecord(t *testing.T) {
	data := "@read1\nACGT\n+\n"
	r := NewReader(strings.NewReader(data))
	if r.Next() {
		t.Fatal("expected Next to fail on a truncated final record")
	}
	if r.Err() == nil {
		t.Fatal("expected a non-nil error")
	}
}

func TestReaderEmptyInputIsCleanEOF(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	if r.Next() {
		t.Fatal("expected Next to return false on empty input")
	}
	if r.Err() != nil {
		t.Errorf("expected nil error on clean EOF, got %v", r.Err())
	}
}
