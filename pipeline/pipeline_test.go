package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Roco-scientist/NGS-Barcode-Count/counter"
	"github.com/Roco-scientist/NGS-Barcode-Count/decode"
	"github.com/Roco-scientist/NGS-Barcode-Count/dict"
	"github.com/Roco-scientist/NGS-Barcode-Count/fastq"
	"github.com/Roco-scientist/NGS-Barcode-Count/scheme"
)

func testDecoder(t *testing.T) *decode.Decoder {
	t.Helper()
	s, err := scheme.Parse(strings.NewReader("ATCG\n[4]\nCG\n{3}\n(3)\nGC\n"))
	if err != nil {
		t.Fatalf("scheme.Parse failed: %v", err)
	}
	sampleDict, err := dict.LoadBarcodeDict(strings.NewReader("AAAA,S1\nTTTT,S2\n"), 4)
	if err != nil {
		t.Fatalf("LoadBarcodeDict failed: %v", err)
	}
	countedDict, err := dict.LoadCountedDict(strings.NewReader("GGG,B1,1\n"), []int{3})
	if err != nil {
		t.Fatalf("LoadCountedDict failed: %v", err)
	}
	return &decode.Decoder{Scheme: s, SampleDict: sampleDict, CountedDict: countedDict, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
}

func fastqText(reads map[string]string) string {
	var b strings.Builder
	i := 0
	for name, seq := range reads {
		fmt.Fprintf(&b, "@%s\n%s\n+\n%s\n", name, seq, strings.Repeat("I", len(seq)))
		i++
	}
	return b.String()
}

func TestRunTalliesMatchedAndFailedReads(t *testing.T) {
	d := testDecoder(t)
	c := counter.New(false)

	reads := map[string]string{
		"matched":   buildRead("AAAA", []string{"GGG"}, "AAA"),
		"sample_mm": buildRead("CCCC", []string{"GGG"}, "AAA"),
	}
	r := fastq.NewReader(strings.NewReader(fastqText(reads)))

	if err := Run(r, Options{Decoder: d, Counter: c, Workers: 2}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if c.Stats.Matched() != 1 {
		t.Errorf("Matched = %d, want 1", c.Stats.Matched())
	}
	if c.Stats.SampleMismatch() != 1 {
		t.Errorf("SampleMismatch = %d, want 1", c.Stats.SampleMismatch())
	}
}

func TestRunDefaultsWorkerCount(t *testing.T) {
	d := testDecoder(t)
	c := counter.New(false)
	read := buildRead("AAAA", []string{"GGG"}, "AAA")
	r := fastq.NewReader(strings.NewReader(fastqText(map[string]string{"r1": read})))

	if err := Run(r, Options{Decoder: d, Counter: c}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if c.Stats.Matched() != 1 {
		t.Errorf("Matched = %d, want 1", c.Stats.Matched())
	}
}

func TestRunReportsProgress(t *testing.T) {
	d := testDecoder(t)
	c := counter.New(false)
	reads := map[string]string{}
	for i := 0; i < 3; i++ {
		reads[fmt.Sprintf("r%d", i)] = buildRead("AAAA", []string{"GGG"}, "AAA")
	}
	r := fastq.NewReader(strings.NewReader(fastqText(reads)))

	var calls int
	err := Run(r, Options{
		Decoder:  d,
		Counter:  c,
		Workers:  1,
		Progress: func(n int64) { calls++ },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// progressEvery is 1,000,000; 3 records never crosses that boundary.
	if calls != 0 {
		t.Errorf("Progress called %d times, want 0 for 3 records", calls)
	}
}
