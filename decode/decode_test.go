package decode

import (
	"strings"
	"testing"

	"github.com/Roco-scientist/NGS-Barcode-Count/dict"
	"github.com/Roco-scientist/NGS-Barcode-Count/scheme"
)

const testScheme = "ATCG\n[4]\nCG\n{3}\n(3)\nGC\n"

func mustScheme(t *testing.T) *scheme.Scheme {
	t.Helper()
	s, err := scheme.Parse(strings.NewReader(testScheme))
	if err != nil {
		t.Fatalf("scheme.Parse failed: %v", err)
	}
	return s
}

func highQual(n int) []byte {
	q := make([]byte, n)
	for i := range q {
		q[i] = 'I' // Phred 40
	}
	return q
}

// S1: a fully exact read matches against sample and counted dictionaries.
func TestDecodeExactMatch(t *testing.T) {
	s := mustScheme(t)
	sample, err := dict.LoadBarcodeDict(strings.NewReader("AAAA,S1\n"), 4)
	if err != nil {
		t.Fatal(err)
	}
	counted, err := dict.LoadCountedDict(strings.NewReader("GGG,B1,1\n"), []int{3})
	if err != nil {
		t.Fatal(err)
	}
	d := &Decoder{Scheme: s, SampleDict: sample, CountedDict: counted, MaxConstantErrors: 0, MaxBarcodeErrors: 0}

	seq := []byte("ATCGAAAACGGGGNNNGC") // ATCG + AAAA + CG + GGG + NNN(random) + GC
	dr, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Fatalf("outcome = %v, want Matched", outcome)
	}
	if dr.SampleID != "S1" {
		t.Errorf("SampleID = %q, want S1", dr.SampleID)
	}
	if len(dr.Counted) != 1 || dr.Counted[0] != "GGG" {
		t.Errorf("Counted = %v, want [GGG]", dr.Counted)
	}
	if !dr.HasRandom || dr.Random != "NNN" {
		t.Errorf("Random = %q, HasRandom = %v, want NNN, true", dr.Random, dr.HasRandom)
	}
}

func TestDecodeConstantMismatchOnNoLocate(t *testing.T) {
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
	seq := []byte("TTTTAAAACGGGGNNNGC")
	_, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != ConstantMismatch {
		t.Errorf("outcome = %v, want ConstantMismatch", outcome)
	}
}

func TestDecodeSampleMismatch(t *testing.T) {
	s := mustScheme(t)
	sample, err := dict.LoadBarcodeDict(strings.NewReader("AAAA,S1\nTTTT,S2\n"), 4)
	if err != nil {
		t.Fatal(err)
	}
	d := &Decoder{Scheme: s, SampleDict: sample, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
	// CCCC is equidistant (distance 4) from both AAAA and TTTT: tie, rejected.
	seq := []byte("ATCGCCCCCGGGGNNNGC")
	_, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != SampleMismatch {
		t.Errorf("outcome = %v, want SampleMismatch", outcome)
	}
}

// S5: a one-mismatch counted barcode corrects within the error budget.
func TestDecodeCountedCorrectsWithinBudget(t *testing.T) {
	s := mustScheme(t)
	counted, err := dict.LoadCountedDict(strings.NewReader("GGG,B1,1\nAAA,B2,1\n"), []int{3})
	if err != nil {
		t.Fatal(err)
	}
	d := &Decoder{Scheme: s, CountedDict: counted, MaxConstantErrors: 0, MaxBarcodeErrors: 1}
	// GGT is distance 1 from GGG, distance 3 from AAA: unique best, within budget.
	seq := []byte("ATCGAAAACGGGTNNNGC")
	dr, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Fatalf("outcome = %v, want Matched", outcome)
	}
	if dr.Counted[0] != "GGG" {
		t.Errorf("Counted[0] = %q, want GGG", dr.Counted[0])
	}
}

// S6: a tied minimum distance is always rejected, even within budget.
func TestDecodeCountedRejectsTie(t *testing.T) {
	s := mustScheme(t)
	counted, err := dict.LoadCountedDict(strings.NewReader("GGG,B1,1\nGGA,B2,1\n"), []int{3})
	if err != nil {
		t.Fatal(err)
	}
	d := &Decoder{Scheme: s, CountedDict: counted, MaxConstantErrors: 0, MaxBarcodeErrors: 1}
	// GGT is distance 1 from both GGG and GGA.
	seq := []byte("ATCGAAAACGGGTNNNGC")
	_, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != CountedMismatch {
		t.Errorf("outcome = %v, want CountedMismatch", outcome)
	}
}

func TestDecodeLowQuality(t *testing.T) {
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: 0, MaxBarcodeErrors: 0, MinQuality: 30}

	seq := []byte("ATCGAAAACGGGGNNNGC")
	qual := highQual(len(seq))
	// Drag the sample slot's (offset 4..8) mean quality below the threshold.
	for i := 4; i < 8; i++ {
		qual[i] = '#' // Phred 2
	}
	_, outcome := d.Decode(seq, qual)
	if outcome != LowQuality {
		t.Errorf("outcome = %v, want LowQuality", outcome)
	}
}

func TestDecodeWithoutDictionariesIsIdentity(t *testing.T) {
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
	seq := []byte("ATCGAAAACGGGGNNNGC")
	dr, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Fatalf("outcome = %v, want Matched", outcome)
	}
	if dr.SampleID != UnknownSampleName {
		t.Errorf("SampleID = %q, want %q", dr.SampleID, UnknownSampleName)
	}
	if dr.Counted[0] != "GGG" {
		t.Errorf("Counted[0] = %q, want GGG", dr.Counted[0])
	}
}

func TestDecodeConstantCorrectsSubstitutionWithinBudget(t *testing.T) {
	// The exact locator anchors constant segments literally, but a
	// one-mismatch substitution in a non-N constant position still
	// decodes via the tolerant fallback scan, per max_constant_errors.
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: 1, MaxBarcodeErrors: 0}
	seq := []byte("ATCGAAAACGGGGNNNGA") // trailing GC -> GA, one mismatch
	dr, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Fatalf("outcome = %v, want Matched", outcome)
	}
	if dr.Counted[0] != "GGG" {
		t.Errorf("Counted[0] = %q, want GGG", dr.Counted[0])
	}
}

func TestDecodeConstantRejectsSubstitutionOverBudget(t *testing.T) {
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
	seq := []byte("ATCGAAAACGGGGNNNGA") // trailing GC -> GA, over the zero budget
	_, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != ConstantMismatch {
		t.Errorf("outcome = %v, want ConstantMismatch", outcome)
	}
}

func TestDecodeConstantDefaultBudgetUsesEachSegmentsOwnLength(t *testing.T) {
	// MaxConstantErrors < 0 selects floor(0.2*length) per constant
	// independently: the 4-base "ATCG" anchor tolerates 0 errors
	// (4/5==0) while a 10-base anchor would tolerate 2. Here the first
	// constant is exact and only the second ("CG", length 2, budget 0)
	// matters; this exercises the per-segment default path end to end.
	s := mustScheme(t)
	d := &Decoder{Scheme: s, MaxConstantErrors: -1, MaxBarcodeErrors: -1}
	seq := []byte("ATCGAAAACGGGGNNNGC")
	dr, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Fatalf("outcome = %v, want Matched", outcome)
	}
	if dr.Counted[0] != "GGG" {
		t.Errorf("Counted[0] = %q, want GGG", dr.Counted[0])
	}
}

func TestDecodeConstantWildcardToleratesMismatch(t *testing.T) {
	s, err := scheme.Parse(strings.NewReader("ATNG\n[4]\nCG\n{3}\n(3)\nGC\n"))
	if err != nil {
		t.Fatalf("scheme.Parse failed: %v", err)
	}
	d := &Decoder{Scheme: s, MaxConstantErrors: 0, MaxBarcodeErrors: 0}
	seq := []byte("ATTGAAAACGGGGNNNGC") // third base free under the 'N' wildcard
	_, outcome := d.Decode(seq, highQual(len(seq)))
	if outcome != Matched {
		t.Errorf("outcome = %v, want Matched", outcome)
	}
}
