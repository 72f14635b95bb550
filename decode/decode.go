// Copyright the NGS-Barcode-Count contributors.

// Package decode turns a single FASTQ record into a DecodedRead by
// locating the scheme's layout, error-correcting every segment against its
// reference dictionary, and applying an optional mean-quality filter.
package decode

import (
	"github.com/Roco-scientist/NGS-Barcode-Count/dict"
	"github.com/Roco-scientist/NGS-Barcode-Count/matcher"
	"github.com/Roco-scientist/NGS-Barcode-Count/scheme"
)

// Outcome classifies a decoded read. Outcomes are mutually exclusive and
// evaluated in the order listed: the first failure encountered wins.
type Outcome int

const (
	Matched Outcome = iota
	ConstantMismatch
	SampleMismatch
	CountedMismatch
	LowQuality
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "Matched"
	case ConstantMismatch:
		return "ConstantMismatch"
	case SampleMismatch:
		return "SampleMismatch"
	case CountedMismatch:
		return "CountedMismatch"
	case LowQuality:
		return "LowQuality"
	default:
		return "Unknown"
	}
}

// UnknownSampleName is the sample_id assigned to every matched read when no
// SampleDict is configured.
const UnknownSampleName = "unknown_sample_name"

// DecodedRead is the result of a successful decode.
type DecodedRead struct {
	SampleID  string
	Counted   []string // length K, reference DNA strings (not names)
	Random    string   // "" if the scheme has no Random segment
	HasRandom bool
}

// Decoder holds everything needed to decode a read: the compiled scheme,
// the (optional) dictionaries, and the error budgets and quality
// threshold. A Decoder is read-only once constructed and may be shared
// across worker goroutines.
type Decoder struct {
	Scheme      *scheme.Scheme
	SampleDict  *dict.BarcodeDict  // nil: all matched reads use UnknownSampleName
	CountedDict *dict.CountedDict  // nil: counted slots match verbatim, uncorrected

	// MaxConstantErrors is the maximum Hamming distance a Constant
	// segment may have to its pattern (ignoring 'N' positions) and still
	// be accepted. A negative value selects the default for each
	// Constant segment independently: floor(0.2 * that segment's own
	// length).
	MaxConstantErrors int

	// MaxBarcodeErrors is the maximum Hamming distance a barcode
	// candidate may have to its unique best dictionary match. A negative
	// value selects the default independently for the sample segment and
	// each counted slot: floor(0.2 * that segment's own length).
	MaxBarcodeErrors int

	// MinQuality is the minimum mean Phred quality (byte-33) a barcode
	// slot's aligned quality bytes must average. Zero disables the
	// filter.
	MinQuality float64
}

// Decode classifies one read. seq and qual must be equal length.
func (d *Decoder) Decode(seq, qual []byte) (DecodedRead, Outcome) {
	// Locate is the cheap exact-literal fast path. When a read carries a
	// substitution in a constant anchor it cannot match literally, so
	// fall back to a tolerant scan that accepts any window whose
	// constants are within budget — this is what lets max_constant_errors
	// actually correct a read instead of only ever rejecting it.
	m, ok := d.Scheme.Locate(seq)
	if !ok {
		m, ok = d.Scheme.LocateTolerant(seq, d.constantBudget)
	}
	if !ok {
		return DecodedRead{}, ConstantMismatch
	}

	for i, seg := range d.Scheme.Segments {
		if seg.Kind != scheme.Constant {
			continue
		}
		if !matcher.ConstantAccepts(m.Segments[i], []byte(seg.Pattern), d.constantBudget(seg)) {
			return DecodedRead{}, ConstantMismatch
		}
	}

	sampleID := UnknownSampleName
	if sampleSeg := d.Scheme.SampleSegment(); sampleSeg >= 0 && d.SampleDict != nil {
		_, name, ok := matcher.Match(m.Segments[sampleSeg], d.SampleDict.Barcodes(), d.barcodeBudget(d.Scheme.SampleLength))
		if !ok {
			return DecodedRead{}, SampleMismatch
		}
		sampleID = name
	}

	k := d.Scheme.NumCounted
	counted := make([]string, k)
	for i := 1; i <= k; i++ {
		segIdx := d.Scheme.CountedSegment(i)
		var dictMap map[string]string
		if d.CountedDict != nil {
			dictMap = d.CountedDict.Slots[i-1]
		}
		ref, _, ok := matcher.Match(m.Segments[segIdx], dictMap, d.barcodeBudget(d.Scheme.CountedLength[i-1]))
		if !ok {
			return DecodedRead{}, CountedMismatch
		}
		counted[i-1] = ref
	}

	if d.MinQuality > 0 && !d.qualityOK(m, qual) {
		return DecodedRead{}, LowQuality
	}

	dr := DecodedRead{SampleID: sampleID, Counted: counted}
	if randSeg := d.Scheme.RandomSegment(); randSeg >= 0 {
		dr.HasRandom = true
		dr.Random = string(m.Segments[randSeg])
	}

	return dr, Matched
}

// constantBudget returns the mismatch budget for a Constant segment: the
// configured MaxConstantErrors if non-negative, otherwise the default
// computed from that segment's own length.
func (d *Decoder) constantBudget(seg scheme.Segment) int {
	if d.MaxConstantErrors >= 0 {
		return d.MaxConstantErrors
	}
	return matcher.DefaultMaxErrors(seg.Length)
}

// barcodeBudget returns the mismatch budget for a barcode slot of the given
// length: the configured MaxBarcodeErrors if non-negative, otherwise the
// default computed from that slot's own length.
func (d *Decoder) barcodeBudget(length int) int {
	if d.MaxBarcodeErrors >= 0 {
		return d.MaxBarcodeErrors
	}
	return matcher.DefaultMaxErrors(length)
}

// qualityOK computes the mean Phred quality (byte-33) of every non-Constant
// segment's aligned quality bytes, rejecting if any falls below
// d.MinQuality.
func (d *Decoder) qualityOK(m scheme.Match, qual []byte) bool {
	for i, seg := range d.Scheme.Segments {
		if seg.Kind == scheme.Constant {
			continue
		}
		a, b := m.Offsets[i][0], m.Offsets[i][1]
		if b > len(qual) {
			return false
		}
		if meanPhred(qual[a:b]) < d.MinQuality {
			return false
		}
	}
	return true
}

func meanPhred(q []byte) float64 {
	if len(q) == 0 {
		return 0
	}
	var sum int
	for _, b := range q {
		sum += int(b) - 33
	}
	return float64(sum) / float64(len(q))
}
