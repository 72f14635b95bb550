// Copyright 2017, Kerby Shedden and the Muscato contributors.
// Copyright the NGS-Barcode-Count contributors.

// Package scheme compiles a read layout description into a Scheme: an
// ordered list of Segments (constant anchors and variable barcode slots)
// together with a regular-expression locator that finds the layout inside
// a sequencing read.
package scheme

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Roco-scientist/NGS-Barcode-Count/matcher"
)

// Kind identifies the role a Segment plays in a Scheme.
type Kind int

const (
	// Constant is a fixed anchor sequence, possibly containing 'N' wildcards.
	Constant Kind = iota
	// Sample identifies the sample barcode slot. At most one per Scheme.
	Sample
	// Counted identifies one of the K combinatorial barcode slots.
	Counted
	// Random identifies the optional UMI/deduplication slot. At most one per Scheme.
	Random
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case Sample:
		return "Sample"
	case Counted:
		return "Counted"
	case Random:
		return "Random"
	default:
		return "Unknown"
	}
}

// Segment is one element of a compiled layout.
type Segment struct {
	Kind Kind

	// Pattern is the literal anchor text, set only for Constant segments.
	// 'N' denotes a wildcard position.
	Pattern string

	// Length is the segment's width in bases.
	Length int

	// Index is the 1-based slot number, set only for Counted segments.
	Index int
}

// InvalidSchemeError reports a malformed scheme file.
type InvalidSchemeError struct {
	Reason string
}

func (e *InvalidSchemeError) Error() string {
	return fmt.Sprintf("invalid scheme: %s", e.Reason)
}

var (
	constantRe = regexp.MustCompile(`^[ACGTN]+$`)
	sampleRe   = regexp.MustCompile(`^\[(\d+)\]$`)
	countedRe  = regexp.MustCompile(`^\{(\d+)\}$`)
	randomRe   = regexp.MustCompile(`^\((\d+)\)$`)
)

// Match is the result of locating a Scheme's layout inside a read.
type Match struct {
	// Start and End bound the full layout match within the read.
	Start, End int

	// Segments holds, for each Scheme segment in order, the matched bytes.
	Segments [][]byte

	// Offsets holds the [start,end) byte range of each segment within the
	// read, so callers (e.g. the mean-quality filter) can index the
	// parallel quality string without recomputing segment widths.
	Offsets [][2]int
}

// Scheme is a compiled read layout.
type Scheme struct {
	Segments []Segment

	// Length is the total layout width, the sum of all segment lengths.
	Length int

	// NumCounted is K, the number of Counted slots.
	NumCounted int

	// CountedLength[i] is the length of Counted slot i+1.
	CountedLength []int

	// SampleLength is the Sample slot's length, or 0 if absent.
	SampleLength int

	// RandomLength is the Random slot's length, or 0 if absent.
	RandomLength int

	locator     *regexp.Regexp
	sampleSeg   int   // index into Segments, -1 if absent
	randomSeg   int   // index into Segments, -1 if absent
	countedSegs []int // countedSegs[i] = index into Segments for slot i+1
}

// HasSample reports whether the scheme declares a Sample segment.
func (s *Scheme) HasSample() bool { return s.sampleSeg >= 0 }

// HasRandom reports whether the scheme declares a Random segment.
func (s *Scheme) HasRandom() bool { return s.randomSeg >= 0 }

// Parse compiles a scheme file: one token per line, blank lines ignored.
// Tokens: a run of {A,C,G,T,N} is a Constant; "[n]" is the Sample segment;
// "{n}" introduces the next Counted slot; "(n)" is the Random segment.
func Parse(r io.Reader) (*Scheme, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var segs []Segment
	var sampleCount, randomCount int
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case constantRe.MatchString(line):
			segs = append(segs, Segment{Kind: Constant, Pattern: line, Length: len(line)})

		case sampleRe.MatchString(line):
			sampleCount++
			if sampleCount > 1 {
				return nil, &InvalidSchemeError{Reason: fmt.Sprintf("line %d: more than one sample segment", lineNum)}
			}
			n, err := parseLen(sampleRe, line)
			if err != nil {
				return nil, err
			}
			segs = append(segs, Segment{Kind: Sample, Length: n})

		case countedRe.MatchString(line):
			n, err := parseLen(countedRe, line)
			if err != nil {
				return nil, err
			}
			idx := countCounted(segs) + 1
			segs = append(segs, Segment{Kind: Counted, Length: n, Index: idx})

		case randomRe.MatchString(line):
			randomCount++
			if randomCount > 1 {
				return nil, &InvalidSchemeError{Reason: fmt.Sprintf("line %d: more than one random segment", lineNum)}
			}
			n, err := parseLen(randomRe, line)
			if err != nil {
				return nil, err
			}
			segs = append(segs, Segment{Kind: Random, Length: n})

		default:
			return nil, &InvalidSchemeError{Reason: fmt.Sprintf("line %d: malformed token %q", lineNum, line)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading scheme")
	}

	return build(segs)
}

func parseLen(re *regexp.Regexp, line string) (int, error) {
	m := re.FindStringSubmatch(line)
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &InvalidSchemeError{Reason: fmt.Sprintf("bad length in token %q", line)}
	}
	if n <= 0 {
		return 0, &InvalidSchemeError{Reason: fmt.Sprintf("non-positive length in token %q", line)}
	}
	return n, nil
}

func countCounted(segs []Segment) int {
	var n int
	for _, s := range segs {
		if s.Kind == Counted {
			n++
		}
	}
	return n
}

// build validates segs and compiles the locator.
func build(segs []Segment) (*Scheme, error) {
	s := &Scheme{
		Segments:  segs,
		sampleSeg: -1,
		randomSeg: -1,
	}

	lengthBySlot := map[int]int{}
	for i, seg := range segs {
		s.Length += seg.Length
		switch seg.Kind {
		case Sample:
			s.sampleSeg = i
			s.SampleLength = seg.Length
		case Random:
			s.randomSeg = i
			s.RandomLength = seg.Length
		case Counted:
			if prev, ok := lengthBySlot[seg.Index]; ok && prev != seg.Length {
				return nil, &InvalidSchemeError{
					Reason: fmt.Sprintf("counted slot %d has inconsistent lengths (%d and %d)", seg.Index, prev, seg.Length),
				}
			}
			lengthBySlot[seg.Index] = seg.Length
			s.countedSegs = append(s.countedSegs, i)
		}
	}

	s.NumCounted = len(lengthBySlot)
	if s.NumCounted == 0 {
		return nil, &InvalidSchemeError{Reason: "scheme must declare at least one counted segment"}
	}
	s.CountedLength = make([]int, s.NumCounted)
	for idx, length := range lengthBySlot {
		if idx < 1 || idx > s.NumCounted {
			return nil, &InvalidSchemeError{Reason: fmt.Sprintf("counted slot indices are not dense: found index %d with %d distinct slots", idx, s.NumCounted)}
		}
		s.CountedLength[idx-1] = length
	}

	pattern, err := locatorPattern(segs)
	if err != nil {
		return nil, err
	}
	loc, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidSchemeError{Reason: fmt.Sprintf("failed to compile locator: %v", err)}
	}
	s.locator = loc

	return s, nil
}

// locatorPattern builds a regular expression with exactly one capturing
// group per segment: Constant segments expand 'N' positions to [ACGTN] and
// keep other bases literal; variable segments become [ACGTN]{n} wildcard
// runs. The pattern is unanchored so Locate finds the layout anywhere in a
// (possibly longer) read; Go's RE2 engine matches leftmost, and since every
// group has a statically fixed width there is no ambiguity to resolve.
func locatorPattern(segs []Segment) (string, error) {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteByte('(')
		switch seg.Kind {
		case Constant:
			for _, c := range seg.Pattern {
				if c == 'N' {
					b.WriteString("[ACGTN]")
				} else {
					b.WriteRune(c)
				}
			}
		default:
			fmt.Fprintf(&b, "[ACGTN]{%d}", seg.Length)
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

// Locate finds the leftmost occurrence of the scheme's layout within seq.
func (s *Scheme) Locate(seq []byte) (Match, bool) {
	loc := s.locator.FindSubmatchIndex(seq)
	if loc == nil {
		return Match{}, false
	}

	m := Match{
		Start:    loc[0],
		End:      loc[1],
		Segments: make([][]byte, len(s.Segments)),
		Offsets:  make([][2]int, len(s.Segments)),
	}
	for i := range s.Segments {
		a, b := loc[2+2*i], loc[2+2*i+1]
		m.Segments[i] = seq[a:b]
		m.Offsets[i] = [2]int{a, b}
	}
	return m, true
}

// LocateTolerant finds the leftmost window of the scheme's total width in
// seq where every Constant segment is within its allowed mismatch budget
// (per maxErrors, ignoring 'N' positions) and every other segment is a run
// of {A,C,G,T,N} bases. Unlike Locate, it does not require constant anchors
// to match literally, so a substitution inside a constant no longer
// prevents localization — only the per-segment error budget does. Callers
// should try the cheap exact Locate first and fall back to this only when
// it fails, since this scans every candidate offset in seq.
func (s *Scheme) LocateTolerant(seq []byte, maxErrors func(seg Segment) int) (Match, bool) {
	for start := 0; start+s.Length <= len(seq); start++ {
		if m, ok := s.tryWindow(seq, start, maxErrors); ok {
			return m, true
		}
	}
	return Match{}, false
}

// tryWindow checks whether the scheme's layout fits starting at start,
// within the Constant segments' error budgets.
func (s *Scheme) tryWindow(seq []byte, start int, maxErrors func(seg Segment) int) (Match, bool) {
	m := Match{
		Start:    start,
		Segments: make([][]byte, len(s.Segments)),
		Offsets:  make([][2]int, len(s.Segments)),
	}

	pos := start
	for i, seg := range s.Segments {
		candidate := seq[pos : pos+seg.Length]
		if !isACGTN(candidate) {
			return Match{}, false
		}
		if seg.Kind == Constant && matcher.ConstantMismatches(candidate, []byte(seg.Pattern)) > maxErrors(seg) {
			return Match{}, false
		}
		m.Segments[i] = candidate
		m.Offsets[i] = [2]int{pos, pos + seg.Length}
		pos += seg.Length
	}
	m.End = pos
	return m, true
}

func isACGTN(b []byte) bool {
	for _, c := range b {
		switch c {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return false
		}
	}
	return true
}

// SampleSegment returns the index into Segments of the Sample segment, or
// -1 if the scheme has none.
func (s *Scheme) SampleSegment() int { return s.sampleSeg }

// RandomSegment returns the index into Segments of the Random segment, or
// -1 if the scheme has none.
func (s *Scheme) RandomSegment() int { return s.randomSeg }

// CountedSegment returns the index into Segments of Counted slot i
// (1-based).
func (s *Scheme) CountedSegment(i int) int { return s.countedSegs[i-1] }

// String serializes the scheme back to its one-token-per-line text form.
// Parse(strings.NewReader(s.String())) reproduces an equivalent Scheme.
func (s *Scheme) String() string {
	var b strings.Builder
	for _, seg := range s.Segments {
		switch seg.Kind {
		case Constant:
			b.WriteString(seg.Pattern)
		case Sample:
			fmt.Fprintf(&b, "[%d]", seg.Length)
		case Counted:
			fmt.Fprintf(&b, "{%d}", seg.Length)
		case Random:
			fmt.Fprintf(&b, "(%d)", seg.Length)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Equal reports whether s and o describe the same layout, ignoring the
// compiled locator (two equivalent schemes compile to identical patterns,
// but regexp.Regexp values are not comparable).
func (s *Scheme) Equal(o *Scheme) bool {
	if s.Length != o.Length || s.NumCounted != o.NumCounted {
		return false
	}
	if len(s.Segments) != len(o.Segments) {
		return false
	}
	for i := range s.Segments {
		if s.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}
