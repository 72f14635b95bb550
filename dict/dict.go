// Copyright the NGS-Barcode-Count contributors.

// Package dict loads the sample and counted barcode dictionaries: plain
// CSV mappings from a DNA string to a human-readable name.
package dict

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InvalidBarcodeFileError reports a malformed or inconsistent barcode CSV.
type InvalidBarcodeFileError struct {
	Reason string
}

func (e *InvalidBarcodeFileError) Error() string {
	return fmt.Sprintf("invalid barcode file: %s", e.Reason)
}

// BarcodeDict maps a fixed-length DNA string to a sample name. It backs
// the --sample-barcodes dictionary.
type BarcodeDict struct {
	Length int
	names  map[string]string // barcode -> sample name
}

// ByBarcode returns the sample name for barcode, and whether it exists.
func (d *BarcodeDict) ByBarcode(barcode string) (string, bool) {
	name, ok := d.names[barcode]
	return name, ok
}

// Len returns the number of distinct barcodes in the dictionary.
func (d *BarcodeDict) Len() int { return len(d.names) }

// Barcodes returns the dictionary as a read-only map for the matcher.
func (d *BarcodeDict) Barcodes() map[string]string { return d.names }

// LoadBarcodeDict parses rows "barcode,sample_id" from r. A header row is
// permitted and ignored if its first field does not look like a DNA
// barcode of the expected length. wantLength, if non-zero, is the scheme's
// sample-segment length; rows of any other length are rejected.
func LoadBarcodeDict(r io.Reader, wantLength int) (*BarcodeDict, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, err
	}

	d := &BarcodeDict{names: map[string]string{}}
	names := map[string]bool{}

	for i, row := range rows {
		if len(row) != 2 {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: expected 2 columns, found %d", i+1, len(row))}
		}
		barcode, name := row[0], row[1]

		if i == 0 && looksLikeHeader(barcode, wantLength) {
			continue
		}

		if wantLength != 0 && len(barcode) != wantLength {
			return nil, &InvalidBarcodeFileError{
				Reason: fmt.Sprintf("row %d: barcode %q has length %d, scheme requires %d", i+1, barcode, len(barcode), wantLength),
			}
		}
		if d.Length == 0 {
			d.Length = len(barcode)
		} else if len(barcode) != d.Length {
			return nil, &InvalidBarcodeFileError{
				Reason: fmt.Sprintf("row %d: barcode %q has length %d, expected %d", i+1, barcode, len(barcode), d.Length),
			}
		}

		if _, dup := d.names[barcode]; dup {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: duplicate barcode %q", i+1, barcode)}
		}
		if names[name] {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: duplicate sample name %q", i+1, name)}
		}

		d.names[barcode] = name
		names[name] = true
	}

	return d, nil
}

// CountedDict holds, for each of the K counted slots, a barcode -> name
// mapping. Slot i (1-based) is Slots[i-1].
type CountedDict struct {
	K     int
	Slots []map[string]string
}

// SlotLen returns the shared key length of slot i (1-based), or 0 if the
// slot is empty.
func (d *CountedDict) SlotLen(i int) int {
	for barcode := range d.Slots[i-1] {
		return len(barcode)
	}
	return 0
}

// ByBarcode returns the name for barcode in slot i (1-based).
func (d *CountedDict) ByBarcode(i int, barcode string) (string, bool) {
	name, ok := d.Slots[i-1][barcode]
	return name, ok
}

// LoadCountedDict parses rows "barcode,barcode_id,slot_number" from r.
// slotLengths gives the scheme's length for each slot 1..K; every slot
// from 1..K must have at least one entry, and every barcode's length must
// match its slot's declared length.
func LoadCountedDict(r io.Reader, slotLengths []int) (*CountedDict, error) {
	rows, err := readCSVRows(r)
	if err != nil {
		return nil, err
	}

	k := len(slotLengths)
	d := &CountedDict{K: k, Slots: make([]map[string]string, k)}
	for i := range d.Slots {
		d.Slots[i] = map[string]string{}
	}
	namesBySlot := make([]map[string]bool, k)
	for i := range namesBySlot {
		namesBySlot[i] = map[string]bool{}
	}

	for i, row := range rows {
		if len(row) != 3 {
			if i == 0 && len(row) > 0 && looksLikeHeader(row[0], 0) {
				continue
			}
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: expected 3 columns, found %d", i+1, len(row))}
		}
		barcode, name, slotText := row[0], row[1], row[2]

		slot, err := strconv.Atoi(strings.TrimSpace(slotText))
		if err != nil {
			if i == 0 {
				continue // header row such as "barcode,barcode_id,slot_number"
			}
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: slot_number %q is not an integer", i+1, slotText)}
		}
		if slot < 1 || slot > k {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: unknown slot %d (scheme declares %d counted slots)", i+1, slot, k)}
		}

		want := slotLengths[slot-1]
		if len(barcode) != want {
			return nil, &InvalidBarcodeFileError{
				Reason: fmt.Sprintf("row %d: barcode %q in slot %d has length %d, scheme requires %d", i+1, barcode, slot, len(barcode), want),
			}
		}

		if _, dup := d.Slots[slot-1][barcode]; dup {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: duplicate barcode %q in slot %d", i+1, barcode, slot)}
		}
		if namesBySlot[slot-1][name] {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("row %d: duplicate name %q in slot %d", i+1, name, slot)}
		}

		d.Slots[slot-1][barcode] = name
		namesBySlot[slot-1][name] = true
	}

	for i := 0; i < k; i++ {
		if len(d.Slots[i]) == 0 {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("counted slot %d has no entries", i+1)}
		}
	}

	return d, nil
}

// readCSVRows splits r into comma-delimited rows, rejecting blank lines and
// propagating I/O errors. No quoting is supported: every comma splits a
// field, so a row with an embedded comma reaches the caller with extra
// columns and fails its column-count check. This mirrors the hand-rolled, tab-delimited
// parsing the project's read- and match-file readers use, adapted to the
// comma-delimited dictionary format named by the external interface.
func readCSVRows(r io.Reader) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var rows [][]string
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			return nil, &InvalidBarcodeFileError{Reason: fmt.Sprintf("line %d: empty row", lineNum)}
		}
		rows = append(rows, strings.Split(line, ","))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading barcode file")
	}
	return rows, nil
}

// looksLikeHeader reports whether the first column of the first row is
// plausibly a header label rather than a DNA barcode: it is not composed
// solely of A/C/G/T/N, or its length doesn't match the expected barcode
// length.
func looksLikeHeader(first string, wantLength int) bool {
	for _, c := range first {
		switch c {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return true
		}
	}
	if wantLength != 0 && len(first) != wantLength {
		return true
	}
	return false
}
