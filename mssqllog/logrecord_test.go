package mssqllog

import (
	"encoding/binary"
	"testing"
)

// buildDMLRecord assembles a minimal OpInsertRows log record with the given
// content-fragment lengths, returning the exact byte slice RecordLength
// should predict for it.
func buildDMLRecord(lengths []int) []byte {
	numElements := uint8(len(lengths))
	total := RecordLength(numElements, lengths)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint16(buf[lrFixedLengthOffset:], 0x3E)
	buf[lrOpOffset] = OpInsertRows
	buf[lrNumElementsOffset] = numElements

	cursor := lrContentLengthsOffset
	for _, l := range lengths {
		binary.LittleEndian.PutUint16(buf[cursor:], uint16(l))
		cursor += 2
	}
	cursor = lrContentLengthsOffset + align4(2*int(numElements))
	for i, l := range lengths {
		if l == 0 {
			continue
		}
		for j := 0; j < l; j++ {
			buf[cursor+j] = byte(i + 1)
		}
		cursor += align4Pad(l)
	}
	return buf
}

func TestRecordLengthMatchesParsedCursorAdvance(t *testing.T) {
	lengths := []int{4, 0, 6}
	buf := buildDMLRecord(lengths)

	rec, err := ParseLogRecord(buf)
	if err != nil {
		t.Fatalf("ParseLogRecord: %v", err)
	}
	if len(rec.Fragments) != len(lengths) {
		t.Fatalf("got %d fragments, want %d", len(rec.Fragments), len(lengths))
	}
	for i, l := range lengths {
		if l == 0 {
			if rec.Fragments[i] != nil {
				t.Errorf("fragment %d: want nil for zero length, got %v", i, rec.Fragments[i])
			}
			continue
		}
		if len(rec.Fragments[i]) != l {
			t.Errorf("fragment %d: len = %d, want %d", i, len(rec.Fragments[i]), l)
		}
		for _, b := range rec.Fragments[i] {
			if b != byte(i+1) {
				t.Errorf("fragment %d: byte = %d, want %d", i, b, i+1)
			}
		}
	}

	if got := RecordLength(uint8(len(lengths)), lengths); got != len(buf) {
		t.Errorf("RecordLength = %d, want %d (exact buffer it parsed)", got, len(buf))
	}
}

func TestAlign4IsTrueCeiling(t *testing.T) {
	cases := map[int]int{0: 0, 4: 4, 5: 8, 8: 8}
	for n, want := range cases {
		if got := align4(n); got != want {
			t.Errorf("align4(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestAlign4PadAlwaysAddsWhenAligned(t *testing.T) {
	cases := map[int]int{4: 8, 8: 12, 5: 8}
	for n, want := range cases {
		if got := align4Pad(n); got != want {
			t.Errorf("align4Pad(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestDecodeLogTimestampAnchor(t *testing.T) {
	// 1 day and exactly 300 ticks (1 second at 1/300s resolution) past the
	// 1900-01-01 epoch.
	got := decodeLogTimestamp(1, 300)
	if got.Year() != 1900 || got.Month() != 1 || got.Day() != 2 {
		t.Errorf("decodeLogTimestamp date = %v, want 1900-01-02", got)
	}
	if got.Second() != 1 {
		t.Errorf("decodeLogTimestamp second = %d, want 1", got.Second())
	}
}

func TestParseLogRecordBeginXact(t *testing.T) {
	buf := make([]byte, logRecordPrologueSize)
	buf[lrOpOffset] = OpBeginXact
	binary.LittleEndian.PutUint32(buf[beginXactDaysOffset:], 1)
	binary.LittleEndian.PutUint32(buf[beginXactSecondsOffset:], 300)

	rec, err := ParseLogRecord(buf)
	if err != nil {
		t.Fatalf("ParseLogRecord: %v", err)
	}
	if rec.BeginTime == nil {
		t.Fatal("expected BeginTime to be set")
	}
	if rec.BeginTime.Day() != 2 || rec.BeginTime.Second() != 1 {
		t.Errorf("BeginTime = %v, want 1900-01-02 00:00:01", rec.BeginTime)
	}
	if rec.CommitTime != nil {
		t.Error("CommitTime should be nil for a BEGIN_XACT record")
	}
}

func TestParseLogRecordUnknownOpTolerated(t *testing.T) {
	buf := make([]byte, logRecordPrologueSize)
	buf[lrOpOffset] = 250

	rec, err := ParseLogRecord(buf)
	if err != nil {
		t.Fatalf("ParseLogRecord should tolerate unknown op codes: %v", err)
	}
	if rec.Op != 250 {
		t.Errorf("Op = %d, want 250", rec.Op)
	}
}
