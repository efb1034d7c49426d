package mssqllog

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeTempMDFPage(t *testing.T, pageBuf []byte) *FileReader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mdf")
	if err := os.WriteFile(path, pageBuf, 0o644); err != nil {
		t.Fatalf("writing temp MDF: %v", err)
	}
	reader, err := OpenFileReader(path)
	if err != nil {
		t.Fatalf("OpenFileReader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	return reader
}

// pageWithRow builds a single MDF page holding row at rowOffset in slot 0.
func pageWithRow(row []byte, rowOffset int) []byte {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint16(page[slotCntOffset:], 1)
	copy(page[rowOffset:], row)
	binary.LittleEndian.PutUint16(page[PageSize-2:], uint16(rowOffset))
	return page
}

// TestBuildBeforeImageSplicesOverCurrentRow verifies the UPDATE pre-image
// reconstruction: the current on-disk row (reflecting the committed,
// post-update state) is trimmed to its computed length and returned as the
// after image, and the log's before-fragment is spliced back in at
// offsetinrow, over a window the size of the after-fragment, to form the
// before image.
func TestBuildBeforeImageSplicesOverCurrentRow(t *testing.T) {
	layout, cols := testLayoutAndColumns()
	row := buildRow(7, "hi")

	const rowOffset = 200
	reader := writeTempMDFPage(t, pageWithRow(row, rowOffset))
	r := &Reconstructor{mdf: reader}
	table := TableInfo{Name: "t", Columns: cols, Layout: layout}

	// The varchar payload sits at the row's tail; splice over it.
	payloadOffset := len(row) - 2
	rec := LogRecord{PageID: 0, SlotID: 0, OffsetInRow: uint16(payloadOffset)}
	before := []byte("HI")
	after := []byte("hi")

	afterImage, beforeImage, ok := r.buildBeforeImage(table, rec, before, after)
	if !ok {
		t.Fatal("buildBeforeImage reported failure")
	}
	if len(afterImage) != len(row) {
		t.Fatalf("after image length = %d, want the computed row length %d", len(afterImage), len(row))
	}
	if string(afterImage[payloadOffset:]) != "hi" {
		t.Errorf("after image payload = %q, want %q", afterImage[payloadOffset:], "hi")
	}
	if string(beforeImage[payloadOffset:]) != "HI" {
		t.Errorf("before image payload = %q, want %q", beforeImage[payloadOffset:], "HI")
	}

	beforeCols, err := DecodeRecord(beforeImage, layout, cols, PageSize)
	if err != nil {
		t.Fatalf("DecodeRecord on before image: %v", err)
	}
	if got := string(beforeCols[1].Bytes); got != "HI" {
		t.Errorf("before image name column = %q, want %q", got, "HI")
	}
}

func TestBuildBeforeImageRejectsLengthMismatch(t *testing.T) {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint16(page[slotCntOffset:], 1)
	binary.LittleEndian.PutUint16(page[PageSize-2:], 200)

	reader := writeTempMDFPage(t, page)
	r := &Reconstructor{mdf: reader}

	rec := LogRecord{PageID: 0, SlotID: 0, OffsetInRow: 0}
	_, _, ok := r.buildBeforeImage(TableInfo{}, rec, []byte{1, 2}, []byte{1, 2, 3})
	if ok {
		t.Error("expected failure when before/after fragment lengths differ")
	}
}

func TestBuildBeforeImageRejectsOutOfRangeSlot(t *testing.T) {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint16(page[slotCntOffset:], 1)
	binary.LittleEndian.PutUint16(page[PageSize-2:], 200)

	reader := writeTempMDFPage(t, page)
	r := &Reconstructor{mdf: reader}

	rec := LogRecord{PageID: 0, SlotID: 5, OffsetInRow: 0}
	_, _, ok := r.buildBeforeImage(TableInfo{}, rec, []byte{1}, []byte{1})
	if ok {
		t.Error("expected failure for a slot id beyond the slot array")
	}
}

func TestReconstructSkipsUnmatchedPartition(t *testing.T) {
	r := NewReconstructor(nil, nil)
	records := []LogRecord{{Op: OpInsertRows, PartitionID: 999}}
	got := r.Reconstruct(records)
	if len(got) != 0 {
		t.Errorf("expected no reconstructed rows for an unmatched partition, got %d", len(got))
	}
}

func TestReconstructInsertAndDelete(t *testing.T) {
	layout, cols := testLayoutAndColumns()
	table := TableInfo{Name: "t", PartitionID: 42, Columns: cols, Layout: layout}
	r := NewReconstructor(nil, []TableInfo{table})

	row := buildRow(7, "hi")
	records := []LogRecord{
		{Op: OpInsertRows, PartitionID: 42, Fragments: [][]byte{row}},
		{Op: OpDeleteRows, PartitionID: 42, Fragments: [][]byte{row}},
	}
	got := r.Reconstruct(records)
	if len(got) != 2 {
		t.Fatalf("Reconstruct returned %d rows, want 2", len(got))
	}
	if want := "insert into t values ('7','hi')"; got[0].Query != want {
		t.Errorf("insert query = %q, want %q", got[0].Query, want)
	}
	if want := "delete from t where id='7' and name='hi'"; got[1].Query != want {
		t.Errorf("delete query = %q, want %q", got[1].Query, want)
	}
}

func TestReconstructJoinsTransactionTimestamps(t *testing.T) {
	layout, cols := testLayoutAndColumns()
	table := TableInfo{Name: "t", PartitionID: 42, Columns: cols, Layout: layout}
	r := NewReconstructor(nil, []TableInfo{table})

	txid := [6]byte{1, 2, 3, 4, 5, 6}
	begin := decodeLogTimestamp(1, 300)
	end := decodeLogTimestamp(1, 600)
	records := []LogRecord{
		{Op: OpBeginXact, TransactionID: txid, BeginTime: &begin},
		{Op: OpInsertRows, TransactionID: txid, PartitionID: 42, Fragments: [][]byte{buildRow(7, "hi")}},
		{Op: OpCommitXact, TransactionID: txid, CommitTime: &end},
	}
	got := r.Reconstruct(records)
	if len(got) != 1 {
		t.Fatalf("Reconstruct returned %d rows, want 1", len(got))
	}
	if got[0].BeginTime == nil || !got[0].BeginTime.Equal(begin) {
		t.Errorf("BeginTime = %v, want %v", got[0].BeginTime, begin)
	}
	if got[0].EndTime == nil || !got[0].EndTime.Equal(end) {
		t.Errorf("EndTime = %v, want %v", got[0].EndTime, end)
	}
}
