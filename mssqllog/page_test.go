package mssqllog

import (
	"encoding/binary"
	"testing"
)

func TestRepairTornBitsWritesKnownParityBits(t *testing.T) {
	page := make([]byte, PageSize)
	binary.LittleEndian.PutUint16(page[flagBitsOffset:], FlagTornBitProtection)
	binary.LittleEndian.PutUint32(page[tornBitsOffset:], 0xA<<2)

	repaired, err := RepairTornBits(page)
	if err != nil {
		t.Fatalf("RepairTornBits: %v", err)
	}

	if got := repaired[0x3FF] & 0x03; got != 0x02 {
		t.Errorf("byte 0x3FF low bits = %#x, want 0x02", got)
	}
	if got := repaired[0x5FF] & 0x03; got != 0x02 {
		t.Errorf("byte 0x5FF low bits = %#x, want 0x02", got)
	}
	if got := repaired[0x7FF] & 0x03; got != 0x00 {
		t.Errorf("byte 0x7FF low bits = %#x, want 0x00", got)
	}
}

func TestRepairTornBitsRejectsWrongSize(t *testing.T) {
	if _, err := RepairTornBits(make([]byte, 100)); err == nil {
		t.Error("expected error for undersized page buffer")
	}
}

func TestSlotArrayRoundTrip(t *testing.T) {
	page := make([]byte, PageSize)
	offsets := []uint16{96, 200, 400}
	slotcnt := uint16(len(offsets))

	// Slots are stored in reverse order at the page tail.
	for i, off := range offsets {
		pos := PageSize - 2*(len(offsets)-i)
		binary.LittleEndian.PutUint16(page[pos:], off)
	}

	got := SlotArray(page, slotcnt)
	if len(got) != len(offsets) {
		t.Fatalf("SlotArray returned %d entries, want %d", len(got), len(offsets))
	}
	for i, off := range offsets {
		if got[i] != off {
			t.Errorf("SlotArray()[%d] = %d, want %d", i, got[i], off)
		}
	}
}

func TestSlotArrayDropsZeroEntries(t *testing.T) {
	page := make([]byte, PageSize)
	// All three trailer entries are zero.
	got := SlotArray(page, 3)
	if len(got) != 0 {
		t.Errorf("SlotArray() = %v, want empty", got)
	}
}

func TestDecodePageHeader(t *testing.T) {
	page := make([]byte, PageSize)
	page[pageTypeOffset] = PageTypeData
	binary.LittleEndian.PutUint16(page[flagBitsOffset:], FlagTornBitProtection)
	binary.LittleEndian.PutUint16(page[slotCntOffset:], 5)
	binary.LittleEndian.PutUint32(page[objectIDOffset:], 0x22)
	binary.LittleEndian.PutUint32(page[pageIDOffset:], 42)
	binary.LittleEndian.PutUint16(page[fileIDOffset:], 1)

	h, err := DecodePageHeader(page)
	if err != nil {
		t.Fatalf("DecodePageHeader: %v", err)
	}
	if h.Type != PageTypeData || h.SlotCnt != 5 || h.ObjectID != 0x22 || h.PageID != 42 || h.FileID != 1 {
		t.Errorf("unexpected header: %+v", h)
	}
	if !h.TornBitProtected() {
		t.Error("expected TornBitProtected() to be true")
	}
}
