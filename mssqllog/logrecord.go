package mssqllog

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Log record operation codes relevant to reconstruction. Any other byte
// value is tolerated and parsed for header fields only (§7).
const (
	OpInsertRows uint8 = 2
	OpDeleteRows uint8 = 3
	OpModifyRow  uint8 = 4
	OpBeginXact  uint8 = 128
	OpCommitXact uint8 = 129
)

// operationName returns a human name for the well-known DML/transaction
// opcodes and a generic fallback otherwise, used only for logging.
func operationName(op uint8) string {
	switch op {
	case OpInsertRows:
		return "LOP_INSERT_ROWS"
	case OpDeleteRows:
		return "LOP_DELETE_ROWS"
	case OpModifyRow:
		return "LOP_MODIFY_ROW"
	case OpBeginXact:
		return "LOP_BEGIN_XACT"
	case OpCommitXact:
		return "LOP_COMMIT_XACT"
	default:
		return fmt.Sprintf("LOP_UNKNOWN_%d", op)
	}
}

// LSN is the 3-field log sequence number: VLF sequence, log block, slot.
// It is opaque beyond ordering within the scan; fields are kept unsigned
// here since nothing compares them arithmetically against a signed
// reference.
type LSN struct {
	A uint32
	B uint32
	C uint16
}

const (
	logRecordPrologueSize = 0x40

	lrFixedLengthOffset    = 0x02
	lrPreviousLSNOffset    = 0x04
	lrFlagBitsOffset       = 0x0E
	lrTransactionIDOffset  = 0x10
	lrOpOffset             = 0x16
	lrContextOffset        = 0x17
	lrPageIDOffset         = 0x18
	lrSlotIDOffset         = 0x1E
	lrPartitionIDOffset    = 0x30
	lrOffsetInRowOffset    = 0x38
	lrNumElementsOffset    = 0x3E
	lrContentLengthsOffset = 0x40

	beginXactDaysOffset     = 0x2C
	beginXactSecondsOffset  = 0x28
	commitXactDaysOffset    = 0x1C
	commitXactSecondsOffset = 0x18
)

// timestampEpoch anchors BEGIN_XACT/COMMIT_XACT timestamps: SQL Server
// stores them as days since 1900-01-01 plus a tick count at 1/300 second
// resolution.
var timestampEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

func decodeLogTimestamp(days, ticks int32) time.Time {
	seconds := float64(ticks) / 300.0
	return timestampEpoch.AddDate(0, 0, int(days)).Add(time.Duration(seconds * float64(time.Second)))
}

// align4 rounds n up to the next multiple of 4, leaving n unchanged when it
// is already aligned. This is the ceiling used for the content-length array
// itself.
func align4(n int) int {
	if n%4 == 0 {
		return n
	}
	return n + (4 - n%4)
}

// align4Pad rounds a nonzero content-fragment length up to its padded
// on-disk span, always adding a full extra 4 bytes when the length is
// already a multiple of 4. This asymmetry with align4 is not a mistake: it
// mirrors the reference decoder's fragment-length rounding exactly, and the
// record-length formula in the testable properties only holds when the two
// are kept distinct.
func align4Pad(n int) int {
	return n + (4 - n%4)
}

// LogRecord is one decoded log-record entry from a segment's slot array.
type LogRecord struct {
	VLFSeq      uint32
	BlockOffset int64
	SlotNum     int

	FixedLength   uint16
	PreviousLSN   LSN
	FlagBits      uint16
	TransactionID [6]byte
	Op            uint8
	Context       uint8

	PageID      uint32
	FileID      uint16
	SlotID      uint16
	PartitionID uint64
	OffsetInRow uint16
	NumElements uint8
	Fragments   [][]byte

	BeginTime  *time.Time
	CommitTime *time.Time
}

// ParseLogRecord decodes one log record from buf, which must contain at
// least the fixed 0x40-byte prologue plus however many content-length
// entries and fragments the prologue declares. Unknown op codes are
// tolerated: the prologue is still decoded, since BEGIN/COMMIT boundary
// records must never be dropped just because some other op is unrecognized
// (§7) — this function itself only special-cases the 5 known ops; any
// other op still yields a valid LogRecord with empty DML fields.
func ParseLogRecord(buf []byte) (LogRecord, error) {
	if len(buf) < logRecordPrologueSize {
		return LogRecord{}, fmt.Errorf("mssqllog: log record shorter than prologue: %d bytes", len(buf))
	}

	var rec LogRecord
	rec.FixedLength = binary.LittleEndian.Uint16(buf[lrFixedLengthOffset:])
	rec.PreviousLSN = LSN{
		A: binary.LittleEndian.Uint32(buf[lrPreviousLSNOffset:]),
		B: binary.LittleEndian.Uint32(buf[lrPreviousLSNOffset+4:]),
		C: binary.LittleEndian.Uint16(buf[lrPreviousLSNOffset+8:]),
	}
	rec.FlagBits = binary.LittleEndian.Uint16(buf[lrFlagBitsOffset:])
	copy(rec.TransactionID[:], buf[lrTransactionIDOffset:lrTransactionIDOffset+6])
	rec.Op = buf[lrOpOffset]
	rec.Context = buf[lrContextOffset]

	switch rec.Op {
	case OpBeginXact:
		if len(buf) > beginXactDaysOffset+4 {
			days := int32(binary.LittleEndian.Uint32(buf[beginXactDaysOffset:]))
			seconds := int32(binary.LittleEndian.Uint32(buf[beginXactSecondsOffset:]))
			t := decodeLogTimestamp(days, seconds)
			rec.BeginTime = &t
		}
	case OpCommitXact:
		if len(buf) > commitXactDaysOffset+4 {
			days := int32(binary.LittleEndian.Uint32(buf[commitXactDaysOffset:]))
			seconds := int32(binary.LittleEndian.Uint32(buf[commitXactSecondsOffset:]))
			t := decodeLogTimestamp(days, seconds)
			rec.CommitTime = &t
		}
	case OpInsertRows, OpDeleteRows, OpModifyRow:
		if len(buf) < lrNumElementsOffset+1 {
			return rec, fmt.Errorf("mssqllog: DML record too short for field header")
		}
		rec.PageID = binary.LittleEndian.Uint32(buf[lrPageIDOffset:])
		rec.FileID = binary.LittleEndian.Uint16(buf[lrPageIDOffset+4:])
		rec.SlotID = binary.LittleEndian.Uint16(buf[lrSlotIDOffset:])
		rec.PartitionID = binary.LittleEndian.Uint64(buf[lrPartitionIDOffset:])
		rec.OffsetInRow = binary.LittleEndian.Uint16(buf[lrOffsetInRowOffset:])
		rec.NumElements = buf[lrNumElementsOffset]

		lengthArraySize := align4(2 * int(rec.NumElements))
		cursorBase := lrContentLengthsOffset
		if len(buf) < cursorBase+2*int(rec.NumElements) {
			return rec, fmt.Errorf("mssqllog: content-length array past record end")
		}
		lengths := make([]int, rec.NumElements)
		for i := 0; i < int(rec.NumElements); i++ {
			lengths[i] = int(binary.LittleEndian.Uint16(buf[cursorBase+2*i:]))
		}

		cursor := cursorBase + lengthArraySize
		rec.Fragments = make([][]byte, 0, rec.NumElements)
		for _, length := range lengths {
			if length == 0 {
				rec.Fragments = append(rec.Fragments, nil)
				continue
			}
			if cursor+length > len(buf) {
				return rec, fmt.Errorf("mssqllog: content fragment past record end")
			}
			rec.Fragments = append(rec.Fragments, buf[cursor:cursor+length])
			cursor += align4Pad(length)
		}
	}

	return rec, nil
}

// RecordLength computes the total on-disk length of a DML log record per
// the testable-properties formula: the fixed prologue, the 4-aligned
// content-length array (align4), and the sum of the padded spans (align4Pad)
// of the nonzero content lengths.
func RecordLength(numElements uint8, contentLengths []int) int {
	total := logRecordPrologueSize + align4(2*int(numElements))
	for _, l := range contentLengths {
		if l != 0 {
			total += align4Pad(l)
		}
	}
	return total
}
