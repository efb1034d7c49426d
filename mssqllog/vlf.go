package mssqllog

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// LDFHeaderSize is the fixed file header preceding the first VLF.
	LDFHeaderSize = 8192

	vlfHeaderSize   = 48
	vlfSeqNumOffset = 0x04
	vlfSizeOffset   = 0x10

	// SegmentBlockSize is the fixed block size fixup and segment scanning
	// operate over.
	SegmentBlockSize = 512

	segmentMarkerA = 0x50
	segmentMarkerB = 0x58

	segHeaderSize       = 64
	segSlotNumOffset    = 0x02
	segSizeOffset       = 0x04
	segFirstLsnOffset   = 0x0C
	segTimestampSecOff  = 0x30
	segTimestampDaysOff = 0x34
)

// VLFInfo describes one Virtual Log File located by scanning the LDF.
type VLFInfo struct {
	SeqNum uint32
	Size   uint32
	Offset int64
}

// ScanVLFs walks the LDF starting at byte 8192, reading the 48-byte VLF
// header at each successive offset and advancing by the VLF's declared
// size. A VLF with seqnum == 0 is unused and skipped (not emitted). The
// scan stops when a read comes back short.
func ScanVLFs(reader *FileReader) ([]VLFInfo, error) {
	var vlfs []VLFInfo
	offset := int64(LDFHeaderSize)
	for {
		buf, err := reader.ReadAt(offset, vlfHeaderSize)
		if err != nil {
			return nil, err
		}
		if len(buf) < vlfHeaderSize {
			break
		}
		seqNum := binary.LittleEndian.Uint32(buf[vlfSeqNumOffset:])
		size := binary.LittleEndian.Uint32(buf[vlfSizeOffset:])
		if size == 0 {
			break
		}
		if seqNum != 0 {
			vlfs = append(vlfs, VLFInfo{SeqNum: seqNum, Size: size, Offset: offset})
		}
		offset += int64(size)
	}
	log.Info().Int("vlfs", len(vlfs)).Msg("scanned VLFs")
	return vlfs, nil
}

// SegmentStart is one candidate log-segment start located within a VLF.
type SegmentStart struct {
	VLFSeq uint32
	Offset int64
}

// ScanLogSegments reads vlf whole and marks every 512-byte block boundary
// whose first byte is one of the two segment-start markers.
func ScanLogSegments(reader *FileReader, vlf VLFInfo) ([]SegmentStart, error) {
	buf, err := reader.ReadAt(vlf.Offset, int(vlf.Size))
	if err != nil {
		return nil, err
	}
	var starts []SegmentStart
	for off := 0; off+1 <= len(buf); off += SegmentBlockSize {
		b := buf[off]
		if b == segmentMarkerA || b == segmentMarkerB {
			starts = append(starts, SegmentStart{VLFSeq: vlf.SeqNum, Offset: vlf.Offset + int64(off)})
		}
	}
	return starts, nil
}

// Fixup reverses the log-segment fixup protection on a copy of segment: for
// every 512-byte block i, the byte relocated to the end of the whole buffer
// is restored as that block's first byte. The source byte for block i is
// segment[len(segment)-1-i], counting from the true end of the entire
// segment buffer (not from the end of block i) — the literal on-disk
// convention, preserved bit-for-bit.
func Fixup(segment []byte) []byte {
	out := make([]byte, len(segment))
	copy(out, segment)
	numBlocks := len(segment) / SegmentBlockSize
	for i := 0; i < numBlocks; i++ {
		out[i*SegmentBlockSize] = segment[len(segment)-1-i]
	}
	return out
}

// Segment is a decoded log segment: its header fields and the log records
// found via its slot array.
type Segment struct {
	VLFSeq    uint32
	SlotNum   int
	SegSize   int
	FirstLSN  LSN
	Timestamp time.Time
	Records   []LogRecord
}

// ParseSegment applies fixup, reads the segment header and slot array, and
// decodes every log record referenced by the slot array.
func ParseSegment(reader *FileReader, vlfSeq uint32, offset int64, size int) (Segment, error) {
	if size <= 0 {
		size = SegmentBlockSize
	}
	raw, err := reader.ReadAt(offset, size)
	if err != nil {
		return Segment{}, err
	}
	if len(raw) < segHeaderSize {
		return Segment{}, fmt.Errorf("mssqllog: segment shorter than header")
	}
	buf := Fixup(raw)

	var seg Segment
	seg.VLFSeq = vlfSeq
	seg.SlotNum = int(binary.LittleEndian.Uint16(buf[segSlotNumOffset:]))
	seg.SegSize = int(binary.LittleEndian.Uint16(buf[segSizeOffset:]))
	seg.FirstLSN = LSN{
		A: binary.LittleEndian.Uint32(buf[segFirstLsnOffset:]),
		B: binary.LittleEndian.Uint32(buf[segFirstLsnOffset+4:]),
		C: binary.LittleEndian.Uint16(buf[segFirstLsnOffset+8:]),
	}
	days := int32(binary.LittleEndian.Uint32(buf[segTimestampDaysOff:]))
	ticks := int32(binary.LittleEndian.Uint32(buf[segTimestampSecOff:]))
	seg.Timestamp = decodeLogTimestamp(days, ticks)

	if seg.SegSize > len(buf) {
		full, err := reader.ReadAt(offset, seg.SegSize)
		if err == nil && len(full) == seg.SegSize {
			buf = Fixup(full)
		}
	}

	// The slot trailer sits at the end of the segment proper, not at the end
	// of the read span (which may run to the next segment start).
	segBuf := buf
	if seg.SegSize >= segHeaderSize && seg.SegSize < len(segBuf) {
		segBuf = segBuf[:seg.SegSize]
	}
	slots := SlotArray(segBuf, uint16(seg.SlotNum))
	for i, off := range slots {
		if int(off) >= len(buf) {
			continue
		}
		rec, err := ParseLogRecord(buf[off:])
		if err != nil {
			continue
		}
		rec.VLFSeq = vlfSeq
		rec.BlockOffset = offset
		rec.SlotNum = i
		seg.Records = append(seg.Records, rec)
	}
	return seg, nil
}
