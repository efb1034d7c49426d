package mssqllog

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog/log"
)

// carveByteUnit is the alignment stride signature scanning requires.
const carveByteUnit = 4

// carvePrefixes are the 2-byte sequences that may precede the "3E 00" /
// "4C 00" / "50 00" discriminator at offset +0x00..+0x02 of a candidate
// log-record prologue.
var carvePrefixes = [][2]byte{
	{0x00, 0x00}, {0x40, 0x00}, {0x48, 0x00}, {0x80, 0x00}, {0x88, 0x00},
}

// CarveHit is one candidate log-record offset found by signature scanning,
// alongside the transaction id slice captured at the hit.
type CarveHit struct {
	Offset        int64
	TransactionID [6]byte
}

func matchesPrefix(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	for _, p := range carvePrefixes {
		if buf[0] == p[0] && buf[1] == p[1] {
			return true
		}
	}
	return false
}

// scanRange scans [start, end) of buf (buf is the whole file, start/end are
// absolute offsets already clamped to len(buf)) for the three signature
// families described in §4.6, returning hits in ascending offset order. A
// candidate's window may extend past end, so a signature starting near the
// end of one worker's range is still found by that worker.
func scanRange(buf []byte, start, end int64) []CarveHit {
	var hits []CarveHit
	for off := start; off < end && off+0x1A <= int64(len(buf)); off += carveByteUnit {
		window := buf[off : off+0x1A]
		if !matchesPrefix(window) {
			continue
		}
		var isHit bool
		switch {
		case window[2] == 0x3E && window[3] == 0x00 && (window[0x16] == OpInsertRows || window[0x16] == OpDeleteRows || window[0x16] == OpModifyRow):
			isHit = true
		case window[2] == 0x4C && window[3] == 0x00 && window[0x16] == OpBeginXact:
			isHit = true
		case window[2] == 0x50 && window[3] == 0x00 && window[0x16] == OpCommitXact:
			isHit = true
		}
		if !isHit {
			continue
		}
		var hit CarveHit
		hit.Offset = off
		copy(hit.TransactionID[:], window[0x10:0x16])
		hits = append(hits, hit)
	}
	return hits
}

// Carve scans the whole LDF for DML/BEGIN/COMMIT signatures, partitioning
// the byte range into workers disjoint byte ranges and joining their
// results with errgroup, per §4.6/§5. workers <= 0 defaults to
// runtime.NumCPU().
func Carve(ctx context.Context, reader *FileReader, workers int) ([]CarveHit, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	size := reader.Size()
	buf, err := reader.ReadAt(0, int(size))
	if err != nil {
		return nil, err
	}

	chunk := (int64(len(buf)) + int64(workers) - 1) / int64(workers)
	if chunk == 0 {
		chunk = int64(len(buf))
	}
	// Keep chunk boundaries 4-byte aligned so per-worker scanning (which
	// steps by carveByteUnit from its local start) lines up with the global
	// alignment grid rather than just its own.
	if rem := chunk % carveByteUnit; rem != 0 {
		chunk += carveByteUnit - rem
	}

	results := make([][]CarveHit, workers)
	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		start := int64(w) * chunk
		end := start + chunk
		if end > int64(len(buf)) {
			end = int64(len(buf))
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			results[w] = scanRange(buf, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []CarveHit
	for _, r := range results {
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Offset < all[j].Offset })
	log.Info().Int("hits", len(all)).Int("workers", workers).Msg("carving scan complete")
	return all, nil
}

// ParseLogRecordAt resolves one carving hit into a full LogRecord: it first
// reads the fixed prologue plus content-length array to compute the exact
// on-disk record length per §4.6, then re-reads exactly that many bytes
// before parsing, rather than guessing a fixed-size window.
func ParseLogRecordAt(reader *FileReader, offset int64) (LogRecord, error) {
	head, err := reader.ReadAt(offset, logRecordPrologueSize+2*0xFF)
	if err != nil || len(head) < logRecordPrologueSize {
		return LogRecord{}, fmt.Errorf("mssqllog: short read at carve hit %d", offset)
	}

	numElements := int(head[lrNumElementsOffset])
	lengths := make([]int, 0, numElements)
	cursor := lrContentLengthsOffset
	for i := 0; i < numElements; i++ {
		if cursor+2 > len(head) {
			return LogRecord{}, fmt.Errorf("mssqllog: content-length array past carve window at %d", offset)
		}
		lengths = append(lengths, int(binary.LittleEndian.Uint16(head[cursor:])))
		cursor += 2
	}

	full := RecordLength(uint8(numElements), lengths)
	buf, err := reader.ReadAt(offset, full)
	if err != nil || len(buf) < logRecordPrologueSize {
		return LogRecord{}, fmt.Errorf("mssqllog: short read of full record at %d", offset)
	}
	return ParseLogRecord(buf)
}
