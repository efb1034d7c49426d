package mssqllog

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconstructed is one emitted DML record: its begin/commit timestamps
// (either may be absent) and the SQL text.
type Reconstructed struct {
	BeginTime *time.Time
	EndTime   *time.Time
	Query     string
}

// Reconstructor joins log records against resolved table layouts to
// produce SQL text, per §4.7/§4.8.
type Reconstructor struct {
	mdf    *FileReader
	tables []TableInfo
}

// NewReconstructor builds a reconstructor over the given catalog tables;
// each log record's table is found by a linear search on partition id.
func NewReconstructor(mdf *FileReader, tables []TableInfo) *Reconstructor {
	return &Reconstructor{mdf: mdf, tables: tables}
}

func (r *Reconstructor) tableForPartition(partitionID uint64) (TableInfo, bool) {
	for _, t := range r.tables {
		if t.PartitionID == partitionID {
			return t, true
		}
	}
	return TableInfo{}, false
}

// Reconstruct processes every record, grouping by transaction id for the
// BEGIN/COMMIT timestamp join, and returns one Reconstructed value per
// successfully decoded DML record. Records that cannot be matched to a
// table, or whose row decode fails, are silently skipped (§7).
func (r *Reconstructor) Reconstruct(records []LogRecord) []Reconstructed {
	byTxn := make(map[[6]byte][]LogRecord)
	for _, rec := range records {
		byTxn[rec.TransactionID] = append(byTxn[rec.TransactionID], rec)
	}

	var out []Reconstructed
	for _, rec := range records {
		switch rec.Op {
		case OpInsertRows, OpDeleteRows, OpModifyRow:
		default:
			continue
		}
		table, ok := r.tableForPartition(rec.PartitionID)
		if !ok {
			continue
		}
		query, ok := r.reconstructOne(table, rec)
		if !ok {
			continue
		}
		begin, end := transactionTimes(byTxn[rec.TransactionID])
		out = append(out, Reconstructed{BeginTime: begin, EndTime: end, Query: query})
	}
	return out
}

// transactionTimes finds the first BEGIN_XACT's begin time and the first
// COMMIT_XACT's end time among a transaction's records; either may be
// absent. Only a COMMIT_XACT record supplies an end time: an aborted
// transaction's DML is still emitted, with its end time absent.
func transactionTimes(txRecords []LogRecord) (begin, end *time.Time) {
	for _, rec := range txRecords {
		if rec.Op == OpBeginXact && rec.BeginTime != nil && begin == nil {
			begin = rec.BeginTime
		}
		if rec.Op == OpCommitXact && rec.CommitTime != nil && end == nil {
			end = rec.CommitTime
		}
	}
	return begin, end
}

func (r *Reconstructor) reconstructOne(table TableInfo, rec LogRecord) (string, bool) {
	switch rec.Op {
	case OpInsertRows:
		if len(rec.Fragments) < 1 || rec.Fragments[0] == nil {
			return "", false
		}
		cols, err := DecodeRecord(rec.Fragments[0], table.Layout, table.Columns, PageSize)
		if err != nil {
			log.Debug().Err(err).Str("table", table.Name).Msg("skipping insert record")
			return "", false
		}
		return r.emitInsert(table, cols), true

	case OpDeleteRows:
		if len(rec.Fragments) < 1 || rec.Fragments[0] == nil {
			return "", false
		}
		cols, err := DecodeRecord(rec.Fragments[0], table.Layout, table.Columns, PageSize)
		if err != nil {
			log.Debug().Err(err).Str("table", table.Name).Msg("skipping delete record")
			return "", false
		}
		return r.emitDelete(table, cols), true

	case OpModifyRow:
		if len(rec.Fragments) < 2 || rec.Fragments[0] == nil || rec.Fragments[1] == nil {
			return "", false
		}
		afterImage, beforeImage, ok := r.buildBeforeImage(table, rec, rec.Fragments[0], rec.Fragments[1])
		if !ok {
			return "", false
		}
		afterCols, err := DecodeRecord(afterImage, table.Layout, table.Columns, PageSize)
		if err != nil {
			log.Debug().Err(err).Str("table", table.Name).Msg("skipping update record: after decode")
			return "", false
		}
		beforeCols, err := DecodeRecord(beforeImage, table.Layout, table.Columns, PageSize)
		if err != nil {
			log.Debug().Err(err).Str("table", table.Name).Msg("skipping update record: before decode")
			return "", false
		}
		return r.emitUpdate(table, afterCols, beforeCols), true
	}
	return "", false
}

// buildBeforeImage re-reads the current MDF page for a MODIFY_ROW record,
// resolves the row by slot, trims it to its computed length, and splices the
// before fragment over the after-length window at offsetinrow, per §4.7.
// The trimmed current row IS the after image: SQL Server overwrites rows in
// place, so the on-disk state already reflects the update. The spliced copy
// is the before image.
func (r *Reconstructor) buildBeforeImage(table TableInfo, rec LogRecord, before, after []byte) (afterImage, beforeImage []byte, ok bool) {
	if r.mdf == nil || len(before) != len(after) {
		return nil, nil, false
	}
	pageBuf, err := r.mdf.ReadAt(int64(rec.PageID)*PageSize, PageSize)
	if err != nil || len(pageBuf) < PageSize {
		return nil, nil, false
	}
	header, err := DecodePageHeader(pageBuf)
	if err != nil {
		return nil, nil, false
	}
	if header.TornBitProtected() {
		repaired, err := RepairTornBits(pageBuf)
		if err != nil {
			return nil, nil, false
		}
		pageBuf = repaired
	}
	if int(rec.SlotID) >= int(header.SlotCnt) {
		return nil, nil, false
	}
	// Positional lookup: the trailer entry for slot s sits 2*(s+1) bytes
	// before the page end, zero entries included, so slot ids keep their
	// on-disk positions. SlotArray's zero-filtered view is not usable here.
	pos := len(pageBuf) - 2*(int(rec.SlotID)+1)
	if pos < PageHeaderSize {
		return nil, nil, false
	}
	rowOffset := int(binary.LittleEndian.Uint16(pageBuf[pos:]))
	if rowOffset == 0 || rowOffset >= len(pageBuf) {
		return nil, nil, false
	}

	recordLen := CalcDataRecordLen(pageBuf[rowOffset:], table.Layout)
	if recordLen <= 0 || rowOffset+recordLen > len(pageBuf) {
		return nil, nil, false
	}
	current := pageBuf[rowOffset : rowOffset+recordLen]

	k := int(rec.OffsetInRow)
	if k < 0 || k+len(after) > len(current) {
		return nil, nil, false
	}

	spliced := make([]byte, len(current))
	copy(spliced, current)
	copy(spliced[k:k+len(after)], before)
	return current, spliced, true
}

func (r *Reconstructor) emitInsert(table TableInfo, cols []DecodedColumn) string {
	values := make([]string, 0, len(cols))
	for _, c := range cols {
		values = append(values, DecodeValue(c.Schema, c.Bytes, c.IsLOB))
	}
	return fmt.Sprintf("insert into %s values (%s)", table.Name, strings.Join(values, ","))
}

func (r *Reconstructor) emitDelete(table TableInfo, cols []DecodedColumn) string {
	var clauses []string
	for _, c := range cols {
		clauses = append(clauses, fmt.Sprintf("%s=%s", c.Schema.Name, DecodeValue(c.Schema, c.Bytes, c.IsLOB)))
	}
	return fmt.Sprintf("delete from %s where %s", table.Name, strings.Join(clauses, " and "))
}

func (r *Reconstructor) emitUpdate(table TableInfo, afterCols, beforeCols []DecodedColumn) string {
	var sets []string
	for _, c := range afterCols {
		sets = append(sets, fmt.Sprintf("%s=%s", c.Schema.Name, DecodeValue(c.Schema, c.Bytes, c.IsLOB)))
	}
	var wheres []string
	for _, c := range beforeCols {
		wheres = append(wheres, fmt.Sprintf("%s=%s", c.Schema.Name, DecodeValue(c.Schema, c.Bytes, c.IsLOB)))
	}
	return fmt.Sprintf("update %s set %s where %s", table.Name, strings.Join(sets, ", "), strings.Join(wheres, ", "))
}
