package mssqllog

import (
	"encoding/binary"
	"fmt"
)

const (
	recordOffsetOfTotalNumOfColOffset = 0x02
	recordStaticRegionStart           = 0x04

	// lobFlag marks a variable end-offset as pointing to an off-row LOB
	// value rather than an in-row payload.
	lobFlag = 0x8000
)

// CalcDataRecordLen computes the on-disk byte length of a row record found
// on a live page: the fixed prologue plus static region, column count and
// null bitmap, extended to the last variable end-offset when the layout
// carries variable columns. Returns 0 when the record's declared column
// count disagrees with the layout, which callers treat as "skip this row".
// Status byte A values 0x10 and 0x1C mark a row that carries no variable
// payload even under a layout that declares variable columns.
func CalcDataRecordLen(buf []byte, layout TableRowLayout) int {
	if len(buf) < recordStaticRegionStart {
		return 0
	}
	offsetOfTotalNumOfCol := int(binary.LittleEndian.Uint16(buf[recordOffsetOfTotalNumOfColOffset:]))
	if offsetOfTotalNumOfCol+2 > len(buf) {
		return 0
	}
	if int(binary.LittleEndian.Uint16(buf[offsetOfTotalNumOfCol:])) != layout.TotalCols {
		return 0
	}
	nullBitmapBytes := (layout.TotalCols + 7) / 8
	recordLen := recordStaticRegionStart + layout.StaticLength + 2 + nullBitmapBytes
	if layout.VariableCols == 0 || buf[0] == 0x10 || buf[0] == 0x1C {
		return recordLen
	}
	if recordLen+2 > len(buf) {
		return 0
	}
	numOfVariableCol := int(binary.LittleEndian.Uint16(buf[recordLen:]))
	lastEndOffsetPos := recordLen + 2*numOfVariableCol
	if lastEndOffsetPos+2 > len(buf) {
		return 0
	}
	end := int(binary.LittleEndian.Uint16(buf[lastEndOffsetPos:]))
	if end > lobFlag {
		end -= lobFlag
	}
	return end
}

// DecodedColumn is one column's raw bytes as sliced out of a row record,
// alongside whether its storage was an off-row LOB pointer.
type DecodedColumn struct {
	Schema ColumnSchema
	Bytes  []byte
	IsLOB  bool
}

// DecodeRecord walks a single row's byte slice against a resolved row
// layout and ordinal-sorted column schema, yielding one DecodedColumn per
// schema entry. Any structural mismatch (wrong column count, offsets past
// the buffer, non-monotonic end-offsets) returns an error and the row
// should be dropped by the caller, not treated as fatal.
func DecodeRecord(buf []byte, layout TableRowLayout, columns []ColumnSchema, pageSize int) ([]DecodedColumn, error) {
	if len(buf) < recordStaticRegionStart {
		return nil, fmt.Errorf("mssqllog: record shorter than static header")
	}
	offsetOfTotalNumOfCol := int(binary.LittleEndian.Uint16(buf[recordOffsetOfTotalNumOfColOffset:]))
	if offsetOfTotalNumOfCol+2 > len(buf) {
		return nil, fmt.Errorf("mssqllog: offsetOfTotalNumOfCol %d past record end", offsetOfTotalNumOfCol)
	}
	totalNumOfCol := int(binary.LittleEndian.Uint16(buf[offsetOfTotalNumOfCol:]))
	if totalNumOfCol != layout.TotalCols {
		return nil, fmt.Errorf("mssqllog: record column count %d != layout %d", totalNumOfCol, layout.TotalCols)
	}

	staticOffset := recordStaticRegionStart
	nullBitmapBytes := (totalNumOfCol + 7) / 8

	var variableOffset int
	var variableLenCursor int
	var numOfVariableCol int
	if layout.VariableCols > 0 {
		variableOffset = recordStaticRegionStart + layout.StaticLength + 2 + nullBitmapBytes
		if variableOffset+2 > len(buf) {
			return nil, fmt.Errorf("mssqllog: variable column count offset past record end")
		}
		numOfVariableCol = int(binary.LittleEndian.Uint16(buf[variableOffset:]))
		variableLenCursor = variableOffset + 2
		variableOffset = variableLenCursor + 2*numOfVariableCol
	}

	out := make([]DecodedColumn, 0, len(columns))
	bitIndex := 0
	var bitByteOffset int

	for _, col := range columns {
		switch col.Kind {
		case KindStatic:
			if staticOffset+col.Size > len(buf) || col.Size >= pageSize {
				return nil, fmt.Errorf("mssqllog: static column %q overruns record", col.Name)
			}
			out = append(out, DecodedColumn{Schema: col, Bytes: buf[staticOffset : staticOffset+col.Size]})
			staticOffset += col.Size
		case KindBit:
			if bitIndex%8 == 0 {
				if staticOffset >= len(buf) {
					return nil, fmt.Errorf("mssqllog: bit column %q overruns record", col.Name)
				}
				bitByteOffset = staticOffset
				staticOffset++
			}
			out = append(out, DecodedColumn{Schema: col, Bytes: buf[bitByteOffset : bitByteOffset+1]})
			bitIndex++
		case KindVariable:
			if variableLenCursor+2 > len(buf) {
				return nil, fmt.Errorf("mssqllog: variable end-offset for %q past record end", col.Name)
			}
			raw := binary.LittleEndian.Uint16(buf[variableLenCursor:])
			variableLenCursor += 2
			isLOB := raw&lobFlag != 0
			endOffset := int(raw &^ lobFlag)
			if endOffset > pageSize || variableOffset > pageSize {
				return nil, fmt.Errorf("mssqllog: variable column %q offset past page size", col.Name)
			}
			if endOffset < variableOffset {
				return nil, fmt.Errorf("mssqllog: variable end-offset for %q non-monotonic", col.Name)
			}
			if endOffset > len(buf) {
				return nil, fmt.Errorf("mssqllog: variable column %q overruns record", col.Name)
			}
			out = append(out, DecodedColumn{
				Schema: col,
				Bytes:  buf[variableOffset:endOffset],
				IsLOB:  isLOB,
			})
			variableOffset = endOffset
		}
	}
	return out, nil
}
