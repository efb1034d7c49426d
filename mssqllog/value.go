package mssqllog

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// decodeUTF16LE converts a raw UTF-16LE byte slice (as stored in nchar,
// nvarchar and catalog name columns) to a Go string. The decoder is stateful
// and therefore created per call.
func decodeUTF16LE(buf []byte) (string, error) {
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(buf)
	if err != nil {
		return "", fmt.Errorf("mssqllog: decoding utf16le: %w", err)
	}
	return string(out), nil
}

func reversed(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}

func hexString(buf []byte) string {
	return fmt.Sprintf("%x", buf)
}

func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DecodeValue converts a single column's raw bytes into its SQL literal or
// CAST/CONVERT expression, per the value-decoder rules. isLOB indicates the
// caller determined (via the 0x8000 high bit on the variable end-offset)
// that this column's payload is an off-row LOB pointer rather than in-row
// data; LOB payloads are never recovered, only their absence is signalled.
// Precision and scale for numeric/decimal/time-family columns come from the
// catalog-derived schema, not from the row bytes themselves.
func DecodeValue(schema ColumnSchema, buf []byte, isLOB bool) string {
	sqlType := schema.SQLType
	switch sqlType {
	case "tinyint":
		if len(buf) < 1 {
			return ""
		}
		return fmt.Sprintf("%d", buf[0])
	case "smallint":
		if len(buf) < 2 {
			return ""
		}
		return fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(buf)))
	case "int":
		if len(buf) < 4 {
			return ""
		}
		return quoteSQL(fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(buf))))
	case "bigint":
		if len(buf) < 8 {
			return ""
		}
		return fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(buf)))
	case "real":
		if len(buf) < 4 {
			return ""
		}
		return fmt.Sprintf("%v", math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case "float":
		if len(buf) < 8 {
			return ""
		}
		return fmt.Sprintf("%v", math.Float64frombits(binary.LittleEndian.Uint64(buf)))
	case "datetime", "smalldatetime", "money", "smallmoney":
		return fmt.Sprintf("cast(0x%s as %s)", hexString(reversed(buf)), sqlType)
	case "date":
		return fmt.Sprintf("cast(0x%s as date)", hexString(buf))
	case "time", "datetime2", "datetimeoffset":
		// The CAST target is always the literal word "time" regardless of
		// which of the three actual types this is, matching the on-disk
		// decoder's own convention. Precision comes from the catalog, not
		// from the row bytes.
		if len(buf) < 1 {
			return ""
		}
		return fmt.Sprintf("cast(0x%02x%s as time)", schema.Precision, hexString(buf))
	case "numeric", "decimal":
		if len(buf) < 1 {
			return ""
		}
		precision, scale := schema.Precision, schema.Scale
		return fmt.Sprintf("convert(%s(%d,%d),0x%02x%02x0001%s)", sqlType, precision, scale,
			precision, scale, hexString(buf[1:]))
	case "char":
		return quoteSQL(string(buf))
	case "varchar":
		if isLOB {
			return ""
		}
		return quoteSQL(string(buf))
	case "nchar", "nvarchar", "sysname":
		if isLOB {
			return ""
		}
		s, err := decodeUTF16LE(buf)
		if err != nil {
			return ""
		}
		return quoteSQL(s)
	case "binary", "varbinary":
		if isLOB {
			return "0x"
		}
		return "0x" + hexString(buf)
	default:
		return ""
	}
}
