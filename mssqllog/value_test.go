package mssqllog

import (
	"strings"
	"testing"
)

func TestDecodeValueNumericUsesSchemaPrecisionAndScale(t *testing.T) {
	schema := ColumnSchema{SQLType: "numeric", Precision: 18, Scale: 4}
	// Row bytes: sign byte followed by the magnitude; the sign byte itself
	// must never be read as precision/scale.
	buf := []byte{0x01, 0xAA, 0xBB}

	got := DecodeValue(schema, buf, false)
	want := "convert(numeric(18,4),0x12040001aabb)"
	if got != want {
		t.Errorf("DecodeValue = %q, want %q", got, want)
	}
}

func TestDecodeValueDecimalIgnoresRowBytesForPrecisionScale(t *testing.T) {
	// If precision/scale were still read from buf[1]/buf[2], this would
	// produce convert(decimal(170,187),...) instead of the schema's values.
	schema := ColumnSchema{SQLType: "decimal", Precision: 5, Scale: 2}
	buf := []byte{0x00, 0xAA, 0xBB, 0xCC}

	got := DecodeValue(schema, buf, false)
	if !strings.Contains(got, "decimal(5,2)") {
		t.Errorf("DecodeValue = %q, want it to report schema precision/scale 5,2", got)
	}
	if strings.Contains(got, "decimal(170,187)") {
		t.Errorf("DecodeValue = %q, fabricated precision/scale from row bytes", got)
	}
}

func TestDecodeValueTimeFamilyUsesSchemaPrecision(t *testing.T) {
	for _, sqlType := range []string{"time", "datetime2", "datetimeoffset"} {
		schema := ColumnSchema{SQLType: sqlType, Precision: 7}
		buf := []byte{0x11, 0x22, 0x33}

		got := DecodeValue(schema, buf, false)
		want := "cast(0x07112233 as time)"
		if got != want {
			t.Errorf("DecodeValue(%s) = %q, want %q", sqlType, got, want)
		}
	}
}

func TestDecodeValueTimeFamilyCastTargetAlwaysTime(t *testing.T) {
	schema := ColumnSchema{SQLType: "datetimeoffset", Precision: 0}
	got := DecodeValue(schema, []byte{0x00}, false)
	if !strings.HasSuffix(got, "as time)") {
		t.Errorf("DecodeValue = %q, want CAST target hardcoded to time", got)
	}
}

func TestDecodeValueIntQuotesLiteral(t *testing.T) {
	schema := ColumnSchema{SQLType: "int"}
	buf := []byte{0x2A, 0x00, 0x00, 0x00}
	if got, want := DecodeValue(schema, buf, false), "'42'"; got != want {
		t.Errorf("DecodeValue = %q, want %q", got, want)
	}
}

func TestDecodeValueVarcharLOBIsSuppressed(t *testing.T) {
	schema := ColumnSchema{SQLType: "varchar"}
	if got := DecodeValue(schema, []byte("anything"), true); got != "" {
		t.Errorf("DecodeValue for LOB varchar = %q, want empty", got)
	}
}
