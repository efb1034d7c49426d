package mssqllog

// xtype/utype constants for the on-disk type descriptor, as stored in
// syscolpars.
const (
	xtBigInt      = 0x7F
	xtBit         = 0x68
	xtDate        = 0x28
	xtDatetime2   = 0x2A
	xtDecimal     = 0x6A
	xtGeoUnknown  = 0xF0
	xtInt         = 0x38
	xtNChar       = 0xEF
	xtNumeric     = 0x6C
	xtSmallDate   = 0x3A
	xtSmallMoney  = 0x7A
	xtTimestamp   = 0xBD
	xtUniqueID    = 0x24
	xtBinary      = 0xAD
	xtChar        = 0xAF
	xtDatetime    = 0x3D
	xtDatetimeOff = 0x2B
	xtFloat       = 0x3E
	xtMoney       = 0x3C
	xtReal        = 0x3B
	xtSmallInt    = 0x34
	xtSQLVariant  = 0x62
	xtTime        = 0x29
	xtTinyInt     = 0x30
	xtXML         = 0xF1
	xtVarBinary   = 0xA5
	xtImage       = 0x22
	xtNVarChar    = 0xE7
	xtVarChar     = 0xA7
	xtText        = 0x23
	xtNText       = 0x63
)

// typeName maps an (xtype, utype) descriptor to the SQL type name used
// everywhere else in this package for dispatch, matching the catalog's own
// naming.
func typeName(xtype byte, utype uint32) string {
	switch xtype {
	case xtBigInt:
		return "bigint"
	case xtBit:
		return "bit"
	case xtDate:
		return "date"
	case xtDatetime2:
		return "datetime2"
	case xtDecimal:
		return "decimal"
	case xtGeoUnknown:
		switch utype {
		case 0x80:
			return "hierarchyid"
		case 0x81:
			return "geometry"
		case 0x82:
			return "geography"
		default:
			return "unknown"
		}
	case xtInt:
		return "int"
	case xtNChar:
		return "nchar"
	case xtNumeric:
		return "numeric"
	case xtSmallDate:
		return "smalldatetime"
	case xtSmallMoney:
		return "smallmoney"
	case xtTimestamp:
		return "timestamp"
	case xtUniqueID:
		return "uniqueidentifier"
	case xtBinary:
		return "binary"
	case xtChar:
		return "char"
	case xtDatetime:
		return "datetime"
	case xtDatetimeOff:
		return "datetimeoffset"
	case xtFloat:
		return "float"
	case xtMoney:
		return "money"
	case xtReal:
		return "real"
	case xtSmallInt:
		return "smallint"
	case xtSQLVariant:
		return "sql_variant"
	case xtTime:
		return "time"
	case xtTinyInt:
		return "tinyint"
	case xtXML:
		return "xml"
	case xtVarBinary:
		return "varbinary"
	case xtImage:
		return "image"
	case xtNVarChar:
		switch utype {
		case 0xE7:
			return "nvarchar"
		case 0x100:
			return "sysname"
		default:
			return "unknown"
		}
	case xtVarChar:
		return "varchar"
	case xtText:
		return "text"
	case xtNText:
		return "ntext"
	default:
		return "unknown"
	}
}
