package mssqllog

// ColumnKind classifies how a column's bytes are laid out in a row record.
type ColumnKind int

const (
	// KindStatic columns occupy a fixed number of bytes in the static
	// region of the row.
	KindStatic ColumnKind = iota
	// KindBit columns are static but packed eight-to-a-byte.
	KindBit
	// KindVariable columns are addressed through the variable end-offset
	// array.
	KindVariable
)

// Well-known system object IDs used to bootstrap the catalog.
const (
	ObjIDSysschobjs    uint32 = 0x22
	ObjIDSyscolpars    uint32 = 0x29
	ObjIDSysiscols     uint32 = 0x37
	ObjIDSysrowsets    uint32 = 0x05
	ObjIDSysallocunits uint32 = 0x07
)

// ColumnSchema describes one column of a table, as derived from syscolpars
// (plus ordinal corrections from sysiscols).
type ColumnSchema struct {
	ObjectID  uint32
	Ordinal   uint16
	XType     byte
	UType     uint32
	Size      int
	IsMax     bool
	Name      string
	SQLType   string
	Kind      ColumnKind
	Precision byte
	Scale     byte
}

// TableRowLayout is the physical shape of a table's rows, derived by
// tableSchemeAnalyzer from its column list.
type TableRowLayout struct {
	TotalCols       int
	StaticCols      int
	VariableCols    int
	BitCols         int
	StaticLength    int
	CheckLastColumn bool
}

// TableInfo is a fully resolved user table: identity, partition binding, and
// physical layout.
type TableInfo struct {
	ObjectID    uint32
	Name        string
	ColumnCount int
	PartitionID uint64
	PObjectID   uint64
	Columns     []ColumnSchema
	Layout      TableRowLayout
}

// isBitType, isVariableType and isLOBType classify a SQL type name the way
// tableSchemeAnalyzer does: by the name typeName derives from the (xtype,
// utype) pair, not by numeric xtype alone.
func isBitType(sqlType string) bool {
	return sqlType == "bit"
}

func isVariableType(sqlType string) bool {
	switch sqlType {
	case "varchar", "nvarchar", "varbinary", "hierarchyid", "sql_variant", "xml", "sysname",
		"text", "image", "ntext":
		return true
	}
	return false
}

func isLOBType(sqlType string) bool {
	switch sqlType {
	case "text", "image", "ntext":
		return true
	}
	return false
}

// tableSchemeAnalyzer derives a TableRowLayout from an ordinal-sorted column
// list, classifying every column's Kind in place and tracking static length,
// bit-group packing and whether the last variable column can be a bare
// (non-LOB) absence.
func tableSchemeAnalyzer(cols []ColumnSchema) TableRowLayout {
	var layout TableRowLayout

	bitIndex := 0
	for i := range cols {
		c := &cols[i]
		switch {
		case isBitType(c.SQLType):
			c.Kind = KindBit
			if bitIndex%8 == 0 {
				layout.StaticLength++
			}
			bitIndex++
			layout.StaticCols++
		case isVariableType(c.SQLType):
			c.Kind = KindVariable
			layout.VariableCols++
			// Tracks whether the LAST variable column is a non-LOB type;
			// later columns overwrite earlier ones.
			layout.CheckLastColumn = !isLOBType(c.SQLType)
		default:
			c.Kind = KindStatic
			size := c.Size
			if c.IsMax {
				size = 0x10
			}
			layout.StaticLength += size
			layout.StaticCols++
		}
		if int(c.Ordinal) > layout.TotalCols {
			layout.TotalCols = int(c.Ordinal)
		}
	}
	return layout
}

// columnByName looks up a decoded column by its schema name, the mechanism
// the catalog bootstrap uses to pull named fields (id, name, type, intprop,
// idmajor, ...) out of a generically-decoded system-table row.
func columnByName(cols []DecodedColumn, name string) (DecodedColumn, bool) {
	for _, c := range cols {
		if c.Schema.Name == name {
			return c, true
		}
	}
	return DecodedColumn{}, false
}
