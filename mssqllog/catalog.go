package mssqllog

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Fixed byte offsets of the syscolpars "column descriptor" row format.
// syscolpars is itself a user-shaped table, so this format cannot be
// derived circularly; it is hardcoded per the cyclic-dependency design
// note and used both to read syscolpars's own rows (to derive every other
// system table's column list) and, identically, to read user tables'
// column definitions.
const (
	descOwningObjectIDOffset = 0x04
	descOrdinalOffset        = 0x0A
	descXTypeOffset          = 0x0E
	descUTypeOffset          = 0x0F
	descColSizeOffset        = 0x13
	descPrecisionOffset      = 0x15
	descScaleOffset          = 0x16
	descRecordLenOffset      = 0x33
	descNameOffset           = 0x35

	descMaxSize = 0xFFFF
)

// columnDescriptor parses one syscolpars-shaped row into a ColumnSchema,
// returning ok=false when the row's record-length field is zero (a marker
// for "no column here", per the on-disk convention) or the buffer is too
// short to hold the fixed descriptor fields.
func columnDescriptor(buf []byte) (owningObjectID uint32, col ColumnSchema, ok bool) {
	if len(buf) < descNameOffset {
		return 0, ColumnSchema{}, false
	}
	recordLen := binary.LittleEndian.Uint16(buf[descRecordLenOffset:])
	if recordLen == 0 {
		return 0, ColumnSchema{}, false
	}
	// The descriptor is bounded by its own record-length field; without the
	// trim the name decode below would run to the end of the page. A record
	// length shorter than the fixed descriptor region is garbage.
	if int(recordLen) < descNameOffset {
		return 0, ColumnSchema{}, false
	}
	if int(recordLen) < len(buf) {
		buf = buf[:recordLen]
	}
	owningObjectID = binary.LittleEndian.Uint32(buf[descOwningObjectIDOffset:])
	ordinal := binary.LittleEndian.Uint16(buf[descOrdinalOffset:])
	xtype := buf[descXTypeOffset]
	utype := binary.LittleEndian.Uint32(buf[descUTypeOffset:])
	size := int(binary.LittleEndian.Uint16(buf[descColSizeOffset:]))
	isMax := false
	if size >= descMaxSize {
		size = 0x10
		isMax = true
	}
	name := ""
	if descNameOffset < len(buf) {
		if s, err := decodeUTF16LE(buf[descNameOffset:]); err == nil {
			name = s
		}
	}
	sqlType := typeName(xtype, utype)
	col = ColumnSchema{
		ObjectID: owningObjectID,
		Ordinal:  ordinal,
		XType:    xtype,
		UType:    utype,
		Size:     size,
		IsMax:    isMax,
		Name:     name,
		SQLType:  sqlType,
	}
	switch sqlType {
	case "numeric", "decimal":
		if len(buf) > descScaleOffset {
			col.Precision = buf[descPrecisionOffset]
			col.Scale = buf[descScaleOffset]
		}
	case "time", "datetime2", "datetimeoffset":
		// Time-family precision is stored where numeric's scale byte sits.
		if len(buf) > descScaleOffset {
			col.Precision = buf[descScaleOffset]
		}
	}
	return owningObjectID, col, true
}

// PageCensus maps a page number to the object id that owns it, the product
// of the page-census pass over the whole MDF.
type PageCensus map[uint32]uint32

// Catalog holds the fully bootstrapped system catalog: the page census and
// every user table's resolved layout.
type Catalog struct {
	Census PageCensus
	Tables []TableInfo

	reader   *FileReader
	pageSize int
}

// NewCatalog begins catalog bootstrap against an opened MDF.
func NewCatalog(reader *FileReader) *Catalog {
	return &Catalog{reader: reader, pageSize: PageSize}
}

// ScanPages walks every page of the MDF, recording (pageno, objectid) for
// data pages only. Non-data pages are skipped, not rejected.
func (c *Catalog) ScanPages() error {
	c.Census = make(PageCensus)
	total := c.reader.Size() / PageSize
	for pageno := int64(0); pageno < total; pageno++ {
		buf, err := c.reader.ReadAt(pageno*PageSize, PageSize)
		if err != nil || len(buf) < PageHeaderSize {
			continue
		}
		header, err := DecodePageHeader(buf)
		if err != nil || header.Type != PageTypeData {
			continue
		}
		c.Census[uint32(pageno)] = header.ObjectID
	}
	log.Info().Int("pages", len(c.Census)).Msg("page census complete")
	return nil
}

// pagesForObject returns the page numbers owned by objectID, in ascending
// order, per the census.
func (c *Catalog) pagesForObject(objectID uint32) []uint32 {
	var pages []uint32
	for pageno, obj := range c.Census {
		if obj == objectID {
			pages = append(pages, pageno)
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// readPage reads and, if needed, torn-bit-repairs a page by number.
func (c *Catalog) readPage(pageno uint32) ([]byte, PageHeader, error) {
	buf, err := c.reader.ReadAt(int64(pageno)*PageSize, PageSize)
	if err != nil || len(buf) < PageSize {
		return nil, PageHeader{}, fmt.Errorf("mssqllog: short read for page %d", pageno)
	}
	header, err := DecodePageHeader(buf)
	if err != nil {
		return nil, PageHeader{}, err
	}
	if header.TornBitProtected() {
		repaired, err := RepairTornBits(buf)
		if err != nil {
			return nil, PageHeader{}, err
		}
		buf = repaired
	}
	return buf, header, nil
}

// columnDescriptorsFor reads every syscolpars-shaped descriptor row owned
// by targetObjectID, by walking the pages syscolpars itself occupies
// (objectid == 0x29). Used both to derive sysschobjs/sysiscols/sysrowsets/
// sysallocunits's own column lists and to read a user table's columns.
func (c *Catalog) columnDescriptorsFor(targetObjectID uint32) []ColumnSchema {
	var cols []ColumnSchema
	for _, pageno := range c.pagesForObject(ObjIDSyscolpars) {
		buf, header, err := c.readPage(pageno)
		if err != nil {
			continue
		}
		for _, off := range SlotArray(buf, header.SlotCnt) {
			if int(off) >= len(buf) {
				continue
			}
			owner, col, ok := columnDescriptor(buf[off:])
			if !ok || owner != targetObjectID {
				continue
			}
			cols = append(cols, col)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
	return cols
}

// indexInfoRecord parses one sysiscols-shaped row, returning the
// (indexColumnID, columnID) pair needed for the ordinal fixup. Unlike the
// reference this is returned from the function instead of being left as a
// dead local, so the fixup in resolveOrdinals actually fires.
func indexInfoRecord(decoded []DecodedColumn) (idmajor uint32, status uint32, indexColumnID uint16, columnID uint32, ok bool) {
	idmajorCol, ok1 := columnByName(decoded, "idmajor")
	statusCol, ok2 := columnByName(decoded, "status")
	subidCol, ok3 := columnByName(decoded, "subid")
	intpropCol, ok4 := columnByName(decoded, "intprop")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0, 0, 0, 0, false
	}
	if len(idmajorCol.Bytes) == 0 || len(statusCol.Bytes) == 0 || len(subidCol.Bytes) == 0 || len(intpropCol.Bytes) == 0 {
		return 0, 0, 0, 0, false
	}
	idmajor = uint32(leUint(idmajorCol.Bytes))
	status = uint32(leUint(statusCol.Bytes))
	indexColumnID = uint16(leUint(subidCol.Bytes))
	columnID = uint32(leUint(intpropCol.Bytes))
	return idmajor, status, indexColumnID, columnID, true
}

// leUint decodes buf as a little-endian unsigned integer of whatever width
// the column actually has, up to 8 bytes. Catalog columns like subid are
// narrower than the values derived from them.
func leUint(buf []byte) uint64 {
	if len(buf) > 8 {
		buf = buf[:8]
	}
	var v uint64
	for i := len(buf) - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// changeOrdinal moves the column currently at ordinal oldOrdinal to
// newOrdinal. Moving to a lower ordinal increments every column in
// [newOrdinal, oldOrdinal); moving to a higher ordinal decrements every
// column in (oldOrdinal, newOrdinal]. This implements the prose description
// of the fixup ("shift ordinals between old and new position by one")
// rather than the reference's dead schema.colData expression.
func changeOrdinal(cols []ColumnSchema, newOrdinal, oldOrdinal uint16) {
	if newOrdinal == oldOrdinal || newOrdinal == 0 || oldOrdinal == 0 {
		return
	}
	lo, hi := newOrdinal, oldOrdinal
	shiftUp := hi > lo
	for i := range cols {
		switch {
		case cols[i].Ordinal == oldOrdinal:
			cols[i].Ordinal = newOrdinal
		case shiftUp && cols[i].Ordinal >= lo && cols[i].Ordinal < hi:
			cols[i].Ordinal++
		case !shiftUp && cols[i].Ordinal > hi && cols[i].Ordinal <= lo:
			cols[i].Ordinal--
		}
	}
}

// resolveOrdinals applies every sysiscols ordinal fixup belonging to table
// tableID against cols.
func (c *Catalog) resolveOrdinals(tableID uint32, cols []ColumnSchema, sysiscolsLayout TableRowLayout, sysiscolsCols []ColumnSchema) {
	for _, pageno := range c.pagesForObject(ObjIDSysiscols) {
		buf, header, err := c.readPage(pageno)
		if err != nil {
			continue
		}
		for _, off := range SlotArray(buf, header.SlotCnt) {
			if int(off) >= len(buf) {
				continue
			}
			decoded, err := DecodeRecord(buf[off:], sysiscolsLayout, sysiscolsCols, c.pageSize)
			if err != nil {
				continue
			}
			idmajor, status, indexColumnID, columnID, ok := indexInfoRecord(decoded)
			if !ok || idmajor != tableID || status&2 == 0 {
				continue
			}
			if indexColumnID != 0 && uint32(indexColumnID) != columnID {
				changeOrdinal(cols, indexColumnID, uint16(columnID))
			}
		}
	}
}

// Bootstrap runs every step of §4.4: page census, system-schema derivation,
// user-table discovery, user-column discovery, ordinal fixups and
// partition binding. It returns false (with tablelist left empty) when the
// catalog cannot be resolved at all, the only condition that should abort
// the whole run.
func (c *Catalog) Bootstrap() bool {
	if c.Census == nil {
		if err := c.ScanPages(); err != nil {
			return false
		}
	}

	sysschobjsCols := c.columnDescriptorsFor(ObjIDSysschobjs)
	sysiscolsCols := c.columnDescriptorsFor(ObjIDSysiscols)
	sysrowsetsCols := c.columnDescriptorsFor(ObjIDSysrowsets)
	sysallocunitsCols := c.columnDescriptorsFor(ObjIDSysallocunits)

	if len(sysschobjsCols) == 0 || len(sysiscolsCols) == 0 || len(sysrowsetsCols) == 0 || len(sysallocunitsCols) == 0 {
		log.Error().Msg("catalog bootstrap: could not resolve one or more system table layouts")
		return false
	}

	sysschobjsLayout := tableSchemeAnalyzer(sysschobjsCols)
	sysiscolsLayout := tableSchemeAnalyzer(sysiscolsCols)
	sysrowsetsLayout := tableSchemeAnalyzer(sysrowsetsCols)
	sysallocunitsLayout := tableSchemeAnalyzer(sysallocunitsCols)

	var tables []TableInfo
	for _, pageno := range c.pagesForObject(ObjIDSysschobjs) {
		buf, header, err := c.readPage(pageno)
		if err != nil {
			continue
		}
		for _, off := range SlotArray(buf, header.SlotCnt) {
			if int(off) >= len(buf) {
				continue
			}
			decoded, err := DecodeRecord(buf[off:], sysschobjsLayout, sysschobjsCols, c.pageSize)
			if err != nil {
				continue
			}
			// The type column is blank-padded; only its first byte matters.
			typeCol, ok := columnByName(decoded, "type")
			if !ok || len(typeCol.Bytes) == 0 || typeCol.Bytes[0] != 'U' {
				continue
			}
			idCol, ok := columnByName(decoded, "id")
			if !ok || len(idCol.Bytes) < 4 {
				continue
			}
			nameCol, _ := columnByName(decoded, "name")
			intpropCol, _ := columnByName(decoded, "intprop")

			id := binary.LittleEndian.Uint32(idCol.Bytes)
			name, _ := decodeUTF16LE(nameCol.Bytes)
			columnCount := 0
			if len(intpropCol.Bytes) >= 4 {
				columnCount = int(binary.LittleEndian.Uint32(intpropCol.Bytes))
			}
			tables = append(tables, TableInfo{ObjectID: id, Name: name, ColumnCount: columnCount})
		}
	}

	for i := range tables {
		cols := c.columnDescriptorsFor(tables[i].ObjectID)
		c.resolveOrdinals(tables[i].ObjectID, cols, sysiscolsLayout, sysiscolsCols)
		sort.Slice(cols, func(a, b int) bool { return cols[a].Ordinal < cols[b].Ordinal })
		tables[i].Columns = cols
		tables[i].Layout = tableSchemeAnalyzer(cols)
		tables[i].PartitionID, tables[i].PObjectID = c.partitionBinding(tables[i].ObjectID,
			sysrowsetsLayout, sysrowsetsCols, sysallocunitsLayout, sysallocunitsCols)
	}

	c.Tables = tables
	log.Info().Int("tables", len(tables)).Msg("catalog bootstrap complete")
	return true
}

// partitionBinding implements §4.4 step 6: find the table's rowsetid in
// sysrowsets, then the HoBT allocation unit bound to that rowset in
// sysallocunits, deriving pobjectid from the allocation unit id.
func (c *Catalog) partitionBinding(tableID uint32, rowsetsLayout TableRowLayout, rowsetsCols []ColumnSchema,
	allocLayout TableRowLayout, allocCols []ColumnSchema) (partitionID uint64, pobjectID uint64) {

	var rowsetID uint64
	found := false
	for _, pageno := range c.pagesForObject(ObjIDSysrowsets) {
		if found {
			break
		}
		buf, header, err := c.readPage(pageno)
		if err != nil {
			continue
		}
		for _, off := range SlotArray(buf, header.SlotCnt) {
			if int(off) >= len(buf) {
				continue
			}
			decoded, err := DecodeRecord(buf[off:], rowsetsLayout, rowsetsCols, c.pageSize)
			if err != nil {
				continue
			}
			idmajorCol, ok := columnByName(decoded, "idmajor")
			if !ok || len(idmajorCol.Bytes) < 4 || binary.LittleEndian.Uint32(idmajorCol.Bytes) != tableID {
				continue
			}
			rowsetidCol, ok := columnByName(decoded, "rowsetid")
			if !ok || len(rowsetidCol.Bytes) < 8 {
				continue
			}
			rowsetID = binary.LittleEndian.Uint64(rowsetidCol.Bytes)
			found = true
			break
		}
	}
	if !found {
		return 0, 0
	}
	partitionID = rowsetID

	for _, pageno := range c.pagesForObject(ObjIDSysallocunits) {
		buf, header, err := c.readPage(pageno)
		if err != nil {
			continue
		}
		for _, off := range SlotArray(buf, header.SlotCnt) {
			if int(off) >= len(buf) {
				continue
			}
			decoded, err := DecodeRecord(buf[off:], allocLayout, allocCols, c.pageSize)
			if err != nil {
				continue
			}
			ownerCol, ok1 := columnByName(decoded, "ownerid")
			typeCol, ok2 := columnByName(decoded, "type")
			auidCol, ok3 := columnByName(decoded, "auid")
			if !ok1 || !ok2 || !ok3 || len(ownerCol.Bytes) < 8 || len(typeCol.Bytes) < 1 || len(auidCol.Bytes) < 8 {
				continue
			}
			if binary.LittleEndian.Uint64(ownerCol.Bytes) != partitionID || typeCol.Bytes[0] != 0x01 {
				continue
			}
			auid := binary.LittleEndian.Uint64(auidCol.Bytes)
			pobjectID = (auid % (1 << 48)) >> 16
			return partitionID, pobjectID
		}
	}
	return partitionID, 0
}
