package storage

import (
	"encoding/binary"
	"math"

	"github.com/intellect4all/entropy/common"
)

// Tuple is a serialized row: null bitmap, fixed-width area, then
// length-prefixed variable-length area. It carries the RID it was read
// from (invalid until inserted).
type Tuple struct {
	rid  common.RID
	data []byte
}

// NullBitmapSize returns the bitmap bytes needed for ncols columns.
func NullBitmapSize(ncols int) int {
	return (ncols + 7) / 8
}

// NewTupleFromBytes wraps raw record bytes read from a page.
func NewTupleFromBytes(data []byte, rid common.RID) *Tuple {
	return &Tuple{rid: rid, data: data}
}

// NewTuple serializes values against schema. NULL fixed-width columns
// still reserve their slot so offsets stay statically computable.
func NewTuple(values []common.Value, schema *common.Schema) (*Tuple, common.Status) {
	if len(values) != schema.ColumnCount() {
		return nil, common.InvalidArgument("value count %d does not match schema arity %d",
			len(values), schema.ColumnCount())
	}
	ncols := schema.ColumnCount()
	size := NullBitmapSize(ncols) + schema.FixedLength()
	for i := 0; i < ncols; i++ {
		col := schema.Column(i)
		if !common.IsVariableLength(col.Type) {
			continue
		}
		if values[i].IsNull() {
			size += 2
			continue
		}
		s, ok := values[i].TryString()
		if !ok {
			return nil, common.InvalidArgument("column %q expects a string value", col.Name)
		}
		if col.Length > 0 && len(s) > col.Length {
			return nil, common.InvalidArgument("value too long for column %q (max %d)", col.Name, col.Length)
		}
		size += 2 + len(s)
	}
	if size > common.MaxTupleSize {
		return nil, common.InvalidArgument("tuple size %d exceeds maximum %d", size, common.MaxTupleSize)
	}

	data := make([]byte, size)
	fixedBase := NullBitmapSize(ncols)
	varOff := fixedBase + schema.FixedLength()
	for i := 0; i < ncols; i++ {
		col := schema.Column(i)
		v := values[i]
		if v.IsNull() {
			if !col.Nullable {
				return nil, common.InvalidArgument("column %q is NOT NULL", col.Name)
			}
			data[i/8] |= 1 << uint(i%8)
			if common.IsVariableLength(col.Type) {
				binary.LittleEndian.PutUint16(data[varOff:], 0)
				varOff += 2
			}
			continue
		}
		if common.IsVariableLength(col.Type) {
			s, _ := v.TryString()
			binary.LittleEndian.PutUint16(data[varOff:], uint16(len(s)))
			varOff += 2
			copy(data[varOff:], s)
			varOff += len(s)
			continue
		}
		off := fixedBase + schema.FixedOffset(i)
		coerced := v.CastTo(col.Type)
		if coerced.IsNull() {
			return nil, common.InvalidArgument("value of type %s does not fit column %q (%s)",
				common.TypeName(v.Type()), col.Name, common.TypeName(col.Type))
		}
		writeFixed(data[off:], coerced, col.Type)
	}
	return &Tuple{rid: common.InvalidRID(), data: data}, common.OkStatus()
}

func writeFixed(dst []byte, v common.Value, t common.TypeID) {
	switch t {
	case common.TypeBoolean:
		if v.AsBool() {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case common.TypeTinyInt:
		dst[0] = byte(int8(v.AsInt()))
	case common.TypeSmallInt:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v.AsInt())))
	case common.TypeInteger:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v.AsInt())))
	case common.TypeBigInt, common.TypeTimestamp:
		binary.LittleEndian.PutUint64(dst, uint64(v.AsInt()))
	case common.TypeFloat:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v.AsFloat())))
	case common.TypeDouble:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v.AsFloat()))
	case common.TypeDecimal:
		// Fixed 16-byte slot; the value travels in the first 8 bytes.
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v.AsFloat()))
		binary.LittleEndian.PutUint64(dst[8:], 0)
	}
}

// RID returns the tuple's location.
func (t *Tuple) RID() common.RID { return t.rid }

// SetRID records where the tuple lives.
func (t *Tuple) SetRID(rid common.RID) { t.rid = rid }

// Data returns the serialized bytes.
func (t *Tuple) Data() []byte { return t.data }

// Size returns the serialized length.
func (t *Tuple) Size() int { return len(t.data) }

// IsNull reports whether column idx is NULL.
func (t *Tuple) IsNull(schema *common.Schema, idx int) bool {
	if idx < 0 || idx >= schema.ColumnCount() || idx/8 >= len(t.data) {
		return true
	}
	return t.data[idx/8]&(1<<uint(idx%8)) != 0
}

// Value decodes column idx. Out-of-range or NULL columns decode as NULL.
func (t *Tuple) Value(schema *common.Schema, idx int) common.Value {
	if idx < 0 || idx >= schema.ColumnCount() || t.IsNull(schema, idx) {
		return common.NewNull()
	}
	col := schema.Column(idx)
	fixedBase := NullBitmapSize(schema.ColumnCount())
	if !common.IsVariableLength(col.Type) {
		off := fixedBase + schema.FixedOffset(idx)
		if off+common.TypeSize(col.Type) > len(t.data) {
			return common.NewNull()
		}
		return readFixed(t.data[off:], col.Type)
	}
	// Walk the variable area past the earlier variable columns.
	varOff := fixedBase + schema.FixedLength()
	for i := 0; i < idx; i++ {
		if !common.IsVariableLength(schema.Column(i).Type) {
			continue
		}
		if varOff+2 > len(t.data) {
			return common.NewNull()
		}
		// NULL variable columns keep a zero-length prefix, so the walk is
		// uniform.
		n := int(binary.LittleEndian.Uint16(t.data[varOff:]))
		varOff += 2 + n
	}
	if varOff+2 > len(t.data) {
		return common.NewNull()
	}
	n := int(binary.LittleEndian.Uint16(t.data[varOff:]))
	varOff += 2
	if varOff+n > len(t.data) {
		return common.NewNull()
	}
	return common.NewVarchar(string(t.data[varOff : varOff+n]))
}

// Values decodes every column in schema order.
func (t *Tuple) Values(schema *common.Schema) []common.Value {
	out := make([]common.Value, schema.ColumnCount())
	for i := range out {
		out[i] = t.Value(schema, i)
	}
	return out
}

func readFixed(src []byte, t common.TypeID) common.Value {
	switch t {
	case common.TypeBoolean:
		return common.NewBool(src[0] != 0)
	case common.TypeTinyInt:
		return common.NewTinyInt(int8(src[0]))
	case common.TypeSmallInt:
		return common.NewSmallInt(int16(binary.LittleEndian.Uint16(src)))
	case common.TypeInteger:
		return common.NewInteger(int32(binary.LittleEndian.Uint32(src)))
	case common.TypeBigInt:
		return common.NewBigInt(int64(binary.LittleEndian.Uint64(src)))
	case common.TypeTimestamp:
		return common.NewTimestamp(int64(binary.LittleEndian.Uint64(src)))
	case common.TypeFloat:
		return common.NewFloat(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	case common.TypeDouble:
		return common.NewDouble(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	case common.TypeDecimal:
		return common.NewDecimal(math.Float64frombits(binary.LittleEndian.Uint64(src)))
	}
	return common.NewNull()
}
