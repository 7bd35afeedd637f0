package common

import "math"

// PageID identifies a page in the database file.
type PageID int32

// FrameID identifies a frame in the buffer pool.
type FrameID int32

// TxnID identifies a transaction. Zero means "no transaction".
type TxnID uint64

// LSN is a log sequence number. Zero means "no record".
type LSN uint64

// SlotID identifies a record slot within a page.
type SlotID uint16

// OID identifies a catalog object (table or index). Zero is invalid.
type OID uint32

const (
	InvalidPageID  PageID  = -1
	InvalidFrameID FrameID = -1
	InvalidTxnID   TxnID   = 0
	InvalidLSN     LSN     = 0
	InvalidSlotID  SlotID  = math.MaxUint16
	InvalidOID     OID     = 0
)

// RID uniquely locates a tuple: a page ID plus a slot within that page.
type RID struct {
	PageID PageID
	SlotID SlotID
}

// InvalidRID returns a RID that addresses nothing.
func InvalidRID() RID {
	return RID{PageID: InvalidPageID, SlotID: InvalidSlotID}
}

// IsValid reports whether the RID addresses a real slot.
func (r RID) IsValid() bool {
	return r.PageID != InvalidPageID && r.SlotID != InvalidSlotID
}

// Less orders RIDs lexicographically by (page, slot).
func (r RID) Less(other RID) bool {
	if r.PageID != other.PageID {
		return r.PageID < other.PageID
	}
	return r.SlotID < other.SlotID
}

// TypeID enumerates the SQL data types.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeBoolean
	TypeTinyInt
	TypeSmallInt
	TypeInteger
	TypeBigInt
	TypeDecimal
	TypeFloat
	TypeDouble
	TypeVarchar
	TypeTimestamp
)

// TypeSize returns the on-page size of a fixed-length type, or 0 for
// variable-length types.
func TypeSize(t TypeID) int {
	switch t {
	case TypeBoolean, TypeTinyInt:
		return 1
	case TypeSmallInt:
		return 2
	case TypeInteger, TypeFloat:
		return 4
	case TypeBigInt, TypeDouble, TypeTimestamp:
		return 8
	case TypeDecimal:
		return 16
	default:
		return 0
	}
}

// IsVariableLength reports whether values of t have no fixed size.
func IsVariableLength(t TypeID) bool {
	return t == TypeVarchar
}

// TypeName returns the SQL name of a type for display.
func TypeName(t TypeID) string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeTinyInt:
		return "TINYINT"
	case TypeSmallInt:
		return "SMALLINT"
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeDecimal:
		return "DECIMAL"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeVarchar:
		return "VARCHAR"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "INVALID"
	}
}
