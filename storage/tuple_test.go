package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/entropy/common"
)

func userSchema() *common.Schema {
	return common.NewSchema([]common.Column{
		common.NewColumn("id", common.TypeInteger),
		common.NewVarcharColumn("name", 100),
		common.NewColumn("age", common.TypeSmallInt),
		common.NewColumn("score", common.TypeDouble),
		common.NewColumn("active", common.TypeBoolean),
	})
}

func TestNullBitmapSize(t *testing.T) {
	require.Equal(t, 0, NullBitmapSize(0))
	require.Equal(t, 1, NullBitmapSize(1))
	require.Equal(t, 1, NullBitmapSize(8))
	require.Equal(t, 2, NullBitmapSize(9))
	require.Equal(t, 2, NullBitmapSize(16))
}

func TestTupleRoundTrip(t *testing.T) {
	schema := userSchema()
	values := []common.Value{
		common.NewInteger(42),
		common.NewVarchar("Alice"),
		common.NewSmallInt(30),
		common.NewDouble(99.5),
		common.NewBool(true),
	}
	tuple, st := NewTuple(values, schema)
	require.True(t, st.OK(), st.String())

	require.Equal(t, int64(42), tuple.Value(schema, 0).AsInt())
	require.Equal(t, "Alice", tuple.Value(schema, 1).AsString())
	require.Equal(t, int64(30), tuple.Value(schema, 2).AsInt())
	require.Equal(t, 99.5, tuple.Value(schema, 3).AsFloat())
	require.True(t, tuple.Value(schema, 4).AsBool())
}

func TestTupleNullColumns(t *testing.T) {
	schema := userSchema()
	values := []common.Value{
		common.NewInteger(7),
		common.NewNull(),
		common.NewNull(),
		common.NewDouble(1.25),
		common.NewNull(),
	}
	tuple, st := NewTuple(values, schema)
	require.True(t, st.OK())

	require.False(t, tuple.IsNull(schema, 0))
	require.True(t, tuple.IsNull(schema, 1))
	require.True(t, tuple.IsNull(schema, 2))
	require.True(t, tuple.Value(schema, 1).IsNull())
	require.Equal(t, 1.25, tuple.Value(schema, 3).AsFloat())
	// NULL fixed columns still reserve their slot.
	require.Equal(t, NullBitmapSize(5)+schema.FixedLength()+2, tuple.Size())
}

func TestTupleMultipleVarchars(t *testing.T) {
	schema := common.NewSchema([]common.Column{
		common.NewVarcharColumn("a", 50),
		common.NewColumn("n", common.TypeBigInt),
		common.NewVarcharColumn("b", 50),
		common.NewVarcharColumn("c", 50),
	})
	values := []common.Value{
		common.NewVarchar("first"),
		common.NewBigInt(-12345),
		common.NewNull(),
		common.NewVarchar("third"),
	}
	tuple, st := NewTuple(values, schema)
	require.True(t, st.OK())
	require.Equal(t, "first", tuple.Value(schema, 0).AsString())
	require.Equal(t, int64(-12345), tuple.Value(schema, 1).AsInt())
	require.True(t, tuple.Value(schema, 2).IsNull())
	require.Equal(t, "third", tuple.Value(schema, 3).AsString())
}

func TestTupleArityMismatch(t *testing.T) {
	schema := userSchema()
	_, st := NewTuple([]common.Value{common.NewInteger(1)}, schema)
	require.Equal(t, common.CodeInvalidArgument, st.Code)
}

func TestTupleNotNullViolation(t *testing.T) {
	schema := common.NewSchema([]common.Column{
		{Name: "id", Type: common.TypeInteger, Length: 4, Nullable: false},
	})
	_, st := NewTuple([]common.Value{common.NewNull()}, schema)
	require.Equal(t, common.CodeInvalidArgument, st.Code)
}

func TestTupleVarcharTooLong(t *testing.T) {
	schema := common.NewSchema([]common.Column{common.NewVarcharColumn("s", 4)})
	_, st := NewTuple([]common.Value{common.NewVarchar("too long")}, schema)
	require.Equal(t, common.CodeInvalidArgument, st.Code)
}

func TestTupleIntegerWidths(t *testing.T) {
	schema := common.NewSchema([]common.Column{
		common.NewColumn("t", common.TypeTinyInt),
		common.NewColumn("s", common.TypeSmallInt),
		common.NewColumn("i", common.TypeInteger),
		common.NewColumn("b", common.TypeBigInt),
		common.NewColumn("f", common.TypeFloat),
	})
	values := []common.Value{
		common.NewTinyInt(-8),
		common.NewSmallInt(-1000),
		common.NewInteger(1 << 20),
		common.NewBigInt(1 << 40),
		common.NewFloat(2.5),
	}
	tuple, st := NewTuple(values, schema)
	require.True(t, st.OK())
	require.Equal(t, int64(-8), tuple.Value(schema, 0).AsInt())
	require.Equal(t, int64(-1000), tuple.Value(schema, 1).AsInt())
	require.Equal(t, int64(1<<20), tuple.Value(schema, 2).AsInt())
	require.Equal(t, int64(1<<40), tuple.Value(schema, 3).AsInt())
	require.Equal(t, 2.5, tuple.Value(schema, 4).AsFloat())
}
