package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOp(t *testing.T) {
	tests := []struct {
		token    string
		op       Op
		code     string
		fails    bool
	}{
		{token: "=", op: OpEq, code: "EQ"},
		{token: "!=", op: OpNe, code: "NE"},
		{token: ">", op: OpGt, code: "GT"},
		{token: ">=", op: OpGte, code: "GTE"},
		{token: "LIKE", op: OpMatches, code: "MATCHES"},
		{token: "like", op: OpMatches, code: "MATCHES"},
		{token: "NOT LIKE", op: OpNotMatches, code: "NOT_MATCHES"},
		{token: "BETWEEN", op: OpRange, code: "RANGE"},
		{token: "IS NULL", op: OpIsNull, code: "IS_NULL"},
		{token: "EQ", op: OpEq, code: "EQ"},
		{token: "eq", op: OpEq, code: "EQ"},
		{token: "MATCHES", op: OpMatches, code: "MATCHES"},
		{token: "RANGE", op: OpRange, code: "RANGE"},
		{token: "STARTS_WITH", op: OpCustom, code: "STARTS_WITH"},
		{token: "starts_with", op: OpCustom, code: "STARTS_WITH"},
		{token: "", fails: true},
		{token: "   ", fails: true},
		{token: "CUSTOM", fails: true},
		{token: "no spaces allowed", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			op, code, err := ParseOp(tt.token)
			if tt.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.op, op)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestOpMetadata(t *testing.T) {
	assert.True(t, OpEq.RequiresValue())
	assert.False(t, OpIsNull.RequiresValue())
	assert.False(t, OpNotNull.RequiresValue())
	assert.True(t, OpCustom.RequiresValue())

	assert.True(t, OpIn.MultiValued())
	assert.True(t, OpRange.MultiValued())
	assert.False(t, OpEq.MultiValued())

	assert.Equal(t, "BETWEEN", OpRange.Symbol())
	assert.Equal(t, "NOT LIKE", OpNotMatches.Symbol())

	assert.True(t, OpEq.IsStandard())
	assert.False(t, OpCustom.IsStandard())
}

func TestNewDefinition(t *testing.T) {
	def, err := NewDefinition("NAME", "=", "x")
	require.NoError(t, err)
	assert.Equal(t, OpEq, def.Op)
	assert.Equal(t, "EQ", def.Code)

	def, err = NewDefinition("TITLE", "STARTS_WITH", "Java")
	require.NoError(t, err)
	assert.Equal(t, OpCustom, def.Op)
	assert.Equal(t, "STARTS_WITH", def.Code)

	_, err = NewDefinition("NAME", "", nil)
	require.Error(t, err)
	var defErr *FilterDefinitionError
	assert.ErrorAs(t, err, &defErr)
}
