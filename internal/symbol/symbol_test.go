package symbol_test

import (
	"testing"

	"github.com/pscal-lang/pscal/internal/symbol"
	"github.com/pscal-lang/pscal/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	tbl := symbol.NewTable(8)
	require.NoError(t, tbl.Insert(&symbol.Symbol{Name: "Total", Type: value.KindInt32}))

	sym, ok := tbl.Lookup("TOTAL")
	require.True(t, ok)
	assert.Equal(t, "Total", sym.Name)
}

func TestRedefinitionOfDefinedProcedureIsRejected(t *testing.T) {
	tbl := symbol.NewTable(8)
	require.NoError(t, tbl.Insert(&symbol.Symbol{Name: "DoThing", IsDefined: true, Address: 10}))

	err := tbl.Insert(&symbol.Symbol{Name: "DoThing", IsDefined: true, Address: 20})
	require.Error(t, err)
	var rerr *symbol.RedefinitionError
	require.ErrorAs(t, err, &rerr)
}

func TestAliasSharesStorage(t *testing.T) {
	scope := symbol.NewScope()
	target := &symbol.Symbol{Name: "TextAttr", Type: value.KindByte, Value: value.MakeByte(7)}
	require.NoError(t, scope.Globals.Insert(target))
	require.NoError(t, symbol.Alias(scope.Globals, "CRT.TextAttr", target))

	aliasSym, ok := scope.Globals.Lookup("CRT.TextAttr")
	require.True(t, ok)

	symbol.Set(aliasSym, value.MakeByte(42))

	direct, ok := scope.Globals.Lookup("TextAttr")
	require.True(t, ok)
	got, err := value.AsInt(symbol.Get(direct))
	require.NoError(t, err)
	assert.EqualValues(t, 42, got)
}

func TestIterateVisitsAllEntries(t *testing.T) {
	tbl := symbol.NewTable(8)
	require.NoError(t, tbl.Insert(&symbol.Symbol{Name: "A"}))
	require.NoError(t, tbl.Insert(&symbol.Symbol{Name: "B"}))

	seen := map[string]bool{}
	tbl.Iterate(func(s *symbol.Symbol) bool {
		seen[s.Name] = true
		return true
	})
	assert.Len(t, seen, 2)
}
