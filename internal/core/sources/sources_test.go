package sources

import (
	"testing"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(defs []core.SourceDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Key
	}
	return out
}

func TestRegisteredSources(t *testing.T) {
	assert.Equal(t, 6, core.SourceCount())

	def, ok := core.Get("tax_filings")
	require.True(t, ok)
	assert.Equal(t, core.KindTax, def.Kind)
	assert.Equal(t, "v_match_tax_filings", def.View)
}

func TestTargets(t *testing.T) {
	assert.Equal(t,
		[]string{"purchase_invoices", "sales_invoices", "expenses", "payroll_slips", "tax_filings"},
		keys(core.Targets(core.KindBank)))

	for _, k := range []core.Kind{core.KindPurchase, core.KindSale, core.KindExpense, core.KindPayroll, core.KindTax} {
		assert.Equal(t, []string{"bank_movements"}, keys(core.Targets(k)), k)
	}
}
