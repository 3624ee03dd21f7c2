// Package sources registers the candidate views with the core registry.
// Import it for side effects wherever the engine is constructed.
package sources

import "github.com/JonMunkholm/reconcile/internal/core"

func init() {
	registerBank()
	registerLedgers()
}

func registerBank() {
	core.Register(core.SourceDefinition{
		Key:   "bank_movements",
		Kind:  core.KindBank,
		Label: "Bank movements",
		View:  "v_match_bank_movements",
		Order: 0,
	})
}

// Ledger order is the tie-break order for bank anchors.
func registerLedgers() {
	ledgers := []core.SourceDefinition{
		{Key: "purchase_invoices", Kind: core.KindPurchase, Label: "Purchase invoices", View: "v_match_purchase_invoices"},
		{Key: "sales_invoices", Kind: core.KindSale, Label: "Sales invoices", View: "v_match_sales_invoices"},
		{Key: "expenses", Kind: core.KindExpense, Label: "Expenses", View: "v_match_expenses"},
		{Key: "payroll_slips", Kind: core.KindPayroll, Label: "Payroll slips", View: "v_match_payroll_slips"},
		{Key: "tax_filings", Kind: core.KindTax, Label: "Tax filings", View: "v_match_tax_filings"},
	}
	for i, def := range ledgers {
		def.Order = 10 + i
		core.Register(def)
	}
}
