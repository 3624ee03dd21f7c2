package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRUT(t *testing.T) {
	assert.Equal(t, "76543210K", NormalizeRUT("76.543.210-k"))
	assert.Equal(t, "123456785", NormalizeRUT(" 12345678-5 "))
	assert.Equal(t, "", NormalizeRUT("n/a"))
}

func TestNormalizeDescription(t *testing.T) {
	assert.Equal(t, "TRANSF ACME SPA", NormalizeDescription("  transf. 000123 ACME  spa "))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Acme SpA", "ACME  SPA"))
	assert.Equal(t, 0.0, NameSimilarity("", "Acme"))
	assert.Greater(t, NameSimilarity("Comercial Acme Ltda", "Acme Ltda"), 0.5)
	assert.Less(t, NameSimilarity("Acme", "Zeta Industrial"), 0.5)
}

func TestFolioIn(t *testing.T) {
	assert.True(t, folioIn("000456", "PAGO FACT 456 ACME"))
	assert.False(t, folioIn("456", "PAGO FACT 4567"))
	assert.False(t, folioIn("12", "PAGO 12"), "short folios are ignored")
}

func TestFeatureBuilder(t *testing.T) {
	aliases := AliasTable{NewAliasKey("76.543.210-K", "TRANSF ACME"): 0.8}
	b := FeatureBuilder{Aliases: aliases}

	a := Anchor{
		Kind:        KindBank,
		Amount:      amount("-1190"),
		Date:        day,
		Description: "Transf 8812 ACME folio 456 proyecto norte",
		ProjectID:   "P-1",
	}
	c := Candidate{
		Amount:           decimal.RequireFromString("1200"),
		Date:             day.AddDate(0, 0, 2),
		Folio:            "456",
		CounterpartyRUT:  "76543210-K",
		CounterpartyName: "Acme",
		Description:      "Servicios proyecto norte",
		ProjectID:        "p-1",
	}

	f := b.Build(a, c)
	assert.InDelta(t, 10, f.DeltaAbs, 1e-9)
	assert.InDelta(t, 10.0/1190, f.DeltaRel, 1e-9)
	assert.Equal(t, 2, f.DaysDelta)
	assert.False(t, f.RUTExact)
	assert.InDelta(t, 0, f.AliasConfidence, 1e-9, "description differs after normalization")
	assert.True(t, f.HasFolioBoth)
	assert.True(t, f.ProjectMatch)
	assert.False(t, f.SameSign)
	assert.Equal(t, 2, f.KeywordOverlap) // PROYECTO, NORTE
}

func TestFeatureBuilder_AliasByBankDescription(t *testing.T) {
	b := FeatureBuilder{Aliases: AliasTable{NewAliasKey("76543210-K", "TRANSF ACME"): 0.9}}

	f := b.Build(
		Anchor{Kind: KindBank, Amount: amount("100"), Date: day, Description: "transf 0099 acme"},
		Candidate{Amount: decimal.RequireFromString("100"), Date: day, CounterpartyRUT: "76.543.210-k"},
	)
	assert.InDelta(t, 0.9, f.AliasConfidence, 1e-9)

	// Ledger anchors look up the bank candidate's description.
	f = b.Build(
		Anchor{Kind: KindPurchase, Amount: amount("100"), Date: day, CounterpartyRUT: "76543210K"},
		Candidate{Amount: decimal.RequireFromString("100"), Date: day, Description: "TRANSF 1 ACME"},
	)
	assert.InDelta(t, 0.9, f.AliasConfidence, 1e-9)
}

func TestAssistedScorer(t *testing.T) {
	scorer := AssistedScorer{
		AmountTol:  decimal.RequireFromString("1"),
		RelTol:     0.01,
		DaysWindow: 3,
	}

	t.Run("rut match suppresses name similarity", func(t *testing.T) {
		score, ev := scorer.Score(
			Anchor{Kind: KindPurchase, Amount: amount("500"), Date: day, CounterpartyRUT: "11.111.111-1", CounterpartyName: "Acme"},
			Candidate{Amount: decimal.RequireFromString("500"), Date: day, CounterpartyRUT: "111111111", Description: "Acme"},
		)
		assert.Equal(t, 85, score) // 50 + 15 + 20
		assert.Equal(t, []string{"amount_exact", "same_date", "rut_exact"}, rules(ev))
	})

	t.Run("name similarity scaled when no identity", func(t *testing.T) {
		score, ev := scorer.Score(
			Anchor{Kind: KindBank, Amount: amount("500"), Date: day, Description: "ACME"},
			Candidate{Amount: decimal.RequireFromString("504"), Date: day.AddDate(0, 0, 1), CounterpartyName: "Acme"},
		)
		assert.Equal(t, 53, score) // 30 + 8 + 15
		assert.Equal(t, []string{"amount_close", "date_window", "name_similarity"}, rules(ev))
	})

	t.Run("alias scaled by confidence", func(t *testing.T) {
		s := scorer
		s.Builder = FeatureBuilder{Aliases: AliasTable{NewAliasKey("1-9", "PAGO PROVEEDOR"): 0.5}}
		score, ev := s.Score(
			Anchor{Kind: KindBank, Amount: amount("500"), Date: day, Description: "pago proveedor"},
			Candidate{Amount: decimal.RequireFromString("900"), Date: day.AddDate(0, 0, 9), CounterpartyRUT: "19"},
		)
		assert.Equal(t, 10, score)
		assert.Equal(t, []string{"alias_match"}, rules(ev))
	})

	t.Run("clamped at 100", func(t *testing.T) {
		score, _ := scorer.Score(
			Anchor{Kind: KindBank, Amount: amount("500"), Date: day, CounterpartyRUT: "19",
				Reference: "folio 789", Description: "servicios mantencion norte", ProjectID: "P"},
			Candidate{Amount: decimal.RequireFromString("500"), Date: day, CounterpartyRUT: "1-9", Folio: "789",
				Description: "servicios mantencion norte", ProjectID: "P"},
		)
		require.Equal(t, 100, score)
	})
}
