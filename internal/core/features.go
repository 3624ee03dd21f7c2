package core

// features.go implements the assisted scorer for bank/ledger matching.
//
// FeatureBuilder turns an anchor/candidate pair into normalized features;
// AssistedScorer combines them with fixed weights. Counterparty identity
// comes from three signals in decreasing strength: an exact RUT match, a
// learned alias (RUT plus normalized bank description), and fuzzy name
// similarity. Name similarity only counts when neither of the other two
// fired.

import (
	"math"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// Assisted scorer weights.
const (
	AssistedAmountExact  = 50.0
	AssistedAmountClose  = 30.0
	AssistedSameDate     = 15.0
	AssistedDateWindow   = 8.0
	AssistedRUTExact     = 20.0
	AssistedAlias        = 20.0
	AssistedNameSim      = 15.0
	AssistedFolio        = 10.0
	AssistedProject      = 10.0
	AssistedKeyword      = 2.0
	AssistedKeywordMax   = 6.0
	MinAliasConfidence   = 0.5
	MinNameSimilarity    = 0.5
	minKeywordLength     = 4
	minFolioDigitsLength = 3
)

// Features are the derived signals for one pair.
type Features struct {
	DeltaAbs        float64 `json:"delta_abs"`
	DeltaRel        float64 `json:"delta_rel"`
	DaysDelta       int     `json:"days_delta"`
	RUTExact        bool    `json:"rut_exact"`
	AliasConfidence float64 `json:"alias_confidence"`
	NameSimilarity  float64 `json:"name_similarity"`
	HasFolioBoth    bool    `json:"has_folio_both"`
	ProjectMatch    bool    `json:"project_match"`
	SameSign        bool    `json:"same_sign"`
	KeywordOverlap  int     `json:"keyword_overlap"`
}

// AliasKey identifies a learned counterparty alias.
type AliasKey struct {
	RUT         string
	Description string
}

// AliasTable maps aliases to a confidence in [0,1].
type AliasTable map[AliasKey]float64

// NewAliasKey normalizes rut and description into a lookup key.
func NewAliasKey(rut, description string) AliasKey {
	return AliasKey{RUT: NormalizeRUT(rut), Description: NormalizeDescription(description)}
}

// Confidence returns the alias confidence for rut and description.
func (t AliasTable) Confidence(rut, description string) float64 {
	if len(t) == 0 || rut == "" || description == "" {
		return 0
	}
	return t[NewAliasKey(rut, description)]
}

// FeatureBuilder derives Features. Aliases may be nil.
type FeatureBuilder struct {
	Aliases AliasTable
}

// Build computes the features for a and c.
func (b FeatureBuilder) Build(a Anchor, c Candidate) Features {
	anchorAbs := a.Amount.Decimal.Abs()
	delta := c.Amount.Abs().Sub(anchorAbs).Abs()

	f := Features{
		DaysDelta: daysBetween(a.Date, c.Date),
		SameSign:  a.Amount.Decimal.Sign()*c.Amount.Sign() >= 0,
	}
	f.DeltaAbs, _ = delta.Float64()
	if !anchorAbs.IsZero() {
		f.DeltaRel, _ = delta.Div(anchorAbs).Float64()
	} else if !delta.IsZero() {
		f.DeltaRel = math.Inf(1)
	}

	anchorRUT, candRUT := NormalizeRUT(a.CounterpartyRUT), NormalizeRUT(c.CounterpartyRUT)
	f.RUTExact = anchorRUT != "" && anchorRUT == candRUT

	// The bank side carries the free-text description; the ledger side the RUT.
	if a.Kind == KindBank {
		f.AliasConfidence = b.Aliases.Confidence(c.CounterpartyRUT, a.Description)
	} else {
		f.AliasConfidence = b.Aliases.Confidence(a.CounterpartyRUT, c.Description)
	}

	f.NameSimilarity = NameSimilarity(firstNonEmpty(a.CounterpartyName, a.Description), firstNonEmpty(c.CounterpartyName, c.Description))
	f.HasFolioBoth = folioIn(c.Folio, a.Reference+" "+a.Description)
	f.ProjectMatch = a.ProjectID != "" && strings.EqualFold(a.ProjectID, c.ProjectID)
	f.KeywordOverlap = keywordOverlap(a.Description+" "+a.Reference, c.Description+" "+c.Reference)
	return f
}

// AssistedScorer scores pairs from Features.
type AssistedScorer struct {
	Builder    FeatureBuilder
	AmountTol  decimal.Decimal
	RelTol     float64
	DaysWindow int
}

// Score implements Scorer.
func (s AssistedScorer) Score(a Anchor, c Candidate) (int, []Evidence) {
	f := s.Builder.Build(a, c)
	var (
		total float64
		ev    []Evidence
	)
	add := func(rule string, w float64, format string, args ...any) {
		total += w
		ev = append(ev, evidence(rule, w, format, args...))
	}

	tol, _ := s.AmountTol.Float64()
	switch {
	case f.DeltaAbs <= tol:
		add("amount_exact", AssistedAmountExact, "difference %.2f within tolerance %.2f", f.DeltaAbs, tol)
	case s.RelTol > 0 && f.DeltaRel <= s.RelTol:
		add("amount_close", AssistedAmountClose, "relative difference %.4f within %.4f", f.DeltaRel, s.RelTol)
	}

	switch {
	case f.DaysDelta == 0:
		add("same_date", AssistedSameDate, "same calendar date")
	case f.DaysDelta <= s.DaysWindow:
		add("date_window", AssistedDateWindow, "%d days apart (window %d)", f.DaysDelta, s.DaysWindow)
	}

	if f.RUTExact {
		add("rut_exact", AssistedRUTExact, "counterparty RUT %s", NormalizeRUT(c.CounterpartyRUT))
	}
	if f.AliasConfidence >= MinAliasConfidence {
		add("alias_match", AssistedAlias*f.AliasConfidence, "learned alias confidence %.2f", f.AliasConfidence)
	}
	if !f.RUTExact && f.AliasConfidence < MinAliasConfidence && f.NameSimilarity >= MinNameSimilarity {
		add("name_similarity", AssistedNameSim*f.NameSimilarity, "name similarity %.2f", f.NameSimilarity)
	}
	if f.HasFolioBoth {
		add("folio_detected", AssistedFolio, "folio %s referenced by both documents", c.Folio)
	}
	if f.ProjectMatch {
		add("project_match", AssistedProject, "project %s", c.ProjectID)
	}
	if f.KeywordOverlap > 0 {
		add("keyword_overlap", math.Min(AssistedKeyword*float64(f.KeywordOverlap), AssistedKeywordMax),
			"%d shared keywords", f.KeywordOverlap)
	}

	score := int(math.Round(total))
	if score > MaxScore {
		score = MaxScore
	}
	if score < 0 {
		score = 0
	}
	return score, ev
}

// NormalizeRUT strips separators and upper-cases a Chilean tax id.
func NormalizeRUT(rut string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r):
			return r
		case r == 'k' || r == 'K':
			return 'K'
		default:
			return -1
		}
	}, rut)
}

// NormalizeDescription upper-cases, drops digits and punctuation, and
// collapses whitespace so that bank descriptions with varying transaction
// numbers map to the same alias.
func NormalizeDescription(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(cleaned), " ")
}

// NameSimilarity returns the larger of token Jaccard overlap and the
// Levenshtein ratio of the normalized names, in [0,1].
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeDescription(a), NormalizeDescription(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	ta, tb := tokenSet(na, 2), tokenSet(nb, 2)
	var inter int
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	jaccard := 0.0
	if union > 0 {
		jaccard = float64(inter) / float64(union)
	}

	ra, rb := []rune(na), []rune(nb)
	longest := max(len(ra), len(rb))
	ratio := 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)

	return math.Max(jaccard, math.Max(ratio, 0))
}

var stopwords = map[string]struct{}{
	"PAGO": {}, "TRANSFERENCIA": {}, "FACTURA": {}, "CARGO": {}, "ABONO": {},
	"LTDA": {}, "SPA": {}, "PARA": {}, "DESDE": {}, "CUENTA": {},
}

func keywordOverlap(a, b string) int {
	ta, tb := tokenSet(NormalizeDescription(a), minKeywordLength), tokenSet(NormalizeDescription(b), minKeywordLength)
	n := 0
	for t := range ta {
		if _, stop := stopwords[t]; stop {
			continue
		}
		if _, ok := tb[t]; ok {
			n++
		}
	}
	return n
}

func tokenSet(s string, minLen int) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		if len([]rune(t)) >= minLen {
			out[t] = struct{}{}
		}
	}
	return out
}

// folioIn reports whether the digits of folio appear in text.
func folioIn(folio, text string) bool {
	digits := strings.TrimLeft(onlyDigits(folio), "0")
	if len(digits) < minFolioDigitsLength {
		return false
	}
	for _, run := range digitRuns(text) {
		if strings.TrimLeft(run, "0") == digits {
			return true
		}
	}
	return false
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func digitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
