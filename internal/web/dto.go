package web

// dto.go defines the JSON request bodies and their conversion to engine
// types. Struct tags carry the shape checks (enums, formats, ranges);
// semantic checks such as a missing amount stay in core so the request is
// still classified and audited as invalid.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

const dateLayout = "2006-01-02"

const emptyBodyMessage = "request body is empty"

type anchorDTO struct {
	Kind             string              `json:"kind" validate:"required,oneof=bank purchase sale expense payroll tax"`
	ID               string              `json:"id" validate:"required,max=128"`
	Amount           decimal.NullDecimal `json:"amount"`
	Date             string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Currency         string              `json:"currency" validate:"omitempty,alpha,len=3"`
	Reference        string              `json:"reference" validate:"max=256"`
	CounterpartyRUT  string              `json:"counterparty_rut" validate:"max=32"`
	CounterpartyName string              `json:"counterparty_name" validate:"max=256"`
	Description      string              `json:"description" validate:"max=512"`
	ProjectID        string              `json:"project_id" validate:"max=64"`
}

func (a anchorDTO) toAnchor() core.Anchor {
	return core.Anchor{
		Kind:             core.Kind(a.Kind),
		ID:               a.ID,
		Amount:           a.Amount,
		Date:             parseDate(a.Date),
		Currency:         strings.ToUpper(a.Currency),
		Reference:        a.Reference,
		CounterpartyRUT:  a.CounterpartyRUT,
		CounterpartyName: a.CounterpartyName,
		Description:      a.Description,
		ProjectID:        a.ProjectID,
	}
}

type suggestRequest struct {
	Anchor       anchorDTO        `json:"anchor" validate:"required"`
	DaysWindow   *int             `json:"days_window" validate:"omitempty,min=0,max=366"`
	AmountTol    *decimal.Decimal `json:"amount_tol"`
	AmountTolPct *float64         `json:"amount_tol_pct" validate:"omitempty,min=0,max=1"`
	Limit        *int             `json:"limit" validate:"omitempty,min=0"`
	Mode         string           `json:"mode" validate:"omitempty,oneof=rules assisted"`
}

// params applies the configured defaults to omitted fields.
func (r suggestRequest) params(d requestDefaults) core.SuggestParams {
	p := core.SuggestParams{
		DaysWindow:   d.DaysWindow,
		AmountTol:    d.AmountTol,
		AmountTolPct: r.AmountTolPct,
		Mode:         core.Mode(r.Mode),
	}
	if r.DaysWindow != nil {
		p.DaysWindow = *r.DaysWindow
	}
	if r.AmountTol != nil {
		p.AmountTol = *r.AmountTol
	}
	if r.Limit != nil {
		p.Limit = *r.Limit
	}
	return p
}

type poSuggestRequest struct {
	InvoiceID    string              `json:"invoice_id" validate:"required,max=128"`
	VendorRUT    string              `json:"vendor_rut" validate:"required,max=32"`
	ProjectID    string              `json:"project_id" validate:"max=64"`
	Amount       decimal.NullDecimal `json:"amount"`
	Qty          *decimal.Decimal    `json:"qty"`
	Date         string              `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference    string              `json:"reference" validate:"max=256"`
	AmountTolPct *float64            `json:"amount_tol_pct" validate:"omitempty,min=0,max=1"`
	Limit        int                 `json:"limit" validate:"min=0"`
}

func (r poSuggestRequest) toInvoice() core.InvoiceAnchor {
	inv := core.InvoiceAnchor{
		ID:        r.InvoiceID,
		VendorRUT: r.VendorRUT,
		ProjectID: r.ProjectID,
		Amount:    r.Amount,
		Date:      parseDate(r.Date),
		Reference: r.Reference,
	}
	if r.Qty != nil {
		inv.Qty = *r.Qty
	}
	return inv
}

type candidateDTO struct {
	TargetKind       string          `json:"target_kind" validate:"required,oneof=bank purchase sale expense payroll tax"`
	Source           string          `json:"source"`
	DocID            string          `json:"doc_id" validate:"required,max=128"`
	Amount           decimal.Decimal `json:"amount"`
	CounterpartyRUT  string          `json:"counterparty_rut" validate:"max=32"`
	CounterpartyName string          `json:"counterparty_name" validate:"max=256"`
	Description      string          `json:"description" validate:"max=512"`
}

type confirmRequest struct {
	Anchor    anchorDTO    `json:"anchor" validate:"required"`
	Candidate candidateDTO `json:"candidate" validate:"required"`
	Score     int          `json:"score" validate:"min=0,max=100"`
}

func (r confirmRequest) toConfirmation() core.Confirmation {
	return core.Confirmation{
		Anchor: r.Anchor.toAnchor(),
		Candidate: core.Candidate{
			TargetKind:       core.Kind(r.Candidate.TargetKind),
			Source:           r.Candidate.Source,
			DocID:            r.Candidate.DocID,
			Amount:           r.Candidate.Amount,
			CounterpartyRUT:  r.Candidate.CounterpartyRUT,
			CounterpartyName: r.Candidate.CounterpartyName,
			Description:      r.Candidate.Description,
		},
		Score: r.Score,
	}
}

type logsOverrideRequest struct {
	SampleRate *float64 `json:"sample_rate"`
	Async      *bool    `json:"async"`
}

type resetRequest struct {
	Token string `json:"token"`
}

// parseDate returns the zero time for an empty or malformed date; the
// validator has already rejected malformed input.
func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// decodeJSON reads a bounded JSON body into dst and validates it.
// Failures come back as core.ValidationErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.ValidationError{Field: "body", Message: emptyBodyMessage}
		}
		return core.ValidationError{Field: "body", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return validateStruct(v, dst)
}

// validateStruct runs the validator and converts its field errors.
func validateStruct(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	out := make(core.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, core.ValidationError{
			Field:   jsonPath(fe.Namespace()),
			Value:   fmt.Sprint(fe.Value()),
			Message: ruleMessage(fe),
		})
	}
	return out
}

// jsonPath drops the root struct name from a validator namespace.
// Field names are already JSON names (see newValidator).
func jsonPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required field is empty"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// newValidator returns a validator that reports JSON field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
