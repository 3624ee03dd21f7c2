package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingGlobalScope means the tolerance configuration has no global row.
var ErrMissingGlobalScope = errors.New("tolerance configuration: global scope missing")

// ScopeType is a tolerance configuration layer.
type ScopeType string

const (
	ScopeGlobal   ScopeType = "global"
	ScopeVendor   ScopeType = "vendor"
	ScopeProject  ScopeType = "project"
	ScopeOverride ScopeType = "override"
)

// GlobalTolerance is the complete fallback layer. Every field is required.
type GlobalTolerance struct {
	AmountTolPct float64
	QtyTolPct    float64
	RecvRequired bool
	WeightVendor float64
	WeightAmount float64
	Weight3Way   float64
}

// ToleranceScope is a partial layer. Nil fields are inherited.
type ToleranceScope struct {
	ScopeType    ScopeType
	ScopeValue   string
	AmountTolPct *float64
	QtyTolPct    *float64
	RecvRequired *bool
	WeightVendor *float64
	WeightAmount *float64
	Weight3Way   *float64
}

// ToleranceLayers are the rows that apply to one request.
// Vendor and Project are nil when no row matches.
type ToleranceLayers struct {
	Global  *GlobalTolerance
	Vendor  *ToleranceScope
	Project *ToleranceScope
}

// EffectiveTolerance is the resolved configuration plus the layer that
// supplied each field.
type EffectiveTolerance struct {
	AmountTolPct float64              `json:"amount_tol_pct"`
	QtyTolPct    float64              `json:"qty_tol_pct"`
	RecvRequired bool                 `json:"recv_required"`
	WeightVendor float64              `json:"weight_vendor"`
	WeightAmount float64              `json:"weight_amount"`
	Weight3Way   float64              `json:"weight_3way"`
	Sources      map[string]ScopeType `json:"sources"`
}

// Resolver merges tolerance layers per request. Results are never cached
// because scope rows can change under live traffic.
type Resolver struct {
	store ToleranceStore
}

// NewResolver returns a resolver reading from store.
func NewResolver(store ToleranceStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the effective tolerance for the vendor and project.
// A non-nil amountTolPct wins outright for that field.
func (r *Resolver) Resolve(ctx context.Context, vendorRUT, projectID string, amountTolPct *float64) (EffectiveTolerance, error) {
	if amountTolPct != nil && (*amountTolPct < 0 || *amountTolPct > 1) {
		return EffectiveTolerance{}, ValidationError{
			Field:   "amount_tol_pct",
			Value:   fmt.Sprint(*amountTolPct),
			Message: "must be between 0 and 1",
		}
	}

	layers, err := r.store.LoadTolerance(ctx, vendorRUT, projectID)
	if err != nil {
		return EffectiveTolerance{}, fmt.Errorf("load tolerance scopes: %w", err)
	}
	if layers.Global == nil {
		return EffectiveTolerance{}, ErrMissingGlobalScope
	}

	eff := fromGlobal(*layers.Global)
	eff.merge(layers.Vendor)
	eff.merge(layers.Project)

	if amountTolPct != nil {
		eff.AmountTolPct = *amountTolPct
		eff.Sources["amount_tol_pct"] = ScopeOverride
	}
	return eff, nil
}

func fromGlobal(g GlobalTolerance) EffectiveTolerance {
	return EffectiveTolerance{
		AmountTolPct: g.AmountTolPct,
		QtyTolPct:    g.QtyTolPct,
		RecvRequired: g.RecvRequired,
		WeightVendor: g.WeightVendor,
		WeightAmount: g.WeightAmount,
		Weight3Way:   g.Weight3Way,
		Sources: map[string]ScopeType{
			"amount_tol_pct": ScopeGlobal,
			"qty_tol_pct":    ScopeGlobal,
			"recv_required":  ScopeGlobal,
			"weight_vendor":  ScopeGlobal,
			"weight_amount":  ScopeGlobal,
			"weight_3way":    ScopeGlobal,
		},
	}
}

// merge overlays the non-nil fields of s. Later calls take precedence.
func (e *EffectiveTolerance) merge(s *ToleranceScope) {
	if s == nil {
		return
	}
	setFloat := func(field string, dst *float64, v *float64) {
		if v != nil {
			*dst = *v
			e.Sources[field] = s.ScopeType
		}
	}
	setFloat("amount_tol_pct", &e.AmountTolPct, s.AmountTolPct)
	setFloat("qty_tol_pct", &e.QtyTolPct, s.QtyTolPct)
	setFloat("weight_vendor", &e.WeightVendor, s.WeightVendor)
	setFloat("weight_amount", &e.WeightAmount, s.WeightAmount)
	setFloat("weight_3way", &e.Weight3Way, s.Weight3Way)
	if s.RecvRequired != nil {
		e.RecvRequired = *s.RecvRequired
		e.Sources["recv_required"] = s.ScopeType
	}
}
