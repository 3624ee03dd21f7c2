package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

var toleranceSQL = fmt.Sprintf(`SELECT scope_type, scope_value, amount_tol_pct, qty_tol_pct,
	recv_required, weight_vendor, weight_amount, weight_3way
FROM %s
WHERE scope_type = 'global'
   OR (scope_type = 'vendor' AND $1::text <> '' AND regexp_replace(upper(scope_value), '[^0-9K]', '', 'g') = $1::text)
   OR (scope_type = 'project' AND $2::text <> '' AND scope_value = $2::text)
ORDER BY scope_type, scope_value`, quoteRelation(ToleranceTable))

// ErrDuplicateScope is returned when more than one row resolves to the same
// scope, for example two vendor rows whose RUTs normalize to one value.
var ErrDuplicateScope = errors.New("duplicate tolerance scope")

// LoadTolerance implements core.ToleranceStore. It reads the rows fresh on
// every call. A global row with a NULL column is reported as a missing
// global scope; two rows for the same scope are rejected.
func (s *Store) LoadTolerance(ctx context.Context, vendorRUT, projectID string) (core.ToleranceLayers, error) {
	rows, err := s.db.Query(ctx, toleranceSQL, core.NormalizeRUT(vendorRUT), projectID)
	if err != nil {
		return core.ToleranceLayers{}, mapError(ToleranceTable, err)
	}
	defer rows.Close()

	var layers core.ToleranceLayers
	for rows.Next() {
		var (
			scopeType, scopeValue       pgtype.Text
			amountTol, qtyTol           pgtype.Float8
			recvRequired                pgtype.Bool
			wVendor, wAmount, wThreeWay pgtype.Float8
		)
		if err := rows.Scan(&scopeType, &scopeValue, &amountTol, &qtyTol,
			&recvRequired, &wVendor, &wAmount, &wThreeWay); err != nil {
			return core.ToleranceLayers{}, fmt.Errorf("scan %s: %w", ToleranceTable, err)
		}

		scope := &core.ToleranceScope{
			ScopeType:    core.ScopeType(PgTextToString(scopeType)),
			ScopeValue:   PgTextToString(scopeValue),
			AmountTolPct: PgFloat8Ptr(amountTol),
			QtyTolPct:    PgFloat8Ptr(qtyTol),
			RecvRequired: PgBoolPtr(recvRequired),
			WeightVendor: PgFloat8Ptr(wVendor),
			WeightAmount: PgFloat8Ptr(wAmount),
			Weight3Way:   PgFloat8Ptr(wThreeWay),
		}

		switch scope.ScopeType {
		case core.ScopeGlobal:
			if layers.Global != nil {
				return core.ToleranceLayers{}, duplicate(scope)
			}
			g, err := completeGlobal(scope)
			if err != nil {
				return core.ToleranceLayers{}, err
			}
			layers.Global = g
		case core.ScopeVendor:
			if layers.Vendor != nil {
				return core.ToleranceLayers{}, duplicate(scope)
			}
			layers.Vendor = scope
		case core.ScopeProject:
			if layers.Project != nil {
				return core.ToleranceLayers{}, duplicate(scope)
			}
			layers.Project = scope
		}
	}
	if err := rows.Err(); err != nil {
		return core.ToleranceLayers{}, mapError(ToleranceTable, err)
	}
	return layers, nil
}

func duplicate(s *core.ToleranceScope) error {
	return fmt.Errorf("%s scope %q: %w", s.ScopeType, s.ScopeValue, ErrDuplicateScope)
}

func completeGlobal(s *core.ToleranceScope) (*core.GlobalTolerance, error) {
	missing := func(field string) error {
		return fmt.Errorf("global tolerance %s is null: %w", field, core.ErrMissingGlobalScope)
	}
	switch {
	case s.AmountTolPct == nil:
		return nil, missing("amount_tol_pct")
	case s.QtyTolPct == nil:
		return nil, missing("qty_tol_pct")
	case s.RecvRequired == nil:
		return nil, missing("recv_required")
	case s.WeightVendor == nil:
		return nil, missing("weight_vendor")
	case s.WeightAmount == nil:
		return nil, missing("weight_amount")
	case s.Weight3Way == nil:
		return nil, missing("weight_3way")
	}
	return &core.GlobalTolerance{
		AmountTolPct: *s.AmountTolPct,
		QtyTolPct:    *s.QtyTolPct,
		RecvRequired: *s.RecvRequired,
		WeightVendor: *s.WeightVendor,
		WeightAmount: *s.WeightAmount,
		Weight3Way:   *s.Weight3Way,
	}, nil
}
