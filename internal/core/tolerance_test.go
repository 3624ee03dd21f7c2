package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/reconcile/internal/core"
	mock_core "github.com/JonMunkholm/reconcile/internal/core/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func globalTolerance() *core.GlobalTolerance {
	return &core.GlobalTolerance{
		AmountTolPct: 0.01,
		QtyTolPct:    0.02,
		RecvRequired: false,
		WeightVendor: 0.3,
		WeightAmount: 0.5,
		Weight3Way:   0.2,
	}
}

func TestResolver_Layering(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_core.NewMockToleranceStore(ctrl)

	store.EXPECT().LoadTolerance(gomock.Any(), "76543210K", "P-1").Return(core.ToleranceLayers{
		Global: globalTolerance(),
		Vendor: &core.ToleranceScope{
			ScopeType:    core.ScopeVendor,
			ScopeValue:   "76543210K",
			AmountTolPct: ptr(0.03),
			RecvRequired: ptr(true),
		},
		Project: &core.ToleranceScope{
			ScopeType:    core.ScopeProject,
			ScopeValue:   "P-1",
			AmountTolPct: ptr(0.05),
			WeightVendor: ptr(0.6),
		},
	}, nil)

	eff, err := core.NewResolver(store).Resolve(context.Background(), "76543210K", "P-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.05, eff.AmountTolPct)
	assert.Equal(t, 0.02, eff.QtyTolPct)
	assert.True(t, eff.RecvRequired)
	assert.Equal(t, 0.6, eff.WeightVendor)
	assert.Equal(t, 0.5, eff.WeightAmount)

	assert.Equal(t, core.ScopeProject, eff.Sources["amount_tol_pct"])
	assert.Equal(t, core.ScopeGlobal, eff.Sources["qty_tol_pct"])
	assert.Equal(t, core.ScopeVendor, eff.Sources["recv_required"])
	assert.Equal(t, core.ScopeProject, eff.Sources["weight_vendor"])
	assert.Equal(t, core.ScopeGlobal, eff.Sources["weight_3way"])
}

func TestResolver_OverrideWinsOutright(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_core.NewMockToleranceStore(ctrl)
	store.EXPECT().LoadTolerance(gomock.Any(), "", "").Return(core.ToleranceLayers{
		Global:  globalTolerance(),
		Project: &core.ToleranceScope{ScopeType: core.ScopeProject, AmountTolPct: ptr(0.2)},
	}, nil)

	eff, err := core.NewResolver(store).Resolve(context.Background(), "", "", ptr(0.05))
	require.NoError(t, err)
	assert.Equal(t, 0.05, eff.AmountTolPct)
	assert.Equal(t, core.ScopeOverride, eff.Sources["amount_tol_pct"])
}

func TestResolver_MissingGlobalScope(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_core.NewMockToleranceStore(ctrl)
	store.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ToleranceLayers{
		Vendor: &core.ToleranceScope{ScopeType: core.ScopeVendor, AmountTolPct: ptr(0.1)},
	}, nil)

	_, err := core.NewResolver(store).Resolve(context.Background(), "1", "", nil)
	assert.ErrorIs(t, err, core.ErrMissingGlobalScope)
}

func TestResolver_StoreErrorAndBadOverride(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_core.NewMockToleranceStore(ctrl)
	boom := errors.New("connection refused")
	store.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ToleranceLayers{}, boom)

	r := core.NewResolver(store)
	_, err := r.Resolve(context.Background(), "", "", nil)
	assert.ErrorIs(t, err, boom)

	// Rejected before the store is read.
	_, err = r.Resolve(context.Background(), "", "", ptr(-0.1))
	assert.True(t, core.IsValidationError(err))
}

// Each request re-reads the store.
func TestResolver_NeverCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock_core.NewMockToleranceStore(ctrl)

	first := globalTolerance()
	second := globalTolerance()
	second.AmountTolPct = 0.04
	gomock.InOrder(
		store.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ToleranceLayers{Global: first}, nil),
		store.EXPECT().LoadTolerance(gomock.Any(), gomock.Any(), gomock.Any()).Return(core.ToleranceLayers{Global: second}, nil),
	)

	r := core.NewResolver(store)
	a, err := r.Resolve(context.Background(), "", "", nil)
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.01, a.AmountTolPct)
	assert.Equal(t, 0.04, b.AmountTolPct)
}
