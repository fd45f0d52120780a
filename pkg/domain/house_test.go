package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citybuilder/pkg/domain"
	"citybuilder/testutil"
)

func TestDeriveHeight(t *testing.T) {
	assert.Equal(t, 100, domain.DeriveHeight(1))
	assert.Equal(t, 200, domain.DeriveHeight(3))
	assert.Equal(t, 650, domain.DeriveHeight(12))
}

func TestNewHouseDefaults(t *testing.T) {
	h := domain.NewHouse("h1")
	assert.Equal(t, "h1", h.ID)
	assert.Equal(t, domain.DefaultName, h.Name)
	assert.Equal(t, domain.DefaultColor, h.Color)
	assert.Equal(t, []domain.Floor{{ID: 0, Color: ""}}, h.Floors)
	assert.Equal(t, 100, h.Height)
	assert.Equal(t, domain.StatusAdded, h.Status)
}

func TestChangeFloorCountGrowPrependsAndRenumbers(t *testing.T) {
	floors := []domain.Floor{{ID: 0, Color: "#111111"}}
	grown := domain.ChangeFloorCount(floors, 3)

	require.Len(t, grown, 3)
	assert.Equal(t, []domain.Floor{{ID: 0}, {ID: 1}, {ID: 2, Color: "#111111"}}, grown)
	// input untouched
	assert.Equal(t, []domain.Floor{{ID: 0, Color: "#111111"}}, floors)
}

func TestChangeFloorCountShrinkDropsTopmost(t *testing.T) {
	floors := []domain.Floor{{ID: 0, Color: "top"}, {ID: 1, Color: "middle"}, {ID: 2, Color: "ground"}}

	shrunk := domain.ChangeFloorCount(floors, 2)
	assert.Equal(t, []domain.Floor{{ID: 0, Color: "middle"}, {ID: 1, Color: "ground"}}, shrunk)

	shrunk = domain.ChangeFloorCount(floors, 1)
	assert.Equal(t, []domain.Floor{{ID: 0, Color: "ground"}}, shrunk)
}

func TestChangeFloorCountClamps(t *testing.T) {
	floors := []domain.Floor{{ID: 0}}
	assert.Len(t, domain.ChangeFloorCount(floors, 0), 1)
	assert.Len(t, domain.ChangeFloorCount(floors, -4), 1)
	assert.Len(t, domain.ChangeFloorCount(floors, 40), domain.MaxFloors)
}

func TestChangeFloorCountGrowShrinkCycleKeepsColorsOnFloors(t *testing.T) {
	floors := domain.ChangeFloorCount([]domain.Floor{{ID: 0}}, 2)
	floors = domain.RecolorFloor(floors, 1, "#ground")
	floors = domain.ChangeFloorCount(floors, 4)
	assert.Equal(t, "#ground", floors[3].Color)
	assert.Equal(t, 3, floors[3].ID)

	floors = domain.ChangeFloorCount(floors, 1)
	assert.Equal(t, []domain.Floor{{ID: 0, Color: "#ground"}}, floors)
}

func TestRecolorFloor(t *testing.T) {
	floors := []domain.Floor{{ID: 0}, {ID: 1}}

	recolored := domain.RecolorFloor(floors, 1, "#abcdef")
	assert.Equal(t, "#abcdef", recolored[1].Color)
	assert.Equal(t, "", floors[1].Color, "input must not be mutated")

	restored := domain.RecolorFloor(recolored, 1, "")
	assert.Equal(t, "", restored[1].Color)

	unchanged := domain.RecolorFloor(floors, 7, "#000000")
	assert.Equal(t, floors, unchanged)
}

func TestCloneIsDeep(t *testing.T) {
	h := domain.NewHouse("a")
	cp := h.Clone()
	cp.Floors[0].Color = "#fff"
	assert.Equal(t, "", h.Floors[0].Color)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         domain.House
		wantFloors int
		wantStatus domain.Status
	}{
		{"no floors", domain.House{ID: "a", Status: domain.StatusDefault}, 1, domain.StatusDefault},
		{"too many floors", domain.House{ID: "b", Floors: make([]domain.Floor, 20), Status: domain.StatusRemoved}, 12, domain.StatusRemoved},
		{"unknown status", domain.House{ID: "c", Floors: make([]domain.Floor, 2), Status: "weird"}, 2, domain.StatusDefault},
		{"missing status", domain.House{ID: "d", Floors: make([]domain.Floor, 3), Height: 9999}, 3, domain.StatusDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			require.Len(t, got.Floors, tt.wantFloors)
			assert.Equal(t, domain.DeriveHeight(tt.wantFloors), got.Height)
			assert.Equal(t, tt.wantStatus, got.Status)
			for i, f := range got.Floors {
				assert.Equal(t, i, f.ID)
			}
		})
	}
}

func TestClampFloorCount(t *testing.T) {
	assert.Equal(t, 1, domain.ClampFloorCount(0))
	assert.Equal(t, 5, domain.ClampFloorCount(5))
	assert.Equal(t, 12, domain.ClampFloorCount(13))
}

func TestDomainDoesNotImportInternalPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the house model must stay free of infrastructure")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden, "the house model is pure standard library")
}
