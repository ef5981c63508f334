package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrustAppliesSeedAndDefaults(t *testing.T) {
	trust := NewTrust(map[string]map[string]int{
		"Governments":  {"Corporations": 35, "Governments": 7}, // diagonal in seed is ignored
		"Corporations": {"Governments": 45},
	})

	assert.Equal(t, 35, trust.Value("Governments", "Corporations"))
	assert.Equal(t, 45, trust.Value("Corporations", "Governments"))
	assert.Equal(t, DiagonalCredibility, trust.Value("Governments", "Governments"))
	assert.Equal(t, DiagonalCredibility, trust.Value("Corporations", "Corporations"))
}

func TestNewTrustClampsSeedValues(t *testing.T) {
	trust := NewTrust(map[string]map[string]int{
		"A": {"B": 130},
		"B": {"A": -5},
	})

	assert.Equal(t, 100, trust.Value("A", "B"))
	assert.Equal(t, 0, trust.Value("B", "A"))
}

func TestEnsureFactionIsIdempotentAndPreservesValues(t *testing.T) {
	trust := NewTrust(nil)
	trust.EnsureFaction("Regulators")
	trust.Adjust("Regulators", "Governments", 13)

	trust.EnsureFaction("Regulators")
	trust.EnsureFaction("Governments")

	assert.Equal(t, BaseCredibility+13, trust.Value("Regulators", "Governments"))
	assert.Equal(t, BaseCredibility, trust.Value("Governments", "Regulators"))
}

func TestDiagonalStaysPinned(t *testing.T) {
	trust := NewTrust(nil)
	trust.EnsureFaction("Governments")
	require.Equal(t, DiagonalCredibility, trust.Value("Governments", "Governments"))

	// Adjust hammers other cells; the diagonal never moves.
	for i := 0; i < 50; i++ {
		trust.Adjust("Governments", "Regulators", 7)
		trust.Adjust("Regulators", "Governments", -7)
		trust.Adjust("Governments", "Governments", -40)
	}
	assert.Equal(t, DiagonalCredibility, trust.Value("Governments", "Governments"))
	assert.Equal(t, DiagonalCredibility, trust.Value("Regulators", "Regulators"))
}

func TestAdjustClampsSilently(t *testing.T) {
	trust := NewTrust(nil)

	trust.Adjust("A", "B", 999)
	assert.Equal(t, 100, trust.Value("A", "B"))

	trust.Adjust("A", "B", -999)
	assert.Equal(t, 0, trust.Value("A", "B"))

	// Repeated application never escapes the bounds.
	for i := 0; i < 20; i++ {
		trust.Adjust("A", "B", -30)
	}
	assert.Equal(t, 0, trust.Value("A", "B"))
}

func TestAdjustSkipsMissingFactionsAndZeroDelta(t *testing.T) {
	trust := NewTrust(nil)
	trust.EnsureFaction("A")
	trust.EnsureFaction("B")
	before := trust.Snapshot()

	trust.Adjust("", "B", 10)
	trust.Adjust("A", "", 10)
	trust.Adjust("A", "B", 0)

	assert.Equal(t, before, trust.Snapshot())
}

func TestValueMaterializesUnknownFactions(t *testing.T) {
	trust := NewTrust(nil)
	trust.EnsureFaction("Governments")

	got := trust.Value("NewFaction", "Governments")
	assert.Equal(t, BaseCredibility, got)
	assert.Contains(t, trust.Factions(), "NewFaction")
	// Reads never change existing cells.
	assert.Equal(t, BaseCredibility, trust.Value("Governments", "NewFaction"))
}

func TestSnapshotIsIndependent(t *testing.T) {
	trust := NewTrust(nil)
	trust.Adjust("A", "B", 10)

	snap := trust.Snapshot()
	snap["A"]["B"] = 1

	assert.Equal(t, 60, trust.Value("A", "B"))
}
