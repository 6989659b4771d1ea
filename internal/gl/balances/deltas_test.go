package balances

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercore/ledgercore/internal/gl/shared"
)

func TestComputeDeltas(t *testing.T) {
	deltas, err := ComputeDeltas([]LineAmount{
		{AccountCode: "1000", DebitMinor: 10000},
		{AccountCode: "4000", CreditMinor: 10000},
	}, "USD")
	require.NoError(t, err)
	require.Len(t, deltas, 2)

	assert.Equal(t, Delta{AccountCode: "1000", Currency: "USD", DebitMinor: 10000}, deltas[0])
	assert.Equal(t, Delta{AccountCode: "4000", Currency: "USD", CreditMinor: 10000}, deltas[1])
}

func TestComputeDeltasFoldsRepeatedAccounts(t *testing.T) {
	deltas, err := ComputeDeltas([]LineAmount{
		{AccountCode: "1000", DebitMinor: 3000},
		{AccountCode: "5000", DebitMinor: 500},
		{AccountCode: "1000", CreditMinor: 1000},
		{AccountCode: "4000", CreditMinor: 2500},
	}, "EUR")
	require.NoError(t, err)
	require.Len(t, deltas, 3)

	// Sorted by account code, one delta per account.
	assert.Equal(t, Delta{AccountCode: "1000", Currency: "EUR", DebitMinor: 3000, CreditMinor: 1000}, deltas[0])
	assert.Equal(t, Delta{AccountCode: "4000", Currency: "EUR", CreditMinor: 2500}, deltas[1])
	assert.Equal(t, Delta{AccountCode: "5000", Currency: "EUR", DebitMinor: 500}, deltas[2])
}

func TestComputeDeltasEmptyRejected(t *testing.T) {
	_, err := ComputeDeltas(nil, "USD")
	assert.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestComputeDeltasBalancedEntryNetsToZero(t *testing.T) {
	deltas, err := ComputeDeltas([]LineAmount{
		{AccountCode: "1000", DebitMinor: 9700},
		{AccountCode: "5000", DebitMinor: 300},
		{AccountCode: "4000", CreditMinor: 10000},
	}, "USD")
	require.NoError(t, err)

	var net int64
	for _, d := range deltas {
		net += d.DebitMinor - d.CreditMinor
	}
	assert.Zero(t, net)
}
