package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironstone-erp/ironstone-erp/internal/shared"
)

func TestParsePaymentState(t *testing.T) {
	for _, raw := range []string{"pending", "completed", "failed", "refunded"} {
		state, err := ParsePaymentState(raw)
		require.NoError(t, err)
		require.Equal(t, PaymentState(raw), state)
	}

	_, err := ParsePaymentState("settled")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = ParsePaymentState("")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestParseEntryType(t *testing.T) {
	for _, raw := range []string{"invoice", "payment", "credit", "debit", "adjustment"} {
		entryType, err := ParseEntryType(raw)
		require.NoError(t, err)
		require.Equal(t, EntryType(raw), entryType)
	}

	_, err := ParseEntryType("reversal")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestEntryTypeContribution(t *testing.T) {
	require.Equal(t, 100.0, EntryDebit.Contribution(100))
	require.Equal(t, -100.0, EntryPayment.Contribution(100))
	require.Equal(t, -100.0, EntryCredit.Contribution(100))
}
