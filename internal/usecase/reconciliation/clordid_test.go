package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
)

const testBrokerID = "brk0000000000000"

func TestDecodeClOrdID(t *testing.T) {
	tests := []struct {
		name     string
		clOrdID  string
		expected ClOrdID
		errCode  errors.ErrorCode
	}{
		{
			name:     "limit order id",
			clOrdID:  testBrokerID + "m501o77",
			expected: ClOrdID{MemberID: 501, OrderID: 77},
		},
		{
			name:     "market order encodes member only",
			clOrdID:  testBrokerID + "m501",
			expected: ClOrdID{MemberID: 501},
		},
		{
			name:    "foreign broker prefix",
			clOrdID: "other00000000000m501o77",
			errCode: errors.LedgerForeignBrokerError,
		},
		{
			name:    "too short",
			clOrdID: "brk",
			errCode: errors.LedgerClientOrderIDError,
		},
		{
			name:    "missing member marker",
			clOrdID: testBrokerID + "x501o77",
			errCode: errors.LedgerClientOrderIDError,
		},
		{
			name:    "non numeric member",
			clOrdID: testBrokerID + "mabco77",
			errCode: errors.LedgerClientOrderIDError,
		},
		{
			name:    "non numeric order",
			clOrdID: testBrokerID + "m501oxyz",
			errCode: errors.LedgerClientOrderIDError,
		},
		{
			name:    "zero member id",
			clOrdID: testBrokerID + "m0o77",
			errCode: errors.LedgerClientOrderIDError,
		},
		{
			name:    "empty suffix",
			clOrdID: testBrokerID,
			errCode: errors.LedgerClientOrderIDError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeClOrdID(testBrokerID, tc.clOrdID)
			if tc.errCode != "" {
				require.Error(t, err)
				assert.True(t, errors.ErrorCodeEquals(err, string(tc.errCode)))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, decoded)
		})
	}
}
