package reconciliation

import (
	"strconv"
	"strings"

	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
)

// brokerIDLength is the fixed width of the broker prefix inside a client
// order id.
const brokerIDLength = 16

// ClOrdID is the decoded identity carried inside a client order id. OrderID
// is zero for market orders, which encode only the member.
type ClOrdID struct {
	MemberID int64
	OrderID  int64
}

// DecodeClOrdID parses "<broker-id><m{memberId}[o{orderId}]>". A prefix that
// is not ours means the fill was produced by another deployment sharing the
// exchange account; anything else that fails to parse is a decode error.
func DecodeClOrdID(brokerID, clOrdID string) (ClOrdID, error) {
	if len(brokerID) != brokerIDLength {
		return ClOrdID{}, decodeError("broker id must be 16 characters", clOrdID)
	}
	if len(clOrdID) <= brokerIDLength {
		return ClOrdID{}, decodeError("client order id too short", clOrdID)
	}
	if clOrdID[:brokerIDLength] != brokerID {
		return ClOrdID{}, errors.NewErrorDetails(
			"client order id carries a foreign broker prefix",
			string(errors.LedgerForeignBrokerError),
			"clOrdId",
		)
	}

	suffix := clOrdID[brokerIDLength:]
	if !strings.HasPrefix(suffix, "m") {
		return ClOrdID{}, decodeError("missing member marker", clOrdID)
	}
	suffix = suffix[1:]

	memberPart := suffix
	orderPart := ""
	if i := strings.IndexByte(suffix, 'o'); i >= 0 {
		memberPart, orderPart = suffix[:i], suffix[i+1:]
	}

	memberID, err := strconv.ParseInt(memberPart, 10, 64)
	if err != nil || memberID <= 0 {
		return ClOrdID{}, decodeError("unparseable member id", clOrdID)
	}

	decoded := ClOrdID{MemberID: memberID}
	if orderPart != "" {
		orderID, err := strconv.ParseInt(orderPart, 10, 64)
		if err != nil || orderID <= 0 {
			return ClOrdID{}, decodeError("unparseable order id", clOrdID)
		}
		decoded.OrderID = orderID
	}

	return decoded, nil
}

func decodeError(message, clOrdID string) *errors.ErrorDetails {
	return errors.NewErrorDetailsWithObject(
		message,
		string(errors.LedgerClientOrderIDError),
		"clOrdId",
		clOrdID,
	)
}
