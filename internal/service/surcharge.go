package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultSurchargePercent is the processing fee added on top of every donation.
const DefaultSurchargePercent int64 = 5

const referenceRandomLen = 6

var hundred = decimal.NewFromInt(100)

// Surcharge returns amount increased by percent, rounded half away from zero
// to two decimal places.
func Surcharge(amount decimal.Decimal, percent int64) decimal.Decimal {
	factor := hundred.Add(decimal.NewFromInt(percent)).Div(hundred)
	return amount.Mul(factor).Round(2)
}

// NewReference builds an outbound payment reference of the form
// PFX-YYYYMMDDhhmmss-XXXXXX where PFX is the upper-cased first three
// letters of the gateway code.
func NewReference(gatewayCode string, now time.Time) string {
	prefix := strings.ToUpper(gatewayCode)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return prefix + "-" + now.Format("20060102150405") + "-" + randomSuffix()
}

func randomSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:referenceRandomLen])
}
