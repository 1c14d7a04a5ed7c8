/**
 * @description
 * Amount validation for the ledger engine. Every requested movement passes
 * through ValidateAmount before any balance is read or locked.
 */

package app

import "github.com/shopspring/decimal"

// ValidateAmount rejects non-positive amounts and amounts carrying more
// fractional digits than the account's declared scale. Truncating at the
// scale and comparing catches excess precision without rounding: 10.005 at
// scale 2 truncates to 10.00 and fails the equality.
func ValidateAmount(amount decimal.Decimal, scale int32) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(scale)) {
		return ErrInvalidAmount
	}
	return nil
}
