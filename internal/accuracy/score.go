package accuracy

import "github.com/shopspring/decimal"

// PriceScale is the number of decimal places kept for prices and
// prediction errors, matching the NUMERIC(18, 4) columns.
const PriceScale = 4

var hundred = decimal.NewFromInt(100)

// Score compares a forecast with the observed price. The error is the
// absolute difference; accuracy is that error expressed as a percentage of
// the actual price, subtracted from 100 and floored at 0. Accuracy is rounded
// to two decimals and the error to PriceScale.
//
// actual must be positive; callers validate it first.
func Score(predicted, actual decimal.Decimal) (predictionError, accuracy decimal.Decimal) {
	predictionError = predicted.Sub(actual).Abs()
	accuracy = hundred.Sub(predictionError.Div(actual).Mul(hundred))
	if accuracy.IsNegative() {
		accuracy = decimal.Zero
	}
	return predictionError.Round(PriceScale), accuracy.Round(2)
}
