package accuracy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		predicted string
		actual    string
		wantError string
		wantAcc   string
	}{
		{name: "close forecast", predicted: "2500.00", actual: "2478.50", wantError: "21.50", wantAcc: "99.13"},
		{name: "exact forecast", predicted: "150", actual: "150", wantError: "0", wantAcc: "100"},
		{name: "under forecast", predicted: "90", actual: "100", wantError: "10", wantAcc: "90"},
		{name: "over by more than actual floors at zero", predicted: "100", actual: "40", wantError: "60", wantAcc: "0"},
		{name: "off by exactly actual", predicted: "200", actual: "100", wantError: "100", wantAcc: "0"},
		{name: "error kept at price scale", predicted: "100.123456", actual: "100", wantError: "0.1235", wantAcc: "99.88"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr, gotAcc := Score(d(tt.predicted), d(tt.actual))
			if !gotErr.Equal(d(tt.wantError)) {
				t.Errorf("error = %s, want %s", gotErr, tt.wantError)
			}
			if !gotAcc.Equal(d(tt.wantAcc)) {
				t.Errorf("accuracy = %s, want %s", gotAcc, tt.wantAcc)
			}
		})
	}
}

func TestScoreStaysInRange(t *testing.T) {
	actuals := []string{"0.01", "1", "3.3333", "99.99", "2478.5", "100000"}
	predicted := []string{"0.0001", "0.5", "1", "10", "2500", "99999.99", "1000000"}
	for _, a := range actuals {
		for _, p := range predicted {
			errAbs, acc := Score(d(p), d(a))
			if errAbs.IsNegative() {
				t.Errorf("Score(%s, %s) error = %s, want >= 0", p, a, errAbs)
			}
			if acc.IsNegative() || acc.GreaterThan(hundred) {
				t.Errorf("Score(%s, %s) accuracy = %s, want within [0, 100]", p, a, acc)
			}
		}
	}
}
