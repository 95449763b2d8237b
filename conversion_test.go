package fundme

import (
	"math/big"
	"testing"

	"github.com/xraph/fundme/oracle"
	"github.com/xraph/fundme/types"
)

func TestConversionRate(t *testing.T) {
	at2000 := oracle.Price{Answer: big.NewInt(2000_00000000), Decimals: 8}

	tests := []struct {
		name   string
		amount types.Wei
		price  oracle.Price
		want   string
	}{
		{"0.05 ether", types.MustEther("0.05"), at2000, "100"},
		{"0.01 ether", types.MustEther("0.01"), at2000, "20"},
		{"exact minimum", types.MustEther("0.025"), at2000, "50"},
		{"one ether", types.MustEther("1"), at2000, "2000"},
		{"zero", types.Wei{}, at2000, "0"},
		{"18 decimal feed", types.MustEther("2"), oracle.Price{Answer: types.Dollars(3).Big(), Decimals: 18}, "6"},
		{"truncates toward zero", types.NewWei(1), oracle.Price{Answer: big.NewInt(1), Decimals: 1}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConversionRate(tt.amount, tt.price)
			if got.Dollars() != tt.want {
				t.Errorf("got %s, want %s", got.Dollars(), tt.want)
			}
		})
	}
}

func TestConversionRateMultipliesFirst(t *testing.T) {
	// 3 wei at 0.5 (answer 5, 1 decimal) is 1.5 units: dividing first would
	// lose the fraction entirely.
	got := ConversionRate(types.NewWei(3), oracle.Price{Answer: big.NewInt(5), Decimals: 1})
	if got.String() != "1" {
		t.Errorf("got %s units, want 1", got)
	}
}

func TestConversionRateNegativeTruncatesTowardZero(t *testing.T) {
	got := ConversionRate(types.NewWei(-3), oracle.Price{Answer: big.NewInt(5), Decimals: 1})
	if got.String() != "-1" {
		t.Errorf("got %s units, want -1", got)
	}
}
