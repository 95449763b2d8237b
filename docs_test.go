package fundme_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/oracle"
	paymem "github.com/xraph/fundme/payout/memory"
	"github.com/xraph/fundme/store/memory"
	"github.com/xraph/fundme/types"
)

// TestDocumentationExamples verifies the package documentation walk-through.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		store := memory.New()
		bank := paymem.New()

		l, err := fundme.Deploy(ctx, store, bank, fundme.Config{
			Owner:     "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			PriceFeed: oracle.NewDefaultMock(),
		}, fundme.WithLogger(slog.Default()))
		if err != nil {
			t.Fatal(err)
		}
		defer l.Close(ctx)

		c, err := l.Contribute(ctx, "0xalice", types.MustEther("0.05"))
		if err != nil {
			t.Fatal(err)
		}
		if c.USDValue.Display() != "$100.00" {
			t.Errorf("usd value: got %s", c.USDValue.Display())
		}

		w, err := l.WithdrawCheap(ctx, l.Owner())
		if err != nil {
			t.Fatal(err)
		}
		if w.Amount.Ether() != "0.05" {
			t.Errorf("withdrawn: got %s", w.Amount.Ether())
		}
		if got := bank.BalanceOf(l.Owner()); !got.Equal(w.Amount) {
			t.Errorf("owner received %s, want %s", got, w.Amount)
		}
	})

	t.Run("AmountExamples", func(t *testing.T) {
		w := fundme.MustEther("0.05")
		if w.String() != "50000000000000000" {
			t.Errorf("wei: %s", w)
		}
		if fundme.Dollars(50).Display() != "$50.00" {
			t.Errorf("display: %s", fundme.Dollars(50).Display())
		}
		if _, err := fundme.ParseEther("not a number"); err == nil {
			t.Error("expected parse error")
		}
	})
}

func ExampleConversionRate() {
	price, _ := oracle.NewDefaultMock().LatestPrice(context.Background())

	fmt.Println(fundme.ConversionRate(types.MustEther("0.05"), price).Display())
	fmt.Println(fundme.ConversionRate(types.MustEther("0.01"), price).Display())
	// Output:
	// $100.00
	// $20.00
}
