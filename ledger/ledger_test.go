package ledger

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestLedger(cash int64) *Ledger {
	return New(decimal.NewFromInt(cash))
}

func TestLedger_OpenGrantsStartingCash(t *testing.T) {
	l := newTestLedger(1000)
	p := l.Open("a")

	if !p.Cash.Equal(decimal.NewFromInt(1000)) || p.Shares != 0 {
		t.Errorf("Expected 1000 cash and 0 shares, got %s / %d", p.Cash, p.Shares)
	}

	l.Buy("a", 1, 10)
	if again := l.Open("a"); again.Shares != 1 {
		t.Error("Re-opening an account must not reset it")
	}

	l.Close("a")
	if _, ok := l.Position("a"); ok {
		t.Error("Closed account should be gone")
	}
}

func TestLedger_BuyAndSell(t *testing.T) {
	l := newTestLedger(1000)
	l.Open("a")

	p, err := l.Buy("a", 3, 100)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if !p.Cash.Equal(decimal.NewFromInt(700)) || p.Shares != 3 {
		t.Errorf("After buy expected 700/3, got %s/%d", p.Cash, p.Shares)
	}

	p, err = l.Sell("a", 2, 110.5)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !p.Cash.Equal(decimal.RequireFromString("921")) || p.Shares != 1 {
		t.Errorf("After sell expected 921/1, got %s/%d", p.Cash, p.Shares)
	}
}

func TestLedger_InsufficientFundsLeavesPositionUnchanged(t *testing.T) {
	l := newTestLedger(50)
	l.Open("a")

	p, err := l.Buy("a", 1, 60)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if !p.Cash.Equal(decimal.NewFromInt(50)) || p.Shares != 0 {
		t.Errorf("Rejected buy changed the position: %s/%d", p.Cash, p.Shares)
	}
}

func TestLedger_RejectsBadOrders(t *testing.T) {
	l := newTestLedger(100)
	l.Open("a")

	if _, err := l.Sell("a", 1, 10); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("Expected ErrInsufficientShares, got %v", err)
	}
	if _, err := l.Buy("a", 0, 10); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := l.Buy("a", 1, -1); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
	if _, err := l.Buy("ghost", 1, 1); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Expected ErrUnknownAccount, got %v", err)
	}
}

func TestLedger_RandomOrdersNeverGoNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := newTestLedger(1000)
	l.Open("a")

	for i := 0; i < 5000; i++ {
		qty := int64(rng.Intn(5) + 1)
		price := rng.Float64() * 200
		var p Position
		if rng.Intn(2) == 0 {
			p, _ = l.Buy("a", qty, price)
		} else {
			p, _ = l.Sell("a", qty, price)
		}
		if p.Cash.IsNegative() || p.Shares < 0 {
			t.Fatalf("Position went negative at step %d: %s/%d", i, p.Cash, p.Shares)
		}
	}
}
