// ledger/ledger.go
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAccount     = errors.New("unknown account")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidPrice       = errors.New("price must be >= 0")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Position is one participant's holdings against the shared price feed.
type Position struct {
	Cash   decimal.Decimal
	Shares int64
}

// Ledger keeps a position per connected participant. It is not safe for
// concurrent use; the room loop owns it.
type Ledger struct {
	startingCash decimal.Decimal
	accounts     map[string]*Position
}

func New(startingCash decimal.Decimal) *Ledger {
	return &Ledger{
		startingCash: startingCash,
		accounts:     make(map[string]*Position),
	}
}

// Open creates an account with the starting grant. Opening an existing
// account leaves it as it is.
func (l *Ledger) Open(id string) Position {
	if p, ok := l.accounts[id]; ok {
		return *p
	}
	p := &Position{Cash: l.startingCash}
	l.accounts[id] = p
	return *p
}

func (l *Ledger) Close(id string) {
	delete(l.accounts, id)
}

func (l *Ledger) Position(id string) (Position, bool) {
	p, ok := l.accounts[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Buy debits qty*price and credits qty shares. On error the position is
// returned unchanged.
func (l *Ledger) Buy(id string, qty int64, price float64) (Position, error) {
	p, err := l.lookup(id, qty, price)
	if err != nil {
		return l.current(id), err
	}

	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty))
	if p.Cash.LessThan(cost) {
		return *p, ErrInsufficientFunds
	}
	p.Cash = p.Cash.Sub(cost)
	p.Shares += qty
	return *p, nil
}

// Sell debits qty shares and credits qty*price.
func (l *Ledger) Sell(id string, qty int64, price float64) (Position, error) {
	p, err := l.lookup(id, qty, price)
	if err != nil {
		return l.current(id), err
	}

	if p.Shares < qty {
		return *p, ErrInsufficientShares
	}
	p.Shares -= qty
	p.Cash = p.Cash.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)))
	return *p, nil
}

func (l *Ledger) lookup(id string, qty int64, price float64) (*Position, error) {
	p, ok := l.accounts[id]
	if !ok {
		return nil, ErrUnknownAccount
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	return p, nil
}

func (l *Ledger) current(id string) Position {
	p, _ := l.Position(id)
	return p
}
