package simulations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/elys-network/levvault/internal/utils"
)

var ErrNoPrice = errors.New("no price available")

// PriceFeed is a settable oracle answer.
type PriceFeed struct {
	mu        sync.RWMutex
	price     sdkmath.Int
	updatedAt time.Time
	err       error
}

// NewPriceFeed returns a feed answering price (1e18 fixed point) as of updatedAt.
func NewPriceFeed(price sdkmath.Int, updatedAt time.Time) *PriceFeed {
	return &PriceFeed{price: price, updatedAt: updatedAt}
}

// SetPrice publishes a new answer.
func (f *PriceFeed) SetPrice(price sdkmath.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.updatedAt, f.err = price, updatedAt, nil
}

// Fail makes every read return err until the next SetPrice.
func (f *PriceFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *PriceFeed) LatestPrice(ctx context.Context) (types.Price, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return types.Price{}, f.err
	}
	if f.price.IsNil() {
		return types.Price{}, ErrNoPrice
	}
	return types.Price{Value: f.price, UpdatedAt: f.updatedAt}, nil
}

// PriceBook prices denoms in the base unit. Denoms without an oracle are the
// base unit itself and price at 1e18.
type PriceBook struct {
	mu      sync.RWMutex
	oracles map[string]types.Oracle
}

func NewPriceBook() *PriceBook {
	return &PriceBook{oracles: make(map[string]types.Oracle)}
}

// Set assigns the oracle pricing denom.
func (b *PriceBook) Set(denom string, oracle types.Oracle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.oracles[denom] = oracle
}

// Price returns the 1e18 price of one unit of denom in base units.
func (b *PriceBook) Price(ctx context.Context, denom string) (sdkmath.Int, error) {
	b.mu.RLock()
	oracle, ok := b.oracles[denom]
	b.mu.RUnlock()
	if !ok {
		return utils.OneE18, nil
	}
	p, err := oracle.LatestPrice(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("price of %s: %w", denom, err)
	}
	if !p.Value.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("price of %s: %w", denom, ErrNoPrice)
	}
	return p.Value, nil
}

// Value converts amount of denom to base units.
func (b *PriceBook) Value(ctx context.Context, denom string, amount sdkmath.Int) (sdkmath.Int, error) {
	price, err := b.Price(ctx, denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(amount, price, utils.OneE18), nil
}
