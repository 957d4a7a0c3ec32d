package chain

import (
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// TokenLedger keeps fungible balances and ERC-20 style allowances per denom.
type TokenLedger struct {
	mu         sync.RWMutex
	balances   map[string]map[common.Address]sdkmath.Int
	allowances map[string]map[allowanceKey]sdkmath.Int
	supply     map[string]sdkmath.Int
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		balances:   make(map[string]map[common.Address]sdkmath.Int),
		allowances: make(map[string]map[allowanceKey]sdkmath.Int),
		supply:     make(map[string]sdkmath.Int),
	}
}

func (l *TokenLedger) balanceLocked(denom string, account common.Address) sdkmath.Int {
	if b, ok := l.balances[denom][account]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (l *TokenLedger) setBalanceLocked(denom string, account common.Address, amount sdkmath.Int) {
	if l.balances[denom] == nil {
		l.balances[denom] = make(map[common.Address]sdkmath.Int)
	}
	if amount.IsZero() {
		delete(l.balances[denom], account)
		return
	}
	l.balances[denom][account] = amount
}

// BalanceOf returns the balance of account in denom.
func (l *TokenLedger) BalanceOf(denom string, account common.Address) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(denom, account)
}

// TotalSupply returns the minted supply of denom.
func (l *TokenLedger) TotalSupply(denom string) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.supply[denom]; ok {
		return s
	}
	return sdkmath.ZeroInt()
}

// Allowance returns how much spender may move out of owner's balance.
func (l *TokenLedger) Allowance(denom string, owner, spender common.Address) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a, ok := l.allowances[denom][allowanceKey{owner, spender}]; ok {
		return a
	}
	return sdkmath.ZeroInt()
}

// Approve sets the allowance of spender over owner's denom balance.
func (l *TokenLedger) Approve(denom string, owner, spender common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("approve %s: negative amount %s", denom, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[denom] == nil {
		l.allowances[denom] = make(map[allowanceKey]sdkmath.Int)
	}
	key := allowanceKey{owner, spender}
	if amount.IsZero() {
		delete(l.allowances[denom], key)
		return nil
	}
	l.allowances[denom][key] = amount
	return nil
}

func (l *TokenLedger) transferLocked(denom string, from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer %s: negative amount %s", denom, amount)
	}
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal := l.balanceLocked(denom, from)
	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s%s, needs %s%s", types.ErrInsufficientBalance, from.Hex(), fromBal, denom, amount, denom)
	}
	l.setBalanceLocked(denom, from, fromBal.Sub(amount))
	l.setBalanceLocked(denom, to, l.balanceLocked(denom, to).Add(amount))
	return nil
}

// Transfer moves amount of denom from one account to another.
func (l *TokenLedger) Transfer(denom string, from, to common.Address, amount sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(denom, from, to, amount)
}

// TransferFrom lets spender move amount out of from's balance, consuming allowance.
func (l *TokenLedger) TransferFrom(denom string, spender, from, to common.Address, amount sdkmath.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if spender != from {
		key := allowanceKey{from, spender}
		allowed, ok := l.allowances[denom][key]
		if !ok {
			allowed = sdkmath.ZeroInt()
		}
		if allowed.LT(amount) {
			return fmt.Errorf("%w: %s may spend %s%s of %s, needs %s%s", types.ErrInsufficientAllowance, spender.Hex(), allowed, denom, from.Hex(), amount, denom)
		}
		if err := l.transferLocked(denom, from, to, amount); err != nil {
			return err
		}
		if remaining := allowed.Sub(amount); remaining.IsZero() {
			delete(l.allowances[denom], key)
		} else {
			l.allowances[denom][key] = remaining
		}
		return nil
	}
	return l.transferLocked(denom, from, to, amount)
}

// Mint creates amount of denom in account.
func (l *TokenLedger) Mint(denom string, account common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("mint %s: negative amount %s", denom, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setBalanceLocked(denom, account, l.balanceLocked(denom, account).Add(amount))
	supply, ok := l.supply[denom]
	if !ok {
		supply = sdkmath.ZeroInt()
	}
	l.supply[denom] = supply.Add(amount)
	return nil
}

// Burn destroys amount of denom held by account.
func (l *TokenLedger) Burn(denom string, account common.Address, amount sdkmath.Int) error {
	if amount.IsNegative() {
		return fmt.Errorf("burn %s: negative amount %s", denom, amount)
	}
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(denom, account)
	if bal.LT(amount) {
		return fmt.Errorf("%w: burn %s%s from %s holding %s%s", types.ErrInsufficientBalance, amount, denom, account.Hex(), bal, denom)
	}
	l.setBalanceLocked(denom, account, bal.Sub(amount))
	l.supply[denom] = l.supply[denom].Sub(amount)
	return nil
}

// Denoms lists every denom ever minted, sorted.
func (l *TokenLedger) Denoms() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.supply))
	for d := range l.supply {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

type ledgerState struct {
	balances   map[string]map[common.Address]sdkmath.Int
	allowances map[string]map[allowanceKey]sdkmath.Int
	supply     map[string]sdkmath.Int
}

func (l *TokenLedger) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := ledgerState{
		balances:   make(map[string]map[common.Address]sdkmath.Int, len(l.balances)),
		allowances: make(map[string]map[allowanceKey]sdkmath.Int, len(l.allowances)),
		supply:     make(map[string]sdkmath.Int, len(l.supply)),
	}
	for denom, m := range l.balances {
		cp := make(map[common.Address]sdkmath.Int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		s.balances[denom] = cp
	}
	for denom, m := range l.allowances {
		cp := make(map[allowanceKey]sdkmath.Int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		s.allowances[denom] = cp
	}
	for k, v := range l.supply {
		s.supply[k] = v
	}
	return s
}

func (l *TokenLedger) Restore(snapshot any) {
	s := snapshot.(ledgerState)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances, l.allowances, l.supply = s.balances, s.allowances, s.supply
}
