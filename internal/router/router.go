// Package router chains token moves, swaps and vault calls into one atomic
// batch. Commands run in order against a stack of intermediate results.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Vault is the ERC-4626 surface the router drives. Both vault kinds satisfy it.
type Vault interface {
	Address() common.Address
	Asset() string
	Deposit(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
	Mint(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver common.Address) (sdkmath.Int, error)
	Withdraw(ctx context.Context, caller common.Address, assets sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error)
	Redeem(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) (sdkmath.Int, error)
}

type Config struct {
	Runtime      *chain.Runtime
	Ledger       *chain.TokenLedger
	Name         string
	Governor     common.Address
	NativeDenom  string
	WrappedDenom string
}

type routeKey struct {
	in, out string
}

func (k routeKey) String() string { return k.in + "/" + k.out }

type routerState struct {
	routes map[routeKey]types.SwapRouter
	vaults map[common.Address]Vault
	nonces map[common.Address]uint64
}

type Router struct {
	rt       *chain.Runtime
	ledger   *chain.TokenLedger
	name     string
	address  common.Address
	governor common.Address
	native   string
	wrapped  string
	logger   zerolog.Logger

	mu    sync.RWMutex
	state routerState
}

func New(cfg Config) (*Router, error) {
	switch {
	case cfg.Runtime == nil || cfg.Ledger == nil:
		return nil, errors.New("router config: runtime and ledger are required")
	case cfg.Name == "":
		return nil, errors.New("router config: name cannot be empty")
	case cfg.Governor == (common.Address{}):
		return nil, errors.New("router config: governor cannot be the zero address")
	case cfg.NativeDenom != "" && cfg.NativeDenom == cfg.WrappedDenom:
		return nil, errors.New("router config: native and wrapped denoms must differ")
	}
	r := &Router{
		rt:       cfg.Runtime,
		ledger:   cfg.Ledger,
		name:     cfg.Name,
		address:  chain.DeriveAddress(cfg.Name),
		governor: cfg.Governor,
		native:   cfg.NativeDenom,
		wrapped:  cfg.WrappedDenom,
		logger:   logger.GetForComponent("router"),
		state: routerState{
			routes: make(map[routeKey]types.SwapRouter),
			vaults: make(map[common.Address]Vault),
			nonces: make(map[common.Address]uint64),
		},
	}
	cfg.Runtime.Register(r)
	return r, nil
}

func (r *Router) Address() common.Address { return r.address }

// Route returns the swapper enabled for tokenIn to tokenOut.
func (r *Router) Route(tokenIn, tokenOut string) (types.SwapRouter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.state.routes[routeKey{tokenIn, tokenOut}]
	return s, ok
}

// PermitNonce is the nonce the next permit of owner must be signed with.
func (r *Router) PermitNonce(owner common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.nonces[owner]
}

func (r *Router) requireGovernor(caller common.Address) error {
	if caller != r.governor {
		return fmt.Errorf("%w: %s is not the governor", types.ErrNoPermissions, caller.Hex())
	}
	return nil
}

// EnableRoute lets Swap commands exchange tokenIn for tokenOut through swapper.
func (r *Router) EnableRoute(ctx context.Context, caller common.Address, tokenIn, tokenOut string, swapper types.SwapRouter) error {
	return r.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := r.requireGovernor(caller); err != nil {
			return err
		}
		if swapper == nil || tokenIn == "" || tokenOut == "" || tokenIn == tokenOut {
			return fmt.Errorf("enable route %s/%s: invalid route", tokenIn, tokenOut)
		}
		key := routeKey{tokenIn, tokenOut}
		r.mu.Lock()
		r.state.routes[key] = swapper
		r.mu.Unlock()
		r.rt.Emit(events.RouteEnabled(r.address, swapper.Address(), key.String()))
		r.logger.Info().Str("route", key.String()).Str("swapper", swapper.Address().Hex()).Msg("Route enabled")
		return nil
	})
}

func (r *Router) DisableRoute(ctx context.Context, caller common.Address, tokenIn, tokenOut string) error {
	return r.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := r.requireGovernor(caller); err != nil {
			return err
		}
		key := routeKey{tokenIn, tokenOut}
		r.mu.Lock()
		_, ok := r.state.routes[key]
		delete(r.state.routes, key)
		r.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrRouteNotAuthorized, key)
		}
		r.rt.Emit(events.RouteDisabled(r.address, key.String()))
		r.logger.Info().Str("route", key.String()).Msg("Route disabled")
		return nil
	})
}

// RegisterVault makes v reachable from ERC-4626 commands.
func (r *Router) RegisterVault(ctx context.Context, caller common.Address, v Vault) error {
	return r.rt.Atomic(ctx, func(ctx context.Context) error {
		if err := r.requireGovernor(caller); err != nil {
			return err
		}
		if v == nil {
			return errors.New("register vault: vault is nil")
		}
		r.mu.Lock()
		r.state.vaults[v.Address()] = v
		r.mu.Unlock()
		r.logger.Info().Str("vault", v.Address().Hex()).Str("asset", v.Asset()).Msg("Vault registered")
		return nil
	})
}

func (r *Router) vault(addr common.Address) (Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.state.vaults[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownVault, addr.Hex())
	}
	return v, nil
}

// ExecuteEncoded decodes every command before running any of them.
func (r *Router) ExecuteEncoded(ctx context.Context, caller common.Address, encoded []Encoded) (Stack, error) {
	commands := make([]Command, 0, len(encoded))
	for i, e := range encoded {
		cmd, err := DecodeCommand(e.Action, e.Data)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		commands = append(commands, cmd)
	}
	return r.Execute(ctx, caller, commands)
}

// Execute runs commands in order for caller. Any failure reverts the batch.
func (r *Router) Execute(ctx context.Context, caller common.Address, commands []Command) (Stack, error) {
	var stack Stack
	err := r.rt.Atomic(ctx, func(ctx context.Context) error {
		for i, cmd := range commands {
			if cmd == nil {
				return fmt.Errorf("command %d: %w: nil", i, types.ErrUnknownCommand)
			}
			out, err := r.dispatch(ctx, caller, cmd, stack)
			if err != nil {
				return fmt.Errorf("command %d (%s): %w", i, cmd.Action(), err)
			}
			stack.write(cmd.Stack().Out, out)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("caller", caller.Hex()).Int("commands", len(commands)).Msg("Router batch reverted")
		return nil, err
	}
	r.logger.Info().Str("caller", caller.Hex()).Int("commands", len(commands)).Msg("Router batch executed")
	return stack, nil
}

// amountOf resolves the amount a command acts on: the literal, or the stack
// value when In is set.
func amountOf(literal sdkmath.Int, slots Slots, stack Stack) (sdkmath.Int, error) {
	if slots.In == 0 {
		return literal, nil
	}
	return stack.read(slots.In)
}

func validateCoin(denom string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("amount of %s must be positive, got %v", denom, amount)
	}
	return sdk.Coin{Denom: denom, Amount: amount}.Validate()
}

func (r *Router) dispatch(ctx context.Context, caller common.Address, cmd Command, stack Stack) (sdkmath.Int, error) {
	switch c := cmd.(type) {
	case PullToken:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.pull(c.Token, caller, caller, amount)
	case PullTokenFrom:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.pull(c.Token, caller, c.From, amount)
	case PushToken:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if err := validateCoin(c.Token, amount); err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.ledger.Transfer(c.Token, r.address, c.To, amount)
	case PushTokenFrom:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if err := validateCoin(c.Token, amount); err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.ledger.TransferFrom(c.Token, caller, c.From, c.To, amount)
	case WrapNative:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.convert(r.native, r.wrapped, amount)
	case UnwrapNative:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return amount, r.convert(r.wrapped, r.native, amount)
	case Swap:
		amount, err := amountOf(c.Amount, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return r.swap(ctx, c, amount)
	case PullTokenWithPermit:
		if c.In != 0 {
			return sdkmath.Int{}, fmt.Errorf("%w: permit amounts are signed and cannot come from the stack", types.ErrInvalidStackSlot)
		}
		return c.Amount, r.pullWithPermit(c)
	case ERC4626Deposit:
		assets, err := amountOf(c.Assets, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return r.deposit(c.Vault, func(v Vault) (sdkmath.Int, error) {
			if err := validateCoin(v.Asset(), assets); err != nil {
				return sdkmath.Int{}, err
			}
			return v.Deposit(ctx, r.address, assets, c.Receiver)
		})
	case ERC4626Mint:
		shares, err := amountOf(c.Shares, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return r.deposit(c.Vault, func(v Vault) (sdkmath.Int, error) {
			return v.Mint(ctx, r.address, shares, c.Receiver)
		})
	case ERC4626Withdraw:
		assets, err := amountOf(c.Assets, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return r.withdraw(c.Vault, caller, c.Owner, func(v Vault) (sdkmath.Int, error) {
			return v.Withdraw(ctx, r.address, assets, c.Receiver, c.Owner)
		})
	case ERC4626Redeem:
		shares, err := amountOf(c.Shares, c.Slots, stack)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return r.withdraw(c.Vault, caller, c.Owner, func(v Vault) (sdkmath.Int, error) {
			return v.Redeem(ctx, r.address, shares, c.Receiver, c.Owner)
		})
	default:
		return sdkmath.Int{}, fmt.Errorf("%w: %T", types.ErrUnknownCommand, cmd)
	}
}

// pull moves amount of token from from to the router on caller's authority.
// Pulling from the caller spends the caller's allowance to the router,
// pulling from anyone else spends their allowance to the caller.
func (r *Router) pull(token string, caller, from common.Address, amount sdkmath.Int) error {
	if err := validateCoin(token, amount); err != nil {
		return err
	}
	spender := caller
	if from == caller {
		spender = r.address
	}
	return r.ledger.TransferFrom(token, spender, from, r.address, amount)
}

func (r *Router) convert(from, to string, amount sdkmath.Int) error {
	if r.native == "" || r.wrapped == "" {
		return errors.New("native wrapping is not configured")
	}
	if err := validateCoin(from, amount); err != nil {
		return err
	}
	if err := r.ledger.Burn(from, r.address, amount); err != nil {
		return err
	}
	return r.ledger.Mint(to, r.address, amount)
}

func (r *Router) swap(ctx context.Context, c Swap, amount sdkmath.Int) (sdkmath.Int, error) {
	swapper, ok := r.Route(c.TokenIn, c.TokenOut)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s/%s", types.ErrRouteNotAuthorized, c.TokenIn, c.TokenOut)
	}
	limit := c.Limit
	if limit.IsNil() {
		limit = sdkmath.ZeroInt()
	}
	params := types.SwapParams{
		UnderlyingIn:  c.TokenIn,
		UnderlyingOut: c.TokenOut,
		Mode:          c.Mode,
		Payload:       c.Payload,
	}
	var allowance sdkmath.Int
	switch c.Mode {
	case types.ExactIn:
		if err := validateCoin(c.TokenIn, amount); err != nil {
			return sdkmath.Int{}, err
		}
		params.AmountIn, params.AmountOut = amount, limit
		allowance = amount
	case types.ExactOut:
		if err := validateCoin(c.TokenOut, amount); err != nil {
			return sdkmath.Int{}, err
		}
		params.AmountIn, params.AmountOut = limit, amount
		allowance = limit
		if !allowance.IsPositive() {
			allowance = r.ledger.BalanceOf(c.TokenIn, r.address)
		}
	default:
		return sdkmath.Int{}, fmt.Errorf("swap: unknown mode %d", c.Mode)
	}

	if err := r.ledger.Approve(c.TokenIn, r.address, swapper.Address(), allowance); err != nil {
		return sdkmath.Int{}, err
	}
	result, err := swapper.ExecuteSwap(ctx, r.address, params)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := r.ledger.Approve(c.TokenIn, r.address, swapper.Address(), sdkmath.ZeroInt()); err != nil {
		return sdkmath.Int{}, err
	}
	r.logger.Debug().
		Str("route", c.TokenIn+"/"+c.TokenOut).
		Str("mode", c.Mode.String()).
		Str("amountIn", result.AmountIn.String()).
		Str("amountOut", result.AmountOut.String()).
		Msg("Swapped")
	if c.Mode == types.ExactIn {
		return result.AmountOut, nil
	}
	return result.AmountIn, nil
}

func (r *Router) pullWithPermit(c PullTokenWithPermit) error {
	if err := validateCoin(c.Token, c.Amount); err != nil {
		return err
	}
	if now := uint64(r.rt.Now().Unix()); now > c.Deadline {
		return fmt.Errorf("%w: deadline %d, now %d", types.ErrPermitExpired, c.Deadline, now)
	}
	nonce := r.PermitNonce(c.Owner)
	if err := verifyPermit(r.address, c, nonce); err != nil {
		return err
	}
	r.mu.Lock()
	r.state.nonces[c.Owner] = nonce + 1
	r.mu.Unlock()
	if err := r.ledger.Approve(c.Token, c.Owner, r.address, c.Amount); err != nil {
		return err
	}
	return r.ledger.TransferFrom(c.Token, r.address, c.Owner, r.address, c.Amount)
}

// deposit approves the vault for the router's whole asset balance around call.
func (r *Router) deposit(addr common.Address, call func(Vault) (sdkmath.Int, error)) (sdkmath.Int, error) {
	v, err := r.vault(addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	asset := v.Asset()
	if err := r.ledger.Approve(asset, r.address, v.Address(), r.ledger.BalanceOf(asset, r.address)); err != nil {
		return sdkmath.Int{}, err
	}
	out, err := call(v)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := r.ledger.Approve(asset, r.address, v.Address(), sdkmath.ZeroInt()); err != nil {
		return sdkmath.Int{}, err
	}
	return out, nil
}

// withdraw only burns shares of the caller or of the router itself.
func (r *Router) withdraw(addr, caller, owner common.Address, call func(Vault) (sdkmath.Int, error)) (sdkmath.Int, error) {
	if owner != caller && owner != r.address {
		return sdkmath.Int{}, fmt.Errorf("%w: %s cannot spend shares of %s", types.ErrNoPermissions, caller.Hex(), owner.Hex())
	}
	v, err := r.vault(addr)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return call(v)
}

func (r *Router) Snapshot() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := routerState{
		routes: make(map[routeKey]types.SwapRouter, len(r.state.routes)),
		vaults: make(map[common.Address]Vault, len(r.state.vaults)),
		nonces: make(map[common.Address]uint64, len(r.state.nonces)),
	}
	for k, v := range r.state.routes {
		s.routes[k] = v
	}
	for k, v := range r.state.vaults {
		s.vaults[k] = v
	}
	for k, v := range r.state.nonces {
		s.nonces[k] = v
	}
	return s
}

func (r *Router) Restore(snapshot any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = snapshot.(routerState)
}
