// Package events holds the append-only audit log emitted by strategies, vaults
// and the router.
package events

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Kind names an event.
type Kind string

const (
	KindStrategyDeploy       Kind = "StrategyDeploy"
	KindStrategyUndeploy     Kind = "StrategyUndeploy"
	KindStrategyProfit       Kind = "StrategyProfit"
	KindStrategyLoss         Kind = "StrategyLoss"
	KindStrategyAmountUpdate Kind = "StrategyAmountUpdate"
	KindDeposit              Kind = "Deposit"
	KindWithdraw             Kind = "Withdraw"
	KindTransfer             Kind = "Transfer"
	KindWeightsUpdated       Kind = "WeightsUpdated"
	KindStrategyAdded        Kind = "StrategyAdded"
	KindStrategyRemoved      Kind = "StrategyRemoved"
	KindRouteEnabled         Kind = "RouteEnabled"
	KindRouteDisabled        Kind = "RouteDisabled"
	KindPolicyUpdated        Kind = "PolicyUpdated"
)

// Event is one log entry. Only the fields relevant to Kind are populated;
// Seq and Time are stamped when the event is appended.
type Event struct {
	Seq      uint64         `json:"seq"`
	Kind     Kind           `json:"kind"`
	Emitter  common.Address `json:"emitter"`
	Time     time.Time      `json:"time"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Sender   common.Address `json:"sender"`
	Receiver common.Address `json:"receiver"`
	Owner    common.Address `json:"owner"`
	Amount   sdkmath.Int    `json:"amount"`
	Shares   sdkmath.Int    `json:"shares"`
	Weights  []uint64       `json:"weights,omitempty"`
	Label    string         `json:"label,omitempty"`
}

func newEvent(kind Kind, emitter common.Address) Event {
	return Event{Kind: kind, Emitter: emitter, Amount: sdkmath.ZeroInt(), Shares: sdkmath.ZeroInt()}
}

func StrategyDeploy(emitter, from common.Address, amount sdkmath.Int) Event {
	e := newEvent(KindStrategyDeploy, emitter)
	e.From, e.Amount = from, amount
	return e
}

func StrategyUndeploy(emitter, from common.Address, amount sdkmath.Int) Event {
	e := newEvent(KindStrategyUndeploy, emitter)
	e.From, e.Amount = from, amount
	return e
}

func StrategyProfit(emitter common.Address, amount sdkmath.Int) Event {
	e := newEvent(KindStrategyProfit, emitter)
	e.Amount = amount
	return e
}

func StrategyLoss(emitter common.Address, amount sdkmath.Int) Event {
	e := newEvent(KindStrategyLoss, emitter)
	e.Amount = amount
	return e
}

// StrategyAmountUpdate carries the strategy's new deployed equity.
func StrategyAmountUpdate(emitter common.Address, deployed sdkmath.Int) Event {
	e := newEvent(KindStrategyAmountUpdate, emitter)
	e.Amount = deployed
	return e
}

func Deposit(emitter, sender, owner common.Address, assets, shares sdkmath.Int) Event {
	e := newEvent(KindDeposit, emitter)
	e.Sender, e.Owner, e.Amount, e.Shares = sender, owner, assets, shares
	return e
}

func Withdraw(emitter, sender, receiver, owner common.Address, assets, shares sdkmath.Int) Event {
	e := newEvent(KindWithdraw, emitter)
	e.Sender, e.Receiver, e.Owner, e.Amount, e.Shares = sender, receiver, owner, assets, shares
	return e
}

// Transfer records a share movement. Mints use the zero address as from,
// burns use it as to.
func Transfer(emitter, from, to common.Address, value sdkmath.Int) Event {
	e := newEvent(KindTransfer, emitter)
	e.From, e.To, e.Shares = from, to, value
	return e
}

func WeightsUpdated(emitter common.Address, weights []uint64) Event {
	e := newEvent(KindWeightsUpdated, emitter)
	e.Weights = append([]uint64(nil), weights...)
	return e
}

func StrategyAdded(emitter, strategy common.Address, weight uint64) Event {
	e := newEvent(KindStrategyAdded, emitter)
	e.To, e.Weights = strategy, []uint64{weight}
	return e
}

func StrategyRemoved(emitter, strategy common.Address, recovered sdkmath.Int) Event {
	e := newEvent(KindStrategyRemoved, emitter)
	e.From, e.Amount = strategy, recovered
	return e
}

// RouteEnabled labels the route as "tokenIn/tokenOut".
func RouteEnabled(emitter, swapper common.Address, route string) Event {
	e := newEvent(KindRouteEnabled, emitter)
	e.To, e.Label = swapper, route
	return e
}

func RouteDisabled(emitter common.Address, route string) Event {
	e := newEvent(KindRouteDisabled, emitter)
	e.Label = route
	return e
}

func PolicyUpdated(emitter common.Address, label string) Event {
	e := newEvent(KindPolicyUpdated, emitter)
	e.Label = label
	return e
}
