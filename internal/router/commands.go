package router

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Action is the wire code of a router command.
type Action uint8

const (
	ActionPullToken Action = iota + 1
	ActionPullTokenFrom
	ActionPushToken
	ActionPushTokenFrom
	ActionWrapNative
	ActionUnwrapNative
	ActionSwap
	ActionPullTokenWithPermit
	ActionERC4626Deposit
	ActionERC4626Mint
	ActionERC4626Withdraw
	ActionERC4626Redeem
)

func (a Action) String() string {
	switch a {
	case ActionPullToken:
		return "PULL_TOKEN"
	case ActionPullTokenFrom:
		return "PULL_TOKEN_FROM"
	case ActionPushToken:
		return "PUSH_TOKEN"
	case ActionPushTokenFrom:
		return "PUSH_TOKEN_FROM"
	case ActionWrapNative:
		return "WRAP_NATIVE"
	case ActionUnwrapNative:
		return "UNWRAP_NATIVE"
	case ActionSwap:
		return "SWAP"
	case ActionPullTokenWithPermit:
		return "PULL_TOKEN_WITH_PERMIT"
	case ActionERC4626Deposit:
		return "ERC4626_DEPOSIT"
	case ActionERC4626Mint:
		return "ERC4626_MINT"
	case ActionERC4626Withdraw:
		return "ERC4626_WITHDRAW"
	case ActionERC4626Redeem:
		return "ERC4626_REDEEM"
	default:
		return fmt.Sprintf("ACTION_%d", uint8(a))
	}
}

// Slots links a command to the execution stack. A non-zero In replaces the
// command's amount with the value held in that 1-based slot; a non-zero Out
// stores the command's result there.
type Slots struct {
	In  uint8 `json:"in,omitempty"`
	Out uint8 `json:"out,omitempty"`
}

func (s Slots) Stack() Slots { return s }

// Command is one router instruction.
type Command interface {
	Action() Action
	Stack() Slots
}

// PullToken moves Amount of Token from the caller to the router.
type PullToken struct {
	Slots
	Token  string      `json:"token"`
	Amount sdkmath.Int `json:"amount"`
}

// PullTokenFrom moves Amount of Token from From to the router, spending the
// allowance From granted the caller.
type PullTokenFrom struct {
	Slots
	Token  string         `json:"token"`
	From   common.Address `json:"from"`
	Amount sdkmath.Int    `json:"amount"`
}

// PushToken sends Amount of Token held by the router to To.
type PushToken struct {
	Slots
	Token  string         `json:"token"`
	To     common.Address `json:"to"`
	Amount sdkmath.Int    `json:"amount"`
}

// PushTokenFrom moves Amount of Token from From to To, spending the allowance
// From granted the caller.
type PushTokenFrom struct {
	Slots
	Token  string         `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount sdkmath.Int    `json:"amount"`
}

// WrapNative converts the router's native balance into the wrapped denom.
type WrapNative struct {
	Slots
	Amount sdkmath.Int `json:"amount"`
}

// UnwrapNative converts the router's wrapped balance back to native.
type UnwrapNative struct {
	Slots
	Amount sdkmath.Int `json:"amount"`
}

// Swap exchanges router-held TokenIn for TokenOut over an enabled route.
// Amount is the fixed side of the swap. Limit is the minimum output for
// ExactIn and the maximum input for ExactOut; zero disables the check.
// The result is the other side.
type Swap struct {
	Slots
	TokenIn  string         `json:"token_in"`
	TokenOut string         `json:"token_out"`
	Mode     types.SwapMode `json:"mode"`
	Amount   sdkmath.Int    `json:"amount"`
	Limit    sdkmath.Int    `json:"limit"`
	Payload  []byte         `json:"payload,omitempty"`
}

// PullTokenWithPermit pulls Amount of Token from Owner using a signed
// permit instead of a prior approval.
type PullTokenWithPermit struct {
	Slots
	Token     string         `json:"token"`
	Owner     common.Address `json:"owner"`
	Amount    sdkmath.Int    `json:"amount"`
	Deadline  uint64         `json:"deadline"`
	Signature []byte         `json:"signature"`
}

// ERC4626Deposit deposits router-held assets into Vault. The result is the
// shares minted to Receiver.
type ERC4626Deposit struct {
	Slots
	Vault    common.Address `json:"vault"`
	Assets   sdkmath.Int    `json:"assets"`
	Receiver common.Address `json:"receiver"`
}

// ERC4626Mint mints Shares of Vault to Receiver paying with router-held
// assets. The result is the assets spent.
type ERC4626Mint struct {
	Slots
	Vault    common.Address `json:"vault"`
	Shares   sdkmath.Int    `json:"shares"`
	Receiver common.Address `json:"receiver"`
}

// ERC4626Withdraw withdraws Assets from Vault burning shares of Owner, who
// must be the caller or the router. The result is the shares burned.
type ERC4626Withdraw struct {
	Slots
	Vault    common.Address `json:"vault"`
	Assets   sdkmath.Int    `json:"assets"`
	Receiver common.Address `json:"receiver"`
	Owner    common.Address `json:"owner"`
}

// ERC4626Redeem redeems Shares of Owner from Vault. The result is the assets
// sent to Receiver.
type ERC4626Redeem struct {
	Slots
	Vault    common.Address `json:"vault"`
	Shares   sdkmath.Int    `json:"shares"`
	Receiver common.Address `json:"receiver"`
	Owner    common.Address `json:"owner"`
}

func (PullToken) Action() Action           { return ActionPullToken }
func (PullTokenFrom) Action() Action       { return ActionPullTokenFrom }
func (PushToken) Action() Action           { return ActionPushToken }
func (PushTokenFrom) Action() Action       { return ActionPushTokenFrom }
func (WrapNative) Action() Action          { return ActionWrapNative }
func (UnwrapNative) Action() Action        { return ActionUnwrapNative }
func (Swap) Action() Action                { return ActionSwap }
func (PullTokenWithPermit) Action() Action { return ActionPullTokenWithPermit }
func (ERC4626Deposit) Action() Action      { return ActionERC4626Deposit }
func (ERC4626Mint) Action() Action         { return ActionERC4626Mint }
func (ERC4626Withdraw) Action() Action     { return ActionERC4626Withdraw }
func (ERC4626Redeem) Action() Action       { return ActionERC4626Redeem }

// Stack holds command results for later commands to consume.
type Stack []sdkmath.Int

func (s Stack) read(slot uint8) (sdkmath.Int, error) {
	if slot == 0 || int(slot) > len(s) || s[slot-1].IsNil() {
		return sdkmath.Int{}, fmt.Errorf("%w: slot %d is empty", types.ErrInvalidStackSlot, slot)
	}
	return s[slot-1], nil
}

func (s *Stack) write(slot uint8, v sdkmath.Int) {
	if slot == 0 {
		return
	}
	for len(*s) < int(slot) {
		*s = append(*s, sdkmath.Int{})
	}
	(*s)[slot-1] = v
}
