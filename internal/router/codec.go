package router

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Encoded is a command in wire form: an action code and the ABI encoding of
// its argument tuple, without a function selector.
type Encoded struct {
	Action uint8  `json:"action"`
	Data   []byte `json:"data"`
}

var layouts = map[Action]abi.Arguments{
	ActionPullToken:           mustArguments("uint8", "uint8", "string", "uint256"),
	ActionPullTokenFrom:       mustArguments("uint8", "uint8", "string", "address", "uint256"),
	ActionPushToken:           mustArguments("uint8", "uint8", "string", "address", "uint256"),
	ActionPushTokenFrom:       mustArguments("uint8", "uint8", "string", "address", "address", "uint256"),
	ActionWrapNative:          mustArguments("uint8", "uint8", "uint256"),
	ActionUnwrapNative:        mustArguments("uint8", "uint8", "uint256"),
	ActionSwap:                mustArguments("uint8", "uint8", "string", "string", "uint8", "uint256", "uint256", "bytes"),
	ActionPullTokenWithPermit: mustArguments("uint8", "uint8", "string", "address", "uint256", "uint64", "bytes"),
	ActionERC4626Deposit:      mustArguments("uint8", "uint8", "address", "uint256", "address"),
	ActionERC4626Mint:         mustArguments("uint8", "uint8", "address", "uint256", "address"),
	ActionERC4626Withdraw:     mustArguments("uint8", "uint8", "address", "uint256", "address", "address"),
	ActionERC4626Redeem:       mustArguments("uint8", "uint8", "address", "uint256", "address", "address"),
}

func mustArguments(kinds ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(kinds))
	for _, kind := range kinds {
		t, err := abi.NewType(kind, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abi type %s: %v", kind, err))
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// uint256 maps an amount onto the wire. Unset amounts encode as zero.
func uint256(amount sdkmath.Int) (*big.Int, error) {
	if amount.IsNil() {
		return new(big.Int), nil
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	return amount.BigInt(), nil
}

// EncodeCommand packs cmd into its wire form.
func EncodeCommand(cmd Command) (Encoded, error) {
	if cmd == nil {
		return Encoded{}, fmt.Errorf("%w: nil", types.ErrUnknownCommand)
	}
	slots := cmd.Stack()
	values := []any{slots.In, slots.Out}
	amounts := func(xs ...sdkmath.Int) ([]any, error) {
		out := make([]any, len(xs))
		for i, x := range xs {
			v, err := uint256(x)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	var err error
	var a []any
	switch c := cmd.(type) {
	case PullToken:
		a, err = amounts(c.Amount)
		values = append(values, c.Token)
		values = append(values, a...)
	case PullTokenFrom:
		a, err = amounts(c.Amount)
		values = append(values, c.Token, c.From)
		values = append(values, a...)
	case PushToken:
		a, err = amounts(c.Amount)
		values = append(values, c.Token, c.To)
		values = append(values, a...)
	case PushTokenFrom:
		a, err = amounts(c.Amount)
		values = append(values, c.Token, c.From, c.To)
		values = append(values, a...)
	case WrapNative:
		a, err = amounts(c.Amount)
		values = append(values, a...)
	case UnwrapNative:
		a, err = amounts(c.Amount)
		values = append(values, a...)
	case Swap:
		a, err = amounts(c.Amount, c.Limit)
		values = append(values, c.TokenIn, c.TokenOut, uint8(c.Mode))
		values = append(values, a...)
		values = append(values, nonNil(c.Payload))
	case PullTokenWithPermit:
		a, err = amounts(c.Amount)
		values = append(values, c.Token, c.Owner)
		values = append(values, a...)
		values = append(values, c.Deadline, nonNil(c.Signature))
	case ERC4626Deposit:
		a, err = amounts(c.Assets)
		values = append(values, c.Vault)
		values = append(values, a...)
		values = append(values, c.Receiver)
	case ERC4626Mint:
		a, err = amounts(c.Shares)
		values = append(values, c.Vault)
		values = append(values, a...)
		values = append(values, c.Receiver)
	case ERC4626Withdraw:
		a, err = amounts(c.Assets)
		values = append(values, c.Vault)
		values = append(values, a...)
		values = append(values, c.Receiver, c.Owner)
	case ERC4626Redeem:
		a, err = amounts(c.Shares)
		values = append(values, c.Vault)
		values = append(values, a...)
		values = append(values, c.Receiver, c.Owner)
	default:
		return Encoded{}, fmt.Errorf("%w: %T", types.ErrUnknownCommand, cmd)
	}
	if err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", cmd.Action(), err)
	}
	data, err := layouts[cmd.Action()].Pack(values...)
	if err != nil {
		return Encoded{}, fmt.Errorf("encode %s: %w", cmd.Action(), err)
	}
	return Encoded{Action: uint8(cmd.Action()), Data: data}, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// DecodeCommand unpacks a wire command.
func DecodeCommand(action uint8, data []byte) (Command, error) {
	args, ok := layouts[Action(action)]
	if !ok {
		return nil, fmt.Errorf("%w: action code %d", types.ErrUnknownCommand, action)
	}
	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", Action(action), err)
	}
	r := &reader{values: values}
	slots := Slots{In: r.u8(), Out: r.u8()}

	var cmd Command
	switch Action(action) {
	case ActionPullToken:
		cmd = PullToken{Slots: slots, Token: r.str(), Amount: r.amount()}
	case ActionPullTokenFrom:
		cmd = PullTokenFrom{Slots: slots, Token: r.str(), From: r.addr(), Amount: r.amount()}
	case ActionPushToken:
		cmd = PushToken{Slots: slots, Token: r.str(), To: r.addr(), Amount: r.amount()}
	case ActionPushTokenFrom:
		cmd = PushTokenFrom{Slots: slots, Token: r.str(), From: r.addr(), To: r.addr(), Amount: r.amount()}
	case ActionWrapNative:
		cmd = WrapNative{Slots: slots, Amount: r.amount()}
	case ActionUnwrapNative:
		cmd = UnwrapNative{Slots: slots, Amount: r.amount()}
	case ActionSwap:
		cmd = Swap{
			Slots:    slots,
			TokenIn:  r.str(),
			TokenOut: r.str(),
			Mode:     types.SwapMode(r.u8()),
			Amount:   r.amount(),
			Limit:    r.amount(),
			Payload:  r.bytes(),
		}
	case ActionPullTokenWithPermit:
		cmd = PullTokenWithPermit{
			Slots:     slots,
			Token:     r.str(),
			Owner:     r.addr(),
			Amount:    r.amount(),
			Deadline:  r.u64(),
			Signature: r.bytes(),
		}
	case ActionERC4626Deposit:
		cmd = ERC4626Deposit{Slots: slots, Vault: r.addr(), Assets: r.amount(), Receiver: r.addr()}
	case ActionERC4626Mint:
		cmd = ERC4626Mint{Slots: slots, Vault: r.addr(), Shares: r.amount(), Receiver: r.addr()}
	case ActionERC4626Withdraw:
		cmd = ERC4626Withdraw{Slots: slots, Vault: r.addr(), Assets: r.amount(), Receiver: r.addr(), Owner: r.addr()}
	case ActionERC4626Redeem:
		cmd = ERC4626Redeem{Slots: slots, Vault: r.addr(), Shares: r.amount(), Receiver: r.addr(), Owner: r.addr()}
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", Action(action), r.err)
	}
	return cmd, nil
}

// reader walks unpacked ABI values in order, keeping the first type error.
type reader struct {
	values []any
	next   int
	err    error
}

func (r *reader) take() any {
	if r.next >= len(r.values) {
		if r.err == nil {
			r.err = fmt.Errorf("missing argument %d", r.next)
		}
		return nil
	}
	v := r.values[r.next]
	r.next++
	return v
}

func (r *reader) fail(want string, got any) {
	if r.err == nil {
		r.err = fmt.Errorf("argument %d: want %s, got %T", r.next-1, want, got)
	}
}

func (r *reader) u8() uint8 {
	v := r.take()
	x, ok := v.(uint8)
	if !ok {
		r.fail("uint8", v)
	}
	return x
}

func (r *reader) u64() uint64 {
	v := r.take()
	x, ok := v.(uint64)
	if !ok {
		r.fail("uint64", v)
	}
	return x
}

func (r *reader) str() string {
	v := r.take()
	x, ok := v.(string)
	if !ok {
		r.fail("string", v)
	}
	return x
}

func (r *reader) addr() common.Address {
	v := r.take()
	x, ok := v.(common.Address)
	if !ok {
		r.fail("address", v)
	}
	return x
}

func (r *reader) bytes() []byte {
	v := r.take()
	x, ok := v.([]byte)
	if !ok {
		r.fail("bytes", v)
	}
	return x
}

func (r *reader) amount() sdkmath.Int {
	v := r.take()
	x, ok := v.(*big.Int)
	if !ok {
		r.fail("uint256", v)
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(x)
}
