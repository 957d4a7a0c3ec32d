package router

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/levvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var permitArgs = mustArguments("address", "string", "address", "uint256", "uint256", "uint64")

// PermitDigest is the hash an owner signs to let router pull amount of token
// once. nonce is the owner's current permit nonce on that router.
func PermitDigest(router common.Address, token string, owner common.Address, amount sdkmath.Int, nonce, deadline uint64) ([]byte, error) {
	value, err := uint256(amount)
	if err != nil {
		return nil, err
	}
	packed, err := permitArgs.Pack(router, token, owner, value, new(big.Int).SetUint64(nonce), deadline)
	if err != nil {
		return nil, fmt.Errorf("permit digest: %w", err)
	}
	return crypto.Keccak256(packed), nil
}

// SignPermit builds a PullTokenWithPermit command signed by key.
func SignPermit(key *ecdsa.PrivateKey, router common.Address, token string, amount sdkmath.Int, nonce, deadline uint64) (PullTokenWithPermit, error) {
	owner := crypto.PubkeyToAddress(key.PublicKey)
	digest, err := PermitDigest(router, token, owner, amount, nonce, deadline)
	if err != nil {
		return PullTokenWithPermit{}, err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return PullTokenWithPermit{}, fmt.Errorf("sign permit: %w", err)
	}
	return PullTokenWithPermit{Token: token, Owner: owner, Amount: amount, Deadline: deadline, Signature: sig}, nil
}

func verifyPermit(router common.Address, cmd PullTokenWithPermit, nonce uint64) error {
	if len(cmd.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature is %d bytes", types.ErrInvalidPermit, len(cmd.Signature))
	}
	digest, err := PermitDigest(router, cmd.Token, cmd.Owner, cmd.Amount, nonce, cmd.Deadline)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(digest, cmd.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidPermit, err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != cmd.Owner {
		return fmt.Errorf("%w: signed by %s, not %s", types.ErrInvalidPermit, signer.Hex(), cmd.Owner.Hex())
	}
	return nil
}
