package proof

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	pkgerrors "zkbridge/pkg/errors"
)

// Binding failures. Both are invalid proofs.
var (
	ErrAmountBinding    = fmt.Errorf("%w: public amount does not match claimed amount", pkgerrors.ErrInvalidProof)
	ErrRecipientBinding = fmt.Errorf("%w: public recipient does not match claimed recipient", pkgerrors.ErrInvalidProof)
)

// Verifier decides whether a proof authorizes releasing amount to recipient.
// A nil error means valid. Implementations must be pure and safe for
// concurrent use.
type Verifier interface {
	Verify(proof, publicInputs []byte, amount *uint256.Int, recipient common.Address) error
}

// BindingVerifier performs the structural parse and the amount binding check
// only. It accepts any well-formed proof whose public amount matches.
type BindingVerifier struct {
	// BindRecipient additionally requires the public recipient identifier to
	// match the claimed recipient.
	BindRecipient bool
}

func (v BindingVerifier) Verify(proofBlob, inputsBlob []byte, amount *uint256.Int, recipient common.Address) error {
	_, in, err := decodeBundle(proofBlob, inputsBlob)
	if err != nil {
		return err
	}
	return v.checkBinding(in, amount, recipient)
}

func (v BindingVerifier) checkBinding(in *PublicInputs, amount *uint256.Int, recipient common.Address) error {
	if amount == nil || !in.Amount.Eq(amount) {
		return ErrAmountBinding
	}
	if v.BindRecipient && !in.Recipient.Eq(RecipientIdentifier(recipient)) {
		return ErrRecipientBinding
	}
	return nil
}

func decodeBundle(proofBlob, inputsBlob []byte) (*Proof, *PublicInputs, error) {
	p, err := DecodeProof(proofBlob)
	if err != nil {
		return nil, nil, err
	}
	in, err := DecodePublicInputs(inputsBlob)
	if err != nil {
		return nil, nil, err
	}
	return p, in, nil
}
