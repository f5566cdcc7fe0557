// Package proof decodes release proofs and decides whether they authorize a
// given (amount, recipient) pair.
//
// A proof is the canonical RLP encoding of four nested coordinate groups:
//
//	[ax, ay, [bx0, bx1, [by0, by1, [cx, cy]]]]
//
// and the public inputs are [signal, [recipient, amount]]. Every scalar is an
// unsigned integer of at most 256 bits.
package proof

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	pkgerrors "zkbridge/pkg/errors"
)

// Point is one coordinate group of a proof.
type Point struct {
	X, Y uint256.Int
}

// Proof holds the four groups in encoding order.
type Proof struct {
	A  Point
	BX Point
	BY Point
	C  Point
}

// PublicInputs are the values the proof is bound to.
type PublicInputs struct {
	Signal    uint256.Int
	Recipient uint256.Int
	Amount    uint256.Int
}

type group4 struct {
	X, Y uint256.Int
}

type group3 struct {
	X, Y uint256.Int
	Next group4
}

type group2 struct {
	X, Y uint256.Int
	Next group3
}

type group1 struct {
	X, Y uint256.Int
	Next group2
}

type inputsBody struct {
	Recipient uint256.Int
	Amount    uint256.Int
}

type inputsRoot struct {
	Signal uint256.Int
	Body   inputsBody
}

// DecodeProof parses a proof blob. Any structural deviation returns an error
// wrapping ErrMalformedProof.
func DecodeProof(blob []byte) (*Proof, error) {
	var g group1
	if err := rlp.DecodeBytes(blob, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrMalformedProof, err)
	}
	return &Proof{
		A:  Point{X: g.X, Y: g.Y},
		BX: Point{X: g.Next.X, Y: g.Next.Y},
		BY: Point{X: g.Next.Next.X, Y: g.Next.Next.Y},
		C:  Point{X: g.Next.Next.Next.X, Y: g.Next.Next.Next.Y},
	}, nil
}

// EncodeProof produces the canonical blob for p.
func EncodeProof(p *Proof) ([]byte, error) {
	return rlp.EncodeToBytes(&group1{
		X: p.A.X, Y: p.A.Y,
		Next: group2{
			X: p.BX.X, Y: p.BX.Y,
			Next: group3{
				X: p.BY.X, Y: p.BY.Y,
				Next: group4{X: p.C.X, Y: p.C.Y},
			},
		},
	})
}

// DecodePublicInputs parses a public-inputs blob.
func DecodePublicInputs(blob []byte) (*PublicInputs, error) {
	var root inputsRoot
	if err := rlp.DecodeBytes(blob, &root); err != nil {
		return nil, fmt.Errorf("%w: public inputs: %v", pkgerrors.ErrMalformedProof, err)
	}
	return &PublicInputs{
		Signal:    root.Signal,
		Recipient: root.Body.Recipient,
		Amount:    root.Body.Amount,
	}, nil
}

// EncodePublicInputs produces the canonical blob for in.
func EncodePublicInputs(in *PublicInputs) ([]byte, error) {
	return rlp.EncodeToBytes(&inputsRoot{
		Signal: in.Signal,
		Body:   inputsBody{Recipient: in.Recipient, Amount: in.Amount},
	})
}

// RecipientIdentifier maps a local address to its public-input scalar.
func RecipientIdentifier(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes20(addr.Bytes())
}

// Hash returns the replay-guard key of a proof blob. It is computed over the
// raw bytes, so malformed blobs hash too.
func Hash(blob []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(blob)
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}
