// Package prooftest builds proof bundles for tests.
package prooftest

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"zkbridge/internal/proof"
)

// Bundle returns a well-formed proof with arbitrary coordinates distinguished
// by signal, plus public inputs for (recipient, amount). It passes the
// binding verifier but not a pairing check.
func Bundle(t testing.TB, signal uint64, recipient common.Address, amount *uint256.Int) (proofBlob, inputsBlob []byte) {
	t.Helper()
	p := &proof.Proof{}
	for i, pt := range []*proof.Point{&p.A, &p.BX, &p.BY, &p.C} {
		pt.X.SetUint64(signal*8 + uint64(2*i) + 1)
		pt.Y.SetUint64(signal*8 + uint64(2*i) + 2)
	}
	return encode(t, p, signal, recipient, amount)
}

func encode(t testing.TB, p *proof.Proof, signal uint64, recipient common.Address, amount *uint256.Int) ([]byte, []byte) {
	t.Helper()
	proofBlob, err := proof.EncodeProof(p)
	require.NoError(t, err)
	in := &proof.PublicInputs{}
	in.Signal.SetUint64(signal)
	in.Recipient.Set(proof.RecipientIdentifier(recipient))
	in.Amount.Set(amount)
	inputsBlob, err := proof.EncodePublicInputs(in)
	require.NoError(t, err)
	return proofBlob, inputsBlob
}

// Setup is a Groth16 verifying key whose trapdoor is known, so valid proofs
// can be produced for any public input vector without a circuit.
type Setup struct {
	Key *proof.VerifyingKey

	alpha, beta, gamma, delta fr.Element
	ic                        [proof.NumPublicInputs + 1]fr.Element
}

// NewSetup derives a deterministic key from fixed scalars.
func NewSetup() *Setup {
	s := &Setup{}
	s.alpha.SetUint64(11)
	s.beta.SetUint64(13)
	s.gamma.SetUint64(17)
	s.delta.SetUint64(19)
	for i := range s.ic {
		s.ic[i].SetUint64(uint64(23 + 2*i))
	}

	_, _, g1, g2 := bn254.Generators()
	key := &proof.VerifyingKey{IC: make([]bn254.G1Affine, len(s.ic))}
	key.Alpha.ScalarMultiplication(&g1, scalar(&s.alpha))
	key.Beta.ScalarMultiplication(&g2, scalar(&s.beta))
	key.Gamma.ScalarMultiplication(&g2, scalar(&s.gamma))
	key.Delta.ScalarMultiplication(&g2, scalar(&s.delta))
	for i := range s.ic {
		key.IC[i].ScalarMultiplication(&g1, scalar(&s.ic[i]))
	}
	s.Key = key
	return s
}

// Prove returns a proof satisfying the pairing equation for the given inputs.
func (s *Setup) Prove(t testing.TB, signal uint64, recipient common.Address, amount *uint256.Int) (proofBlob, inputsBlob []byte) {
	t.Helper()

	inputs := []*big.Int{
		new(big.Int).SetUint64(signal),
		proof.RecipientIdentifier(recipient).ToBig(),
		amount.ToBig(),
	}
	// vkx = ic0 + sum(x_i * ic_i)
	vkx := s.ic[0]
	for i, x := range inputs {
		var xi, term fr.Element
		xi.SetBigInt(x)
		term.Mul(&xi, &s.ic[i+1])
		vkx.Add(&vkx, &term)
	}

	// r*s = alpha*beta + vkx*gamma + c*delta
	var r, sc, rs, ab, vg, num, dinv, c fr.Element
	r.SetUint64(signal + 101)
	sc.SetUint64(signal + 103)
	rs.Mul(&r, &sc)
	ab.Mul(&s.alpha, &s.beta)
	vg.Mul(&vkx, &s.gamma)
	num.Sub(&rs, &ab)
	num.Sub(&num, &vg)
	dinv.Inverse(&s.delta)
	c.Mul(&num, &dinv)

	_, _, g1, g2 := bn254.Generators()
	var a, cc bn254.G1Affine
	var b bn254.G2Affine
	a.ScalarMultiplication(&g1, scalar(&r))
	b.ScalarMultiplication(&g2, scalar(&sc))
	cc.ScalarMultiplication(&g1, scalar(&c))

	p := &proof.Proof{
		A:  proof.Point{X: fpToU256(a.X.BigInt(new(big.Int))), Y: fpToU256(a.Y.BigInt(new(big.Int)))},
		BX: proof.Point{X: fpToU256(b.X.A0.BigInt(new(big.Int))), Y: fpToU256(b.X.A1.BigInt(new(big.Int)))},
		BY: proof.Point{X: fpToU256(b.Y.A0.BigInt(new(big.Int))), Y: fpToU256(b.Y.A1.BigInt(new(big.Int)))},
		C:  proof.Point{X: fpToU256(cc.X.BigInt(new(big.Int))), Y: fpToU256(cc.Y.BigInt(new(big.Int)))},
	}
	return encode(t, p, signal, recipient, amount)
}

func scalar(e *fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

func fpToU256(b *big.Int) uint256.Int {
	return *uint256.MustFromBig(b)
}
