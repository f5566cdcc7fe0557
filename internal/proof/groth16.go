package proof

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	pkgerrors "zkbridge/pkg/errors"
)

// NumPublicInputs is the width of the public input vector: signal,
// recipient identifier and amount.
const NumPublicInputs = 3

var (
	ErrPairing    = fmt.Errorf("%w: pairing check failed", pkgerrors.ErrInvalidProof)
	ErrBadPoint   = fmt.Errorf("%w: point not on curve or outside subgroup", pkgerrors.ErrInvalidProof)
	ErrInputRange = fmt.Errorf("%w: public input outside scalar field", pkgerrors.ErrInvalidProof)

	errKeyPoint = errors.New("verifying key: invalid point")
)

// VerifyingKey is a Groth16 verifying key over BN254.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	// IC[0] is the constant term, IC[i] pairs with public input i.
	IC []bn254.G1Affine
}

// Groth16Verifier checks the amount binding and then the pairing equation
//
//	e(A, B) = e(alpha, beta) * e(IC0 + sum(x_i * IC_i), gamma) * e(C, delta)
type Groth16Verifier struct {
	key     *VerifyingKey
	binding BindingVerifier
}

// NewGroth16Verifier validates vk and returns a verifier bound to it.
func NewGroth16Verifier(vk *VerifyingKey, bindRecipient bool) (*Groth16Verifier, error) {
	if vk == nil {
		return nil, errors.New("verifying key is nil")
	}
	if len(vk.IC) != NumPublicInputs+1 {
		return nil, fmt.Errorf("verifying key: expected %d IC points, got %d", NumPublicInputs+1, len(vk.IC))
	}
	if !vk.Alpha.IsOnCurve() || !vk.Alpha.IsInSubGroup() {
		return nil, fmt.Errorf("%w: alpha", errKeyPoint)
	}
	for name, p := range map[string]*bn254.G2Affine{"beta": &vk.Beta, "gamma": &vk.Gamma, "delta": &vk.Delta} {
		if !p.IsOnCurve() || !p.IsInSubGroup() {
			return nil, fmt.Errorf("%w: %s", errKeyPoint, name)
		}
	}
	for i := range vk.IC {
		if !vk.IC[i].IsOnCurve() || !vk.IC[i].IsInSubGroup() {
			return nil, fmt.Errorf("%w: IC[%d]", errKeyPoint, i)
		}
	}
	return &Groth16Verifier{key: vk, binding: BindingVerifier{BindRecipient: bindRecipient}}, nil
}

func (v *Groth16Verifier) Verify(proofBlob, inputsBlob []byte, amount *uint256.Int, recipient common.Address) error {
	p, in, err := decodeBundle(proofBlob, inputsBlob)
	if err != nil {
		return err
	}
	if err := v.binding.checkBinding(in, amount, recipient); err != nil {
		return err
	}

	a, err := toG1(p.A)
	if err != nil {
		return err
	}
	b, err := toG2(p.BX, p.BY)
	if err != nil {
		return err
	}
	c, err := toG1(p.C)
	if err != nil {
		return err
	}

	vkx, err := v.linearCombination([]*uint256.Int{&in.Signal, &in.Recipient, &in.Amount})
	if err != nil {
		return err
	}

	var negA bn254.G1Affine
	negA.Neg(&a)
	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, v.key.Alpha, vkx, c},
		[]bn254.G2Affine{b, v.key.Beta, v.key.Gamma, v.key.Delta},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPairing, err)
	}
	if !ok {
		return ErrPairing
	}
	return nil
}

func (v *Groth16Verifier) linearCombination(inputs []*uint256.Int) (bn254.G1Affine, error) {
	acc := v.key.IC[0]
	modulus := fr.Modulus()
	for i, x := range inputs {
		xb := x.ToBig()
		if xb.Cmp(modulus) >= 0 {
			return bn254.G1Affine{}, ErrInputRange
		}
		var term bn254.G1Affine
		term.ScalarMultiplication(&v.key.IC[i+1], xb)
		acc.Add(&acc, &term)
	}
	return acc, nil
}

func toFp(x *uint256.Int) (fp.Element, error) {
	var e fp.Element
	xb := x.ToBig()
	if xb.Cmp(fp.Modulus()) >= 0 {
		return e, ErrBadPoint
	}
	e.SetBigInt(xb)
	return e, nil
}

func toG1(pt Point) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	var err error
	if out.X, err = toFp(&pt.X); err != nil {
		return out, err
	}
	if out.Y, err = toFp(&pt.Y); err != nil {
		return out, err
	}
	if out.IsInfinity() || !out.IsOnCurve() || !out.IsInSubGroup() {
		return out, ErrBadPoint
	}
	return out, nil
}

func toG2(x, y Point) (bn254.G2Affine, error) {
	var out bn254.G2Affine
	var err error
	if out.X.A0, err = toFp(&x.X); err != nil {
		return out, err
	}
	if out.X.A1, err = toFp(&x.Y); err != nil {
		return out, err
	}
	if out.Y.A0, err = toFp(&y.X); err != nil {
		return out, err
	}
	if out.Y.A1, err = toFp(&y.Y); err != nil {
		return out, err
	}
	if out.IsInfinity() || !out.IsOnCurve() || !out.IsInSubGroup() {
		return out, ErrBadPoint
	}
	return out, nil
}

// snarkjs verification_key.json layout; coordinates are decimal strings and
// points are projective with z = 1.
type verifyingKeyJSON struct {
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
	NPublic  int        `json:"nPublic"`
	Alpha    []string   `json:"vk_alpha_1"`
	Beta     [][]string `json:"vk_beta_2"`
	Gamma    [][]string `json:"vk_gamma_2"`
	Delta    [][]string `json:"vk_delta_2"`
	IC       [][]string `json:"IC"`
}

// LoadVerifyingKey reads a snarkjs-format verifying key from path.
func LoadVerifyingKey(path string) (*VerifyingKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	var vk VerifyingKey
	if err := json.Unmarshal(data, &vk); err != nil {
		return nil, err
	}
	return &vk, nil
}

func (vk *VerifyingKey) UnmarshalJSON(data []byte) error {
	var raw verifyingKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode verifying key: %w", err)
	}
	if raw.Protocol != "" && raw.Protocol != "groth16" {
		return fmt.Errorf("verifying key: unsupported protocol %q", raw.Protocol)
	}
	if raw.Curve != "" && raw.Curve != "bn128" && raw.Curve != "bn254" {
		return fmt.Errorf("verifying key: unsupported curve %q", raw.Curve)
	}
	if raw.NPublic != 0 && raw.NPublic != NumPublicInputs {
		return fmt.Errorf("verifying key: expected %d public inputs, got %d", NumPublicInputs, raw.NPublic)
	}

	var out VerifyingKey
	var err error
	if out.Alpha, err = parseG1(raw.Alpha); err != nil {
		return fmt.Errorf("vk_alpha_1: %w", err)
	}
	if out.Beta, err = parseG2(raw.Beta); err != nil {
		return fmt.Errorf("vk_beta_2: %w", err)
	}
	if out.Gamma, err = parseG2(raw.Gamma); err != nil {
		return fmt.Errorf("vk_gamma_2: %w", err)
	}
	if out.Delta, err = parseG2(raw.Delta); err != nil {
		return fmt.Errorf("vk_delta_2: %w", err)
	}
	out.IC = make([]bn254.G1Affine, len(raw.IC))
	for i, p := range raw.IC {
		if out.IC[i], err = parseG1(p); err != nil {
			return fmt.Errorf("IC[%d]: %w", i, err)
		}
	}
	*vk = out
	return nil
}

func (vk *VerifyingKey) MarshalJSON() ([]byte, error) {
	ic := make([][]string, len(vk.IC))
	for i := range vk.IC {
		ic[i] = formatG1(&vk.IC[i])
	}
	return json.Marshal(verifyingKeyJSON{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  len(vk.IC) - 1,
		Alpha:    formatG1(&vk.Alpha),
		Beta:     formatG2(&vk.Beta),
		Gamma:    formatG2(&vk.Gamma),
		Delta:    formatG2(&vk.Delta),
		IC:       ic,
	})
}

func parseFp(s string) (fp.Element, error) {
	var e fp.Element
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(fp.Modulus()) >= 0 {
		return e, fmt.Errorf("coordinate %q out of range", s)
	}
	e.SetBigInt(v)
	return e, nil
}

func parseG1(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) != 2 && !(len(coords) == 3 && coords[2] == "1") {
		return p, errors.New("expected affine [x, y, 1]")
	}
	var err error
	if p.X, err = parseFp(coords[0]); err != nil {
		return p, err
	}
	if p.Y, err = parseFp(coords[1]); err != nil {
		return p, err
	}
	return p, nil
}

func parseG2(coords [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(coords) == 3 && (len(coords[2]) != 2 || coords[2][0] != "1" || coords[2][1] != "0") {
		return p, errors.New("expected affine z = [1, 0]")
	}
	if len(coords) < 2 || len(coords) > 3 || len(coords[0]) != 2 || len(coords[1]) != 2 {
		return p, errors.New("expected [[x0, x1], [y0, y1], [1, 0]]")
	}
	var err error
	if p.X.A0, err = parseFp(coords[0][0]); err != nil {
		return p, err
	}
	if p.X.A1, err = parseFp(coords[0][1]); err != nil {
		return p, err
	}
	if p.Y.A0, err = parseFp(coords[1][0]); err != nil {
		return p, err
	}
	if p.Y.A1, err = parseFp(coords[1][1]); err != nil {
		return p, err
	}
	return p, nil
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}

func formatG1(p *bn254.G1Affine) []string {
	return []string{fpString(&p.X), fpString(&p.Y), "1"}
}

func formatG2(p *bn254.G2Affine) [][]string {
	return [][]string{
		{fpString(&p.X.A0), fpString(&p.X.A1)},
		{fpString(&p.Y.A0), fpString(&p.Y.A1)},
		{"1", "0"},
	}
}
