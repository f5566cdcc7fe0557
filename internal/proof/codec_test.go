package proof

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "zkbridge/pkg/errors"
)

func sampleProof() *Proof {
	p := &Proof{}
	for i, pt := range []*Point{&p.A, &p.BX, &p.BY, &p.C} {
		pt.X.SetUint64(uint64(2*i + 1))
		pt.Y.SetUint64(uint64(2*i + 2))
	}
	p.C.Y.SetAllOne()
	return p
}

func TestDecodeProof_RoundTrip(t *testing.T) {
	p := sampleProof()
	blob, err := EncodeProof(p)
	require.NoError(t, err)

	got, err := DecodeProof(blob)
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}

func TestDecodeProof_NestingLayout(t *testing.T) {
	blob, err := EncodeProof(sampleProof())
	require.NoError(t, err)

	// Each group is a two-scalar list whose third element is the next group.
	var generic []interface{}
	require.NoError(t, rlp.DecodeBytes(blob, &generic))
	require.Len(t, generic, 3)
	g2, ok := generic[2].([]interface{})
	require.True(t, ok)
	require.Len(t, g2, 3)
	g3, ok := g2[2].([]interface{})
	require.True(t, ok)
	require.Len(t, g3, 3)
	g4, ok := g3[2].([]interface{})
	require.True(t, ok)
	assert.Len(t, g4, 2)
}

func TestDecodeProof_Strict(t *testing.T) {
	one := []byte{1}
	cases := map[string]interface{}{
		"three groups":       []interface{}{one, one, []interface{}{one, one, []interface{}{one, one}}},
		"five groups":        []interface{}{one, one, []interface{}{one, one, []interface{}{one, one, []interface{}{one, one, []interface{}{one, one}}}}},
		"extra scalar":       []interface{}{one, one, one, []interface{}{one, one, []interface{}{one, one, []interface{}{one, one}}}},
		"oversized scalar":   []interface{}{make([]byte, 33), one, []interface{}{one, one, []interface{}{one, one, []interface{}{one, one}}}},
		"non-canonical zero": []interface{}{[]byte{0, 1}, one, []interface{}{one, one, []interface{}{one, one, []interface{}{one, one}}}},
		"flat list":          []interface{}{one, one, one, one, one, one, one, one},
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			blob, err := rlp.EncodeToBytes(value)
			require.NoError(t, err)
			_, err = DecodeProof(blob)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))
			assert.True(t, errors.Is(err, pkgerrors.ErrInvalidProof))
		})
	}

	t.Run("trailing bytes", func(t *testing.T) {
		blob, err := EncodeProof(sampleProof())
		require.NoError(t, err)
		_, err = DecodeProof(append(blob, 0x01))
		assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeProof(nil)
		assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))
	})
}

func TestDecodePublicInputs(t *testing.T) {
	in := &PublicInputs{}
	in.Signal.SetUint64(42)
	in.Recipient.SetUint64(7)
	in.Amount.SetUint64(5)

	blob, err := EncodePublicInputs(in)
	require.NoError(t, err)
	got, err := DecodePublicInputs(blob)
	require.NoError(t, err)
	assert.Equal(t, *in, *got)

	flat, err := rlp.EncodeToBytes([]interface{}{uint64(42), uint64(7), uint64(5)})
	require.NoError(t, err)
	_, err = DecodePublicInputs(flat)
	assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))

	three, err := rlp.EncodeToBytes([]interface{}{uint64(42), []interface{}{uint64(7), uint64(5), uint64(1)}})
	require.NoError(t, err)
	_, err = DecodePublicInputs(three)
	assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))
}

func TestRecipientIdentifier(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000102")
	assert.Equal(t, uint64(0x0102), RecipientIdentifier(addr).Uint64())
}

func TestHash(t *testing.T) {
	a := Hash([]byte("proof-a"))
	assert.Equal(t, a, Hash([]byte("proof-a")))
	assert.NotEqual(t, a, Hash([]byte("proof-b")))
	// keccak256 of the empty string
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", Hash(nil).Hex())
}

func TestBindingVerifier(t *testing.T) {
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	proofBlob, err := EncodeProof(sampleProof())
	require.NoError(t, err)
	in := &PublicInputs{}
	in.Signal.SetUint64(1)
	in.Recipient.Set(RecipientIdentifier(recipient))
	in.Amount.SetUint64(5)
	inputsBlob, err := EncodePublicInputs(in)
	require.NoError(t, err)

	v := BindingVerifier{}
	assert.NoError(t, v.Verify(proofBlob, inputsBlob, uint256.NewInt(5), recipient))
	assert.NoError(t, v.Verify(proofBlob, inputsBlob, uint256.NewInt(5), other), "recipient is not bound by default")

	err = v.Verify(proofBlob, inputsBlob, uint256.NewInt(6), recipient)
	assert.True(t, errors.Is(err, ErrAmountBinding))
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidProof))

	err = v.Verify(proofBlob, inputsBlob, nil, recipient)
	assert.True(t, errors.Is(err, ErrAmountBinding))

	strict := BindingVerifier{BindRecipient: true}
	assert.NoError(t, strict.Verify(proofBlob, inputsBlob, uint256.NewInt(5), recipient))
	err = strict.Verify(proofBlob, inputsBlob, uint256.NewInt(5), other)
	assert.True(t, errors.Is(err, ErrRecipientBinding))

	err = v.Verify([]byte{0xc0}, inputsBlob, uint256.NewInt(5), recipient)
	assert.True(t, errors.Is(err, pkgerrors.ErrMalformedProof))
}
