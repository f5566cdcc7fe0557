package relay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"zkbridge/internal/domain"
)

// SignatureLength is the size of an [R || S || V] secp256k1 signature.
const SignatureLength = crypto.SignatureLength

type transferMessage struct {
	RequestID     uint64
	Amount        *uint256.Int
	Receiver      common.Address
	RemoteAddress []byte
}

// TransferDigest is the hash a trusted signer signs to authorize a bridge
// transfer: keccak256(rlp([requestId, amount, receiver, remoteAddress])).
func TransferDigest(requestID uint64, amount *uint256.Int, receiver common.Address, remote domain.RemoteAddress) (common.Hash, error) {
	if amount == nil {
		amount = new(uint256.Int)
	}
	enc, err := rlp.EncodeToBytes(transferMessage{
		RequestID:     requestID,
		Amount:        amount,
		Receiver:      receiver,
		RemoteAddress: remote,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// RecoverSigner returns the address that produced sig over digest. V may be
// 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, bool) {
	if len(sig) != SignatureLength {
		return common.Address{}, false
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, false
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}
