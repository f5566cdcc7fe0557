package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// RemoteAddress identifies an account on the remote chain. Its encoding is
// owned by the remote chain, so it is kept as opaque bytes.
type RemoteAddress []byte

// ParseRemoteAddress decodes a 0x-prefixed hex remote address.
func ParseRemoteAddress(s string) (RemoteAddress, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	return RemoteAddress(b), nil
}

func (a RemoteAddress) String() string {
	return hexutil.Encode(a)
}

func (a RemoteAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *RemoteAddress) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return err
	}
	*a = b
	return nil
}

// EventType tags outbound events for indexers.
type EventType string

const (
	EventLock     EventType = "lock"
	EventRelease  EventType = "release"
	EventTransfer EventType = "transfer"
)

// Event is emitted after a successful state transition. Delivery is best effort.
type Event struct {
	ID            uuid.UUID
	Type          EventType
	RequestID     uint64
	Amount        *uint256.Int
	RemoteAddress RemoteAddress
	Recipient     *common.Address
	Receiver      *common.Address
	EmittedAt     time.Time
}

type eventJSON struct {
	ID            uuid.UUID       `json:"id"`
	Type          EventType       `json:"type"`
	RequestID     uint64          `json:"request_id"`
	Amount        string          `json:"amount"`
	RemoteAddress RemoteAddress   `json:"remote_address,omitempty"`
	Recipient     *common.Address `json:"recipient,omitempty"`
	Receiver      *common.Address `json:"receiver,omitempty"`
	EmittedAt     time.Time       `json:"emitted_at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.Dec()
	}
	return json.Marshal(eventJSON{
		ID:            e.ID,
		Type:          e.Type,
		RequestID:     e.RequestID,
		Amount:        amount,
		RemoteAddress: e.RemoteAddress,
		Recipient:     e.Recipient,
		Receiver:      e.Receiver,
		EmittedAt:     e.EmittedAt,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := uint256.FromDecimal(raw.Amount)
	if err != nil {
		return err
	}
	*e = Event{
		ID:            raw.ID,
		Type:          raw.Type,
		RequestID:     raw.RequestID,
		Amount:        amount,
		RemoteAddress: raw.RemoteAddress,
		Recipient:     raw.Recipient,
		Receiver:      raw.Receiver,
		EmittedAt:     raw.EmittedAt,
	}
	return nil
}

// PayoutSource names the operation that moved value out of custody.
type PayoutSource string

const (
	PayoutRelease        PayoutSource = "release"
	PayoutWithdraw       PayoutSource = "withdraw"
	PayoutBridgeTransfer PayoutSource = "bridge-transfer"
)

// Payout is an outbound value transfer to a local address.
type Payout struct {
	ID        uuid.UUID
	RequestID uint64
	Recipient common.Address
	Amount    *uint256.Int
	Source    PayoutSource
	CreatedAt time.Time
}
