package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Accepted values for the enumerated bridge settings.
const (
	ReplayMarkThenVerify = "mark-then-verify"
	ReplayVerifyThenMark = "verify-then-mark"

	TransferSwallow = "swallow"
	TransferFail    = "fail"

	VerifierBinding = "binding"
	VerifierGroth16 = "groth16"
)

// Validate reports every missing or malformed setting in a single error.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Server.Port) == "" {
		problems = append(problems, "SERVER_PORT is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		problems = append(problems, "JWT_SECRET is required")
	}

	if !common.IsHexAddress(c.Bridge.Owner) {
		problems = append(problems, "BRIDGE_OWNER must be a hex address")
	}
	if _, _, err := c.Bridge.Bounds(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Bridge.ReplayOrder {
	case ReplayMarkThenVerify, ReplayVerifyThenMark:
	default:
		problems = append(problems, fmt.Sprintf("BRIDGE_REPLAY_ORDER %q is not supported", c.Bridge.ReplayOrder))
	}
	switch c.Bridge.TransferFailurePolicy {
	case TransferSwallow, TransferFail:
	default:
		problems = append(problems, fmt.Sprintf("BRIDGE_TRANSFER_FAILURE_POLICY %q is not supported", c.Bridge.TransferFailurePolicy))
	}
	switch c.Bridge.Verifier {
	case VerifierBinding:
	case VerifierGroth16:
		if strings.TrimSpace(c.Bridge.VerifyingKeyPath) == "" {
			problems = append(problems, "BRIDGE_VERIFYING_KEY is required for the groth16 verifier")
		}
	default:
		problems = append(problems, fmt.Sprintf("BRIDGE_VERIFIER %q is not supported", c.Bridge.Verifier))
	}

	for key, v := range map[string]string{
		"RELAY_OWNER":          c.Relay.Owner,
		"RELAY_TRUSTED_SENDER": c.Relay.TrustedSender,
		"RELAY_TRUSTED_SIGNER": c.Relay.TrustedSigner,
	} {
		if v != "" && !common.IsHexAddress(v) {
			problems = append(problems, key+" must be a hex address")
		}
	}
	if _, _, err := c.RelayBounds(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Bounds parses the ledger's inclusive per-lock amount bounds.
func (b BridgeConfig) Bounds() (*uint256.Int, *uint256.Int, error) {
	return parseBounds("BRIDGE", b.MinAmount, b.MaxAmount)
}

// RelayBounds returns the relay bounds, falling back to the ledger bounds for
// any side left unset.
func (c *Config) RelayBounds() (*uint256.Int, *uint256.Int, error) {
	min, max := c.Relay.MinAmount, c.Relay.MaxAmount
	if min == "" {
		min = c.Bridge.MinAmount
	}
	if max == "" {
		max = c.Bridge.MaxAmount
	}
	return parseBounds("RELAY", min, max)
}

// OwnerAddress returns the configured ledger owner.
func (b BridgeConfig) OwnerAddress() common.Address {
	return common.HexToAddress(b.Owner)
}

func parseBounds(prefix, minStr, maxStr string) (*uint256.Int, *uint256.Int, error) {
	min, err := uint256.FromDecimal(strings.TrimSpace(minStr))
	if err != nil {
		return nil, nil, fmt.Errorf("%s_MIN_AMOUNT %q is not an unsigned integer", prefix, minStr)
	}
	max, err := uint256.FromDecimal(strings.TrimSpace(maxStr))
	if err != nil {
		return nil, nil, fmt.Errorf("%s_MAX_AMOUNT %q is not an unsigned integer", prefix, maxStr)
	}
	if min.Gt(max) {
		return nil, nil, fmt.Errorf("%s_MIN_AMOUNT exceeds %s_MAX_AMOUNT", prefix, prefix)
	}
	return min, max, nil
}
