package main

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"zkbridge/internal/domain"
	"zkbridge/internal/relay"
	"zkbridge/pkg/validator"
)

var (
	signKey       string
	signRequestID uint64
	signAmount    string
	signReceiver  string
	signRemote    string
)

var signTransferCmd = &cobra.Command{
	Use:   "sign-transfer",
	Short: "Sign a bridge transfer as the trusted signer",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(signKey, "0x"))
		if err != nil {
			return errors.New("--key must be a hex secp256k1 private key")
		}
		amount, err := validator.ParseAmount(signAmount)
		if err != nil {
			return err
		}
		if !common.IsHexAddress(signReceiver) {
			return errors.New("--receiver must be a hex address")
		}
		remote, err := domain.ParseRemoteAddress(signRemote)
		if err != nil {
			return errors.New("--remote must be 0x-prefixed hex")
		}

		digest, err := relay.TransferDigest(signRequestID, amount, common.HexToAddress(signReceiver), remote)
		if err != nil {
			return err
		}
		sig, err := crypto.Sign(digest.Bytes(), key)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"signer":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
			"digest":    digest,
			"signature": hexutil.Encode(sig),
		})
	},
}

func init() {
	signTransferCmd.Flags().StringVar(&signKey, "key", "", "signer private key (hex)")
	signTransferCmd.Flags().Uint64Var(&signRequestID, "request-id", 0, "request ID")
	signTransferCmd.Flags().StringVar(&signAmount, "amount", "", "amount in smallest units")
	signTransferCmd.Flags().StringVar(&signReceiver, "receiver", "", "receiver address (0x...)")
	signTransferCmd.Flags().StringVar(&signRemote, "remote", "0x", "remote address (0x...)")
}
