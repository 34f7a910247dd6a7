package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/token"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key pair on the device",
	Long: `Generate an asymmetric key pair on the device under a label.

A label may exist at most once per key type; generating a duplicate is
an error, never an overwrite.

Supported key types:
  rsa_2048, rsa_4096, ed25519, ed448, secp256r1, secp384r1, secp521r1

Examples:
  tokenpki keygen --label ca-signing --type secp384r1
  tokenpki keygen --label doc-signer --type ed25519`,
	RunE: runKeygen,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List key labels on the device",
	RunE:  runKeys,
}

var deleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Delete a key pair from the device",
	RunE:  runDeleteKey,
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Export the public half of a device key",
	Long: `Export the SubjectPublicKeyInfo of a device key as PEM, along
with its SHA-1 key identifier.

Examples:
  tokenpki pubkey --label ca-signing --type secp384r1 --out ca.pub`,
	RunE: runPubkey,
}

var importKeyCmd = &cobra.Command{
	Use:   "import-key",
	Short: "Import an existing key pair onto the device",
	Long: `Import a key pair from DER files onto the device.

The public key is a DER SubjectPublicKeyInfo; the private key is DER
PKCS#8 (or the raw seed for Edwards keys).

Examples:
  tokenpki import-key --label migrated --type rsa_2048 --pub key.pub.der --priv key.der`,
	RunE: runImportKey,
}

var (
	keyLabel   string
	keyType    string
	pubkeyOut  string
	importPub  string
	importPriv string
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(deleteKeyCmd)
	rootCmd.AddCommand(pubkeyCmd)
	rootCmd.AddCommand(importKeyCmd)

	for _, cmd := range []*cobra.Command{keygenCmd, deleteKeyCmd, pubkeyCmd, importKeyCmd} {
		cmd.Flags().StringVar(&keyLabel, "label", "", "Key label (required)")
		cmd.Flags().StringVar(&keyType, "type", "", "Key type (required)")
		_ = cmd.MarkFlagRequired("label")
		_ = cmd.MarkFlagRequired("type")
	}
	pubkeyCmd.Flags().StringVarP(&pubkeyOut, "out", "o", "", "Output file (default: stdout)")
	importKeyCmd.Flags().StringVar(&importPub, "pub", "", "DER SubjectPublicKeyInfo file (required)")
	importKeyCmd.Flags().StringVar(&importPriv, "priv", "", "DER private key file (required)")
	_ = importKeyCmd.MarkFlagRequired("pub")
	_ = importKeyCmd.MarkFlagRequired("priv")
}

func parseKeyTypeFlag() (token.KeyType, error) {
	kt, err := token.ParseKeyType(keyType)
	if err != nil {
		return "", fmt.Errorf("invalid --type: %w", err)
	}
	return kt, nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		spkiPEM, keyID, err := svc.CreateKeyPair(ctx, keyLabel, kt)
		if err != nil {
			return err
		}
		fmt.Printf("Generated %s key pair %q\n", kt, keyLabel)
		fmt.Printf("Key identifier: %s\n", hex.EncodeToString(keyID))
		fmt.Print(spkiPEM)
		return nil
	})
}

func runKeys(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc token.Service) error {
		labels, err := svc.KeyLabels(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(labels))
		for label := range labels {
			names = append(names, label)
		}
		sort.Strings(names)
		for _, label := range names {
			fmt.Printf("%-32s %s\n", label, labels[label])
		}
		return nil
	})
}

func runDeleteKey(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		if err := svc.DeleteKeyPair(ctx, keyLabel, kt); err != nil {
			return err
		}
		fmt.Printf("Deleted %s key pair %q\n", kt, keyLabel)
		return nil
	})
}

func runPubkey(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		spkiPEM, keyID, err := svc.PublicKeyData(ctx, keyLabel, kt)
		if err != nil {
			return err
		}
		if pubkeyOut != "" {
			if err := os.WriteFile(pubkeyOut, []byte(spkiPEM), 0644); err != nil {
				return err
			}
		} else {
			fmt.Print(spkiPEM)
		}
		fmt.Printf("Key identifier: %s\n", hex.EncodeToString(keyID))
		return nil
	})
}

func runImportKey(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	pubDER, err := os.ReadFile(importPub)
	if err != nil {
		return err
	}
	privDER, err := os.ReadFile(importPriv)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		if err := svc.ImportKeyPair(ctx, keyLabel, kt, pubDER, privDER); err != nil {
			return err
		}
		fmt.Printf("Imported %s key pair %q\n", kt, keyLabel)
		return nil
	})
}
