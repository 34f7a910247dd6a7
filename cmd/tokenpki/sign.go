package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/token"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a file with a device key",
	Long: `Sign the contents of a file with a device-resident key.

RSA keys hash inside the device (SHA-256 for rsa_2048, SHA-512 for
rsa_4096); ECDSA keys sign the curve-matched digest and emit a DER
signature; Edwards keys sign the raw message.

Examples:
  tokenpki sign --label doc-signer --type ed25519 --in report.pdf --out report.sig
  tokenpki sign --label ca-signing --type secp384r1 --in data.bin --out data.sig --check`,
	RunE: runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signature with a device key",
	RunE:  runVerify,
}

var (
	signIn    string
	signOut   string
	signCheck bool
	verifySig string
)

func init() {
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)

	for _, cmd := range []*cobra.Command{signCmd, verifyCmd} {
		cmd.Flags().StringVar(&keyLabel, "label", "", "Key label (required)")
		cmd.Flags().StringVar(&keyType, "type", "", "Key type (required)")
		cmd.Flags().StringVar(&signIn, "in", "", "Input file (required)")
		_ = cmd.MarkFlagRequired("label")
		_ = cmd.MarkFlagRequired("type")
		_ = cmd.MarkFlagRequired("in")
	}
	signCmd.Flags().StringVarP(&signOut, "out", "o", "", "Signature output file (required)")
	signCmd.Flags().BoolVar(&signCheck, "check", false, "Verify the signature on-device after signing")
	_ = signCmd.MarkFlagRequired("out")

	verifyCmd.Flags().StringVar(&verifySig, "sig", "", "Signature file (required)")
	_ = verifyCmd.MarkFlagRequired("sig")
}

func runSign(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(signIn)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		sig, err := svc.Sign(ctx, keyLabel, data, kt, signCheck)
		if err != nil {
			return err
		}
		if err := os.WriteFile(signOut, sig, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d-byte signature to %s\n", len(sig), signOut)
		return nil
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(signIn)
	if err != nil {
		return err
	}
	sig, err := os.ReadFile(verifySig)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		ok, err := svc.Verify(ctx, keyLabel, data, sig, kt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature verification failed")
		}
		fmt.Println("Signature OK")
		return nil
	})
}
