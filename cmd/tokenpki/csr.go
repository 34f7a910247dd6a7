package main

import (
	"context"
	"crypto/x509/pkix"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/token"
	"github.com/svlund/tokenpki/internal/x509util"
)

var csrCmd = &cobra.Command{
	Use:   "csr",
	Short: "Build a certification request signed by the device",
	Long: `Build a PKCS#10 certification request for a device key.

The public key is fetched from the device and the request is signed
on-device. With --ca the request carries critical Basic Constraints
(CA=TRUE) and Key Usage (digitalSignature, keyCertSign, cRLSign)
extension-request attributes.

Examples:
  tokenpki csr --label ca-signing --type secp384r1 --cn "Example Root CA" --org Example --ca --out ca.csr
  tokenpki csr --label tls-key --type rsa_2048 --cn server.example.com --out server.csr`,
	RunE: runCSR,
}

var (
	csrCN      string
	csrOrg     string
	csrOrgUnit string
	csrCountry string
	csrCA      bool
	csrOut     string
)

func init() {
	rootCmd.AddCommand(csrCmd)

	flags := csrCmd.Flags()
	flags.StringVar(&keyLabel, "label", "", "Key label (required)")
	flags.StringVar(&keyType, "type", "", "Key type (required)")
	flags.StringVar(&csrCN, "cn", "", "Subject common name (required)")
	flags.StringVar(&csrOrg, "org", "", "Subject organization")
	flags.StringVar(&csrOrgUnit, "ou", "", "Subject organizational unit")
	flags.StringVar(&csrCountry, "country", "", "Subject country")
	flags.BoolVar(&csrCA, "ca", false, "Request CA basic constraints and key usage")
	flags.StringVarP(&csrOut, "out", "o", "", "Output file (default: stdout)")
	_ = csrCmd.MarkFlagRequired("label")
	_ = csrCmd.MarkFlagRequired("type")
	_ = csrCmd.MarkFlagRequired("cn")
}

func runCSR(cmd *cobra.Command, args []string) error {
	kt, err := parseKeyTypeFlag()
	if err != nil {
		return err
	}

	subject := pkix.Name{CommonName: csrCN}
	if csrOrg != "" {
		subject.Organization = []string{csrOrg}
	}
	if csrOrgUnit != "" {
		subject.OrganizationalUnit = []string{csrOrgUnit}
	}
	if csrCountry != "" {
		subject.Country = []string{csrCountry}
	}

	return withService(func(ctx context.Context, svc token.Service) error {
		spkiPEM, _, err := svc.PublicKeyData(ctx, keyLabel, kt)
		if err != nil {
			return err
		}
		spkiDER, err := token.DecodePublicKeyPEM(spkiPEM)
		if err != nil {
			return err
		}

		builder := x509util.NewRequestBuilder(subject, spkiDER)
		if csrCA {
			if err := builder.AddCAExtensions(); err != nil {
				return err
			}
		}

		der, err := builder.Build(ctx, svc, keyLabel, kt)
		if err != nil {
			return err
		}
		pemBytes := x509util.EncodeRequestPEM(der)

		if csrOut != "" {
			return os.WriteFile(csrOut, pemBytes, 0644)
		}
		fmt.Print(string(pemBytes))
		return nil
	})
}
