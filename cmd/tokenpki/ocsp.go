package main

import (
	"context"
	"crypto/rand"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/ocsp"
	"github.com/svlund/tokenpki/internal/token"
)

var ocspCmd = &cobra.Command{
	Use:   "ocsp",
	Short: "OCSP operations (RFC 6960)",
	Long:  `Build OCSP requests and responses, and extract responder data from certificates.`,
}

var ocspDataCmd = &cobra.Command{
	Use:   "data",
	Short: "Extract OCSP request data from a certificate",
	Long: `Extract the issuer name hash, issuer key hash, serial number and
responder URL from a PEM certificate.

The certificate must carry exactly one Authority Key Identifier and
exactly one Authority Information Access extension with an OCSP method.

Examples:
  tokenpki ocsp data --cert server.crt`,
	RunE: runOCSPData,
}

var ocspRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Build a DER-encoded OCSP request",
	Long: `Build an OCSP request for one or more certificates.

Each --cert contributes one entry; the CertID inputs are extracted from
the certificate itself. With --sign-label the request is signed by the
device and --requestor-cn becomes mandatory.

Examples:
  tokenpki ocsp request --cert server.crt --nonce 16 --out req.der
  tokenpki ocsp request --cert a.crt --cert b.crt --sign-label req-key --sign-type ed25519 --requestor-cn "Monitoring" --out req.der`,
	RunE: runOCSPRequest,
}

var ocspResponseCmd = &cobra.Command{
	Use:   "response",
	Short: "Build and sign a DER-encoded OCSP response",
	Long: `Build an OCSP response signed with a device key.

A non-successful --response-status produces a bare response with no
body. For a successful response each --cert gets the status given by
--status, valid for --validity from now.

Examples:
  tokenpki ocsp response --cert server.crt --status good --key-label ocsp-signer --key-type secp256r1 --responder-cn "Example OCSP" --out resp.der
  tokenpki ocsp response --response-status 3 --key-label ocsp-signer --key-type secp256r1 --out resp.der`,
	RunE: runOCSPResponse,
}

var (
	ocspCerts          []string
	ocspOut            string
	ocspNonceSize      int
	ocspSignLabel      string
	ocspSignType       string
	ocspRequestorCN    string
	ocspStatus         string
	ocspReason         int
	ocspResponseStatus int
	ocspKeyLabel       string
	ocspKeyType        string
	ocspResponderCN    string
	ocspValidity       time.Duration
)

func init() {
	rootCmd.AddCommand(ocspCmd)
	ocspCmd.AddCommand(ocspDataCmd)
	ocspCmd.AddCommand(ocspRequestCmd)
	ocspCmd.AddCommand(ocspResponseCmd)

	ocspDataCmd.Flags().StringSliceVar(&ocspCerts, "cert", nil, "PEM certificate file (required)")
	_ = ocspDataCmd.MarkFlagRequired("cert")

	reqFlags := ocspRequestCmd.Flags()
	reqFlags.StringSliceVar(&ocspCerts, "cert", nil, "PEM certificate file (repeatable, required)")
	reqFlags.StringVarP(&ocspOut, "out", "o", "", "Output file (required)")
	reqFlags.IntVar(&ocspNonceSize, "nonce", 0, "Add a random nonce of this many bytes (max 32)")
	reqFlags.StringVar(&ocspSignLabel, "sign-label", "", "Device key label that signs the request")
	reqFlags.StringVar(&ocspSignType, "sign-type", "", "Key type of the signing key")
	reqFlags.StringVar(&ocspRequestorCN, "requestor-cn", "", "Requestor common name (required when signing)")
	_ = ocspRequestCmd.MarkFlagRequired("cert")
	_ = ocspRequestCmd.MarkFlagRequired("out")

	respFlags := ocspResponseCmd.Flags()
	respFlags.StringSliceVar(&ocspCerts, "cert", nil, "PEM certificate file (repeatable)")
	respFlags.StringVarP(&ocspOut, "out", "o", "", "Output file (required)")
	respFlags.StringVar(&ocspStatus, "status", "good", "Certificate status: good, revoked, unknown")
	respFlags.IntVar(&ocspReason, "reason", 0, "Revocation reason code (with --status revoked)")
	respFlags.IntVar(&ocspResponseStatus, "response-status", 0, "Response status code (0=successful)")
	respFlags.StringVar(&ocspKeyLabel, "key-label", "", "Device key label that signs the response (required)")
	respFlags.StringVar(&ocspKeyType, "key-type", "", "Key type of the responder key (required)")
	respFlags.StringVar(&ocspResponderCN, "responder-cn", "", "Responder common name")
	respFlags.DurationVar(&ocspValidity, "validity", 24*time.Hour, "nextUpdate offset from now")
	_ = ocspResponseCmd.MarkFlagRequired("out")
	_ = ocspResponseCmd.MarkFlagRequired("key-label")
	_ = ocspResponseCmd.MarkFlagRequired("key-type")
}

// certEntries extracts a request entry from every --cert file.
func certEntries() ([]ocsp.CertEntry, error) {
	entries := make([]ocsp.CertEntry, 0, len(ocspCerts))
	for _, path := range ocspCerts {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data, err := ocsp.CertificateData(pemData)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		entries = append(entries, data.Entry())
	}
	return entries, nil
}

func runOCSPData(cmd *cobra.Command, args []string) error {
	for _, path := range ocspCerts {
		pemData, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		data, err := ocsp.CertificateData(pemData)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("Certificate:      %s\n", path)
		fmt.Printf("Issuer name hash: %s\n", hex.EncodeToString(data.IssuerNameHash))
		fmt.Printf("Issuer key hash:  %s\n", hex.EncodeToString(data.IssuerKeyHash))
		fmt.Printf("Serial:           %s\n", data.Serial)
		fmt.Printf("Responder URL:    %s\n", data.ResponderURL)
	}
	return nil
}

func runOCSPRequest(cmd *cobra.Command, args []string) error {
	entries, err := certEntries()
	if err != nil {
		return err
	}

	opts := ocsp.RequestOptions{}
	if ocspNonceSize > 0 {
		nonce := make([]byte, ocspNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return err
		}
		ext, err := ocsp.NonceExtension(nonce)
		if err != nil {
			return err
		}
		opts.Extensions = append(opts.Extensions, ext)
	}
	if ocspRequestorCN != "" {
		opts.RequestorName = &pkix.Name{CommonName: ocspRequestorCN}
	}
	if ocspSignLabel != "" {
		kt, err := token.ParseKeyType(ocspSignType)
		if err != nil {
			return fmt.Errorf("invalid --sign-type: %w", err)
		}
		opts.KeyLabel = ocspSignLabel
		opts.KeyType = kt
	}

	return withService(func(ctx context.Context, svc token.Service) error {
		der, err := ocsp.CreateRequest(ctx, svc, entries, opts)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ocspOut, der, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d-byte OCSP request to %s\n", len(der), ocspOut)
		return nil
	})
}

func runOCSPResponse(cmd *cobra.Command, args []string) error {
	kt, err := token.ParseKeyType(ocspKeyType)
	if err != nil {
		return fmt.Errorf("invalid --key-type: %w", err)
	}
	status := ocsp.ResponseStatus(ocspResponseStatus)

	return withService(func(ctx context.Context, svc token.Service) error {
		builder := ocsp.NewResponseBuilder(svc, ocspKeyLabel, kt)

		if status == ocsp.StatusSuccessful {
			if ocspResponderCN == "" {
				return fmt.Errorf("--responder-cn is required for a successful response")
			}
			if err := builder.SetResponderName(pkix.Name{CommonName: ocspResponderCN}); err != nil {
				return err
			}
			entries, err := certEntries()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			next := now.Add(ocspValidity)
			for _, entry := range entries {
				switch ocspStatus {
				case "good":
					builder.AddGood(entry, now, next)
				case "revoked":
					builder.AddRevoked(entry, now, next, now, ocsp.RevocationReason(ocspReason))
				case "unknown":
					builder.AddUnknown(entry, now, next)
				default:
					return fmt.Errorf("invalid --status: %q", ocspStatus)
				}
			}
		}

		der, err := builder.Build(ctx, status)
		if err != nil {
			return err
		}
		if err := os.WriteFile(ocspOut, der, 0644); err != nil {
			return err
		}
		fmt.Printf("Wrote %d-byte OCSP response (%s) to %s\n", len(der), status, ocspOut)
		return nil
	})
}
