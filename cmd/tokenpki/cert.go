package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/svlund/tokenpki/internal/token"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Certificate object management",
	Long:  `Import, export and delete certificate objects stored on the device.`,
}

var certImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a PEM certificate onto the device",
	RunE:  runCertImport,
}

var certExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a certificate from the device as PEM",
	RunE:  runCertExport,
}

var certDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a certificate object from the device",
	RunE:  runCertDelete,
}

var (
	certLabel string
	certPEM   string
	certOut   string
)

func init() {
	rootCmd.AddCommand(certCmd)
	certCmd.AddCommand(certImportCmd)
	certCmd.AddCommand(certExportCmd)
	certCmd.AddCommand(certDeleteCmd)

	for _, cmd := range []*cobra.Command{certImportCmd, certExportCmd, certDeleteCmd} {
		cmd.Flags().StringVar(&certLabel, "label", "", "Certificate label (required)")
		_ = cmd.MarkFlagRequired("label")
	}
	certImportCmd.Flags().StringVar(&certPEM, "pem", "", "PEM certificate file (required)")
	_ = certImportCmd.MarkFlagRequired("pem")
	certExportCmd.Flags().StringVarP(&certOut, "out", "o", "", "Output file (default: stdout)")
}

func runCertImport(cmd *cobra.Command, args []string) error {
	pemData, err := os.ReadFile(certPEM)
	if err != nil {
		return err
	}
	return withService(func(ctx context.Context, svc token.Service) error {
		if err := svc.ImportCertificate(ctx, string(pemData), certLabel); err != nil {
			return err
		}
		fmt.Printf("Imported certificate %q\n", certLabel)
		return nil
	})
}

func runCertExport(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc token.Service) error {
		pemData, err := svc.ExportCertificate(ctx, certLabel)
		if err != nil {
			return err
		}
		if certOut != "" {
			return os.WriteFile(certOut, []byte(pemData), 0644)
		}
		fmt.Print(pemData)
		return nil
	})
}

func runCertDelete(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc token.Service) error {
		if err := svc.DeleteCertificate(ctx, certLabel); err != nil {
			return err
		}
		fmt.Printf("Deleted certificate %q\n", certLabel)
		return nil
	})
}
