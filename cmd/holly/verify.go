package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/models"
	"github.com/KazimAndrei/HollyProject/internal/services"
)

const exitClientError = 2

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	var req models.VerifyRequest

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one subscription and print the result",
		Long: `Runs a single verification with the configured App Store backend and prints the JSON result.
Exits with status 2 when the identifiers are missing or cannot be resolved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, "holly-verify")
			if err != nil {
				return err
			}
			svcs, err := services.CreateServices(cfg, logger, nil)
			if err != nil {
				return err
			}

			verifier := appstore.NewVerifier(svcs.AppStore, svcs.Decoder, appstore.VerifierConfig{
				Deadline: cfg.VerifyDeadline,
				Logger:   logger,
			})
			outcome := verifier.Verify(cmd.Context(), req)

			out, err := json.MarshalIndent(outcome.Result(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if failed, ok := outcome.(appstore.Failed); ok && failed.Reason.ClientError() {
				return &exitError{code: exitClientError, err: failed}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.OriginalTransactionID, "original-transaction-id", "", "canonical (original) transaction id")
	cmd.Flags().StringVar(&req.TransactionID, "transaction-id", "", "secondary transaction id, resolved through the API")
	return cmd
}
