package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KazimAndrei/HollyProject/internal/services"
)

func newTokenCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a freshly issued App Store Server API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(flags, "holly-token")
			if err != nil {
				return err
			}
			svcs, err := services.CreateServices(cfg, logger, nil)
			if err != nil {
				return err
			}

			token, err := svcs.Issuer.Issue()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token.Value)
			return nil
		},
	}
}
