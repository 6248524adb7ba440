package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/qrcare/internal/service/qr"
	"github.com/jwalitptl/qrcare/pkg/metrics"
)

func qrService(cmd *cobra.Command) (*qr.Service, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if db != nil {
			db.Close()
		}
	}
	return qr.NewService(store.QR, metrics.NewNop()), closeFn, nil
}

func qrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Seed QR tokens",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <token>...",
		Short: "Seed specific tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := qrService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, id := range args {
				created, err := svc.Seed(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				state := "exists"
				if created {
					state = "created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, state)
			}
			return nil
		},
	})

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Seed the next sequential tokens for a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			count, _ := cmd.Flags().GetInt("count")

			svc, closeFn, err := qrService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ids, err := svc.Generate(cmd.Context(), prefix, count)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	generate.Flags().String("prefix", qr.DefaultPrefix, "Token prefix")
	generate.Flags().Int("count", 10, "Number of tokens to seed")
	cmd.AddCommand(generate)

	return cmd
}
