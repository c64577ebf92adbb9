package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/channel/email"
	"github.com/soyeahso/deskd/internal/config"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize channel credentials",
	}

	cmd.AddCommand(newAuthGmailCmd())
	return cmd
}

func newAuthGmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail",
		Short: "Run the Gmail OAuth consent flow and cache the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			var gc config.GmailConfig
			if cfg.Channels.Email != nil {
				gc = cfg.Channels.Email.Gmail
			}
			gmailPaths(&gc)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return email.Authorize(ctx, gc.CredentialsFile, gc.TokenFile)
		},
	}
}
