package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show deskd status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("deskd %s (commit %s)\n\n", version.Version, version.Commit)

			// Show paths
			fmt.Printf("Config:  %s\n", paths.Config)
			fmt.Printf("Data:    %s\n", paths.Data)
			fmt.Printf("Logs:    %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:  error loading: %v\n", err)
				return nil
			}

			// Gateway config
			fmt.Printf("Gateway: port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			// Streams config
			fmt.Printf("Streams: brokers=%s prefix=%s\n",
				strings.Join(cfg.Streams.Brokers, ","), cfg.Streams.TopicPrefix)

			storePath := cfg.Store.Path
			if storePath == "" {
				storePath = filepath.Join(paths.Data, "deskd.db")
			}
			fmt.Printf("Store:   %s\n", storePath)

			fmt.Printf("Pipeline: workers=%d window=%dh retries=%d\n",
				cfg.Pipeline.Workers, cfg.Pipeline.WindowHours, cfg.Pipeline.MaxRetries)

			// Responder
			if cfg.Responder.Provider != "" {
				line := fmt.Sprintf("Responder: %s", cfg.Responder.Provider)
				if cfg.Responder.Model != "" {
					line += " model=" + cfg.Responder.Model
				}
				if n := len(cfg.Responder.Fallbacks); n > 0 {
					line += fmt.Sprintf(" fallbacks=%d", n)
				}
				fmt.Println(line)
			} else {
				fmt.Println("Responder: (not configured)")
			}

			// Channels
			if ec := cfg.Channels.Email; ec != nil && ec.Mode != "" && ec.Mode != "off" {
				fmt.Printf("Email:   mode=%s poll=%ds\n", ec.Mode, ec.PollSeconds)
			} else {
				fmt.Println("Email:   (not configured)")
			}

			// Notifications
			if irc := cfg.Notify.IRC; irc != nil {
				fmt.Printf("Notify:  irc server=%s nick=%s channel=%s tls=%v\n",
					irc.Server, irc.Nick, irc.Channel, irc.UseTLS)
			} else {
				fmt.Println("Notify:  (not configured)")
			}

			// Validation
			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
