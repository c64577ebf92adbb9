package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
)

func newTicketCmd() *cobra.Command {
	var (
		address string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ticket <id>",
		Short: "Show a ticket's status and transcript from a running gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			base := address
			if base == "" {
				base = fmt.Sprintf("http://127.0.0.1:%d", cfg.Gateway.Port)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(base + "/api/tickets/" + args[0])
			if err != nil {
				return fmt.Errorf("gateway unreachable at %s: %w", base, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			switch resp.StatusCode {
			case http.StatusOK:
			case http.StatusNotFound:
				return fmt.Errorf("ticket %s not found", args[0])
			default:
				return fmt.Errorf("gateway returned %s", resp.Status)
			}

			if asJSON {
				os.Stdout.Write(body)
				fmt.Println()
				return nil
			}

			var snap domain.TicketSnapshot
			if err := json.Unmarshal(body, &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}

			fmt.Printf("Ticket:   %s\n", snap.TicketID)
			fmt.Printf("Status:   %s\n", snap.Status)
			fmt.Printf("Category: %s\n", snap.Category)
			fmt.Printf("Priority: %s\n", snap.Priority)
			fmt.Printf("Channel:  %s\n", snap.SourceChannel)
			fmt.Printf("Created:  %s\n", snap.CreatedAt.Local().Format(time.RFC3339))
			if snap.ResolvedAt != nil {
				fmt.Printf("Resolved: %s\n", snap.ResolvedAt.Local().Format(time.RFC3339))
			}

			if len(snap.Messages) > 0 {
				fmt.Println()
				for _, m := range snap.Messages {
					fmt.Printf("[%s] %s: %s\n",
						m.CreatedAt.Local().Format("Jan 02 15:04"), m.Role, m.Content)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "gateway base URL (default http://127.0.0.1:<port>)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON snapshot")

	return cmd
}
