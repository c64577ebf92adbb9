package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/stream"
)

func newIngestCmd() *cobra.Command {
	var (
		channel string
		from    string
		name    string
		eventID string
	)

	cmd := &cobra.Command{
		Use:   "ingest [content...]",
		Short: "Publish a synthetic inbound event to the intake streams",
		Long: `Publish a support request directly onto the intake streams, as if it
had arrived over one of the channels. Useful for exercising the pipeline
without a mail server or a connected chat client.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			if eventID == "" {
				eventID = uuid.NewString()
			}

			ev := domain.InboundEvent{
				EventID:           eventID,
				Channel:           domain.Channel(channel),
				SenderIdentifier:  from,
				SenderDisplayName: name,
				Content:           strings.Join(args, " "),
				ReceivedAt:        time.Now().UTC(),
			}
			if err := ev.Validate(); err != nil {
				return err
			}

			topics := stream.NewTopics(cfg.Streams.TopicPrefix)
			producer := stream.NewProducer(cfg.Streams.Brokers, topics, log)
			defer producer.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := producer.PublishInbound(ctx, ev); err != nil {
				return fmt.Errorf("publish: %w", err)
			}

			fmt.Printf("published %s to %s\n", ev.EventID, topics.Inbound(ev.Channel))
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "webform", "source channel (email, chat, webform)")
	cmd.Flags().StringVar(&from, "from", "", "sender identifier (required)")
	cmd.Flags().StringVar(&name, "name", "", "sender display name")
	cmd.Flags().StringVar(&eventID, "event-id", "", "explicit event ID (default random)")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
