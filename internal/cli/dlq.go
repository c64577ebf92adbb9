package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/domain"
	"github.com/soyeahso/deskd/internal/stream"
)

func newDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered events",
	}

	cmd.AddCommand(newDLQListCmd())
	cmd.AddCommand(newDLQReplayCmd())
	return cmd
}

// scanStep bounds each read: the dead-letter topic has no end-of-topic
// marker, so a quiet topic for one full step means the scan caught up.
const scanStep = 3 * time.Second

// scanDeadLetters reads the dead-letter topic from the start, invoking
// fn per entry until fn returns false or the topic runs dry.
func scanDeadLetters(ctx context.Context, cfg config.Config, fn func(domain.DeadLetter) bool) error {
	topics := stream.NewTopics(cfg.Streams.TopicPrefix)
	sc := stream.NewScanner(cfg.Streams.Brokers, topics.DeadLetters())
	defer sc.Close()

	for {
		stepCtx, cancel := context.WithTimeout(ctx, scanStep)
		msg, err := sc.Next(stepCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		dl, err := stream.DecodeDeadLetter(msg)
		if err != nil {
			continue
		}
		if !fn(dl) {
			return nil
		}
	}
}

func newDLQListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			count := 0
			err = scanDeadLetters(ctx, cfg, func(dl domain.DeadLetter) bool {
				fmt.Printf("%s  channel=%s from=%s attempts=%d kind=%s failed=%s\n    %s\n",
					dl.Event.EventID, dl.Event.Channel, dl.Event.SenderIdentifier,
					dl.Attempts, dl.ErrorKind,
					dl.FailedAt.Local().Format(time.RFC3339), dl.Reason)
				count++
				return limit <= 0 || count < limit
			})
			if err != nil {
				return err
			}
			if count == 0 {
				fmt.Println("dead-letter queue is empty")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many entries (0 = all)")
	return cmd
}

func newDLQReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Re-queue a dead-lettered event for processing",
		Long: `Find a dead-lettered event by ID and publish it back onto the unified
incoming topic. The event keeps its original ID, so a replay that was
already processed deduplicates instead of double-applying.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				cfg = config.Defaults()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var found *domain.DeadLetter
			err = scanDeadLetters(ctx, cfg, func(dl domain.DeadLetter) bool {
				if dl.Event.EventID == args[0] {
					found = &dl
					return false
				}
				return true
			})
			if err != nil {
				return err
			}
			if found == nil {
				return fmt.Errorf("event %s not found on the dead-letter topic", args[0])
			}

			topics := stream.NewTopics(cfg.Streams.TopicPrefix)
			producer := stream.NewProducer(cfg.Streams.Brokers, topics, log)
			defer producer.Close()

			if err := producer.PublishIncoming(ctx, found.Event); err != nil {
				return fmt.Errorf("replay: %w", err)
			}

			fmt.Printf("replayed %s to %s\n", found.Event.EventID, topics.TicketsIncoming())
			return nil
		},
	}

	return cmd
}
