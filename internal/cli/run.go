package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/deskd/internal/channel"
	"github.com/soyeahso/deskd/internal/channel/email"
	"github.com/soyeahso/deskd/internal/config"
	"github.com/soyeahso/deskd/internal/gateway"
	"github.com/soyeahso/deskd/internal/hooks"
	"github.com/soyeahso/deskd/internal/logging"
	"github.com/soyeahso/deskd/internal/pipeline"
	"github.com/soyeahso/deskd/internal/plugin"
	"github.com/soyeahso/deskd/internal/plugin/ircnotify"
	"github.com/soyeahso/deskd/internal/responder"
	"github.com/soyeahso/deskd/internal/store"
	"github.com/soyeahso/deskd/internal/stream"
)

func newRunCmd() *cobra.Command {
	var (
		port    int
		bind    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the support engine: pipeline, gateway, and channel intake",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if workers != 0 {
				cfg.Pipeline.Workers = workers
			}

			// The --log-level flag wins; otherwise the configured level
			// (which DESKD_LOG_LEVEL may have overridden) applies.
			if logLevel == "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Raw config backs the gateway's config.get/config.set RPC
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			hookMgr := hooks.NewManager(log)

			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = filepath.Join(paths.Data, "deskd.db")
			}
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("store ready")

			topics := stream.NewTopics(cfg.Streams.TopicPrefix)
			producer := stream.NewProducer(cfg.Streams.Brokers, topics, log)
			defer producer.Close()

			agent, err := responder.New(cfg.Responder, log)
			if err != nil {
				return fmt.Errorf("responder: %w", err)
			}

			pipe := pipeline.New(db, producer, agent, hookMgr,
				cfg.Streams.Brokers, topics,
				pipeline.OptionsFromConfig(cfg.Pipeline), log)

			channels := channel.NewRegistry(log)
			if ec := cfg.Channels.Email; ec != nil && ec.Mode != "" && ec.Mode != "off" {
				emailCfg := *ec
				gmailPaths(&emailCfg.Gmail)
				adapter, err := email.NewAdapter(emailCfg, producer, log)
				if err != nil {
					return fmt.Errorf("email channel: %w", err)
				}
				channels.Register(adapter)
			}

			srv := gateway.New(cfg, log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(hookMgr),
				gateway.WithStore(db),
				gateway.WithPublisher(producer),
				gateway.WithChatStream(cfg.Streams.Brokers, topics),
				gateway.WithChannels(channels),
			)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pluginReg := plugin.NewRegistry(hookMgr, log)
			if cfg.Notify.IRC != nil {
				if err := pluginReg.Register(ircnotify.New(*cfg.Notify.IRC)); err != nil {
					return err
				}
			}
			if err := pluginReg.InitAll(ctx); err != nil {
				return fmt.Errorf("initializing plugins: %w", err)
			}
			defer pluginReg.CloseAll()

			if channels.Count() > 0 {
				if err := channels.StartAll(ctx); err != nil {
					return fmt.Errorf("starting channels: %w", err)
				}
				defer channels.StopAll(ctx)
			}

			// Pipeline, chat push, and gateway unwind together on ctx;
			// the first hard failure cancels the other two.
			errCh := make(chan error, 3)
			go func() { errCh <- pipe.Run(ctx) }()
			go func() { errCh <- srv.RunChatPush(ctx) }()
			go func() { errCh <- srv.Start(ctx) }()

			var firstErr error
			for i := 0; i < 3; i++ {
				if err := <-errCh; err != nil && firstErr == nil {
					firstErr = err
					stop()
				}
			}
			return firstErr
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().IntVar(&workers, "workers", 0, "override pipeline worker count")

	return cmd
}

// gmailPaths fills in the default credential locations under the
// credentials directory.
func gmailPaths(cfg *config.GmailConfig) {
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = filepath.Join(paths.Credentials, "gmail-credentials.json")
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = filepath.Join(paths.Credentials, "gmail-token.json")
	}
}
