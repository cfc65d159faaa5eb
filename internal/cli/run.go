package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
	"github.com/parleybot/parley/internal/routing"
	"github.com/parleybot/parley/internal/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the channel bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			var resume *store.ResumeStore
			if cfg.Store.Backend == "sqlite" {
				dbPath := filepath.Join(paths.Data, "parley.db")
				db, err := store.Open(dbPath, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()
				resume = store.NewResumeStore(db)
				log.Info().Str("path", dbPath).Msg("using sqlite resume store")
			}

			b := bus.New(cfg.Bus.QueueSize)
			reg := channel.NewRegistry(log)
			for _, ch := range buildChannels(cfg, b, resume) {
				reg.Register(ch)
			}
			if reg.Count() == 0 {
				return fmt.Errorf("no channels configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Outbound replies flow back through the originating channel.
			for _, name := range reg.List() {
				ch, _ := reg.Get(name)
				b.Subscribe(name, func(out domain.OutboundMessage) {
					if err := ch.Send(ctx, out); err != nil {
						log.Error().Err(err).Str("channel", ch.Name()).Str("to", out.To).Msg("send failed")
					}
				})
			}

			handler := newHandler(cfg)
			router := routing.NewRouter(b, handler, cfg.Session.Scope, log)

			go b.DispatchOutbound(ctx)
			go router.Run(ctx)
			reg.StartAll(ctx)

			log.Info().Int("channels", reg.Count()).Msg("parley is running")
			<-ctx.Done()

			log.Info().Msg("shutting down")
			reg.StopAll(context.Background())
			return nil
		},
	}
}

// newHandler picks the responder. Without a configured command, inbound
// messages are logged and dropped so the bridge can run as a listener.
func newHandler(cfg config.Config) routing.Handler {
	if cfg.Responder.Command != "" {
		timeout := time.Duration(cfg.Responder.Timeout) * time.Second
		return routing.NewExecHandler(cfg.Responder.Command, timeout, log)
	}
	return routing.HandlerFunc(func(ctx context.Context, key string, msg domain.InboundMessage) (string, error) {
		log.Info().
			Str("session", key).
			Str("from", msg.FromName).
			Str("body", msg.Body).
			Msg("no responder configured, message dropped")
		return "", nil
	})
}
