package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
)

func newSendCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <channel> <target> <message...>",
		Short: "Send a one-shot message through a configured channel",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, target := args[0], args[1]
			body := strings.Join(args[2:], " ")

			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			ch, err := buildChannel(name, cfg, bus.New(1), nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := ch.Start(ctx); err != nil {
				return err
			}
			defer ch.Stop(context.Background())

			if err := waitHealthy(ctx, ch); err != nil {
				return err
			}
			if err := ch.Send(ctx, domain.OutboundMessage{Channel: name, To: target, Body: body}); err != nil {
				return err
			}

			log.Info().Str("channel", name).Str("to", target).Msg("message sent")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for connect and send")
	return cmd
}

// waitHealthy polls until the channel's connection is usable.
func waitHealthy(ctx context.Context, ch domain.Channel) error {
	for !ch.Healthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to connect", ch.Name())
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}
