package routing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

const defaultExecTimeout = 60 * time.Second

// ExecHandler answers messages by piping them to an external command:
// message body on stdin, context in PARLEY_* environment variables,
// reply on stdout.
type ExecHandler struct {
	Command string
	Timeout time.Duration
	log     *logging.Logger
}

func NewExecHandler(command string, timeout time.Duration, log *logging.Logger) *ExecHandler {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &ExecHandler{
		Command: command,
		Timeout: timeout,
		log:     log.Sub("exec"),
	}
}

func (h *ExecHandler) Handle(ctx context.Context, sessionKey string, msg domain.InboundMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Stdin = strings.NewReader(msg.Body)
	cmd.Env = append(os.Environ(),
		"PARLEY_SESSION="+sessionKey,
		"PARLEY_CHANNEL="+msg.Channel,
		"PARLEY_FROM="+msg.From,
		"PARLEY_FROM_NAME="+msg.FromName,
		"PARLEY_CHAT="+msg.ChatID,
		"PARLEY_CHAT_TYPE="+string(msg.ChatType),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	h.log.Debug().
		Str("session", sessionKey).
		Dur("took", time.Since(start)).
		Msg("responder command finished")

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("responder command: %w: %s", err, msg)
		}
		return "", fmt.Errorf("responder command: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
