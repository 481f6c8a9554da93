package rpc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/coder/acp-go-sdk"

	"github.com/arosstale/pi-builder-sub000/internal/common/logger"
)

// defaultAgentBinary is the ACP-speaking agent the default dialer spawns.
const defaultAgentBinary = "claude-code-acp"

// killGrace is how long a closing agent gets between SIGTERM and SIGKILL.
const killGrace = 5 * time.Second

// acpConn wraps one agent subprocess and its ACP connection.
type acpConn struct {
	cmd       *exec.Cmd
	conn      *acp.ClientSideConnection
	sessionID acp.SessionId
}

// acpDialer returns a Dialer that spawns the given agent binary, performs
// the ACP handshake, and opens one agent session in the requested cwd.
func acpDialer(binary string, args []string, log *logger.Logger) Dialer {
	return func(ctx context.Context, cwd string, onEvent func(AgentEvent)) (Conn, error) {
		if cwd == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve working directory: %w", err)
			}
			cwd = wd
		}

		cmd := exec.Command(binary, args...)
		cmd.Dir = cwd
		cmd.Env = os.Environ()

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open agent stdin: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open agent stdout: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start agent %s: %w", binary, err)
		}

		client := newACPClient(log.Zap(), func(n acp.SessionNotification) {
			if ev := normalizeNotification(n); ev != nil {
				onEvent(*ev)
			}
		})
		conn := acp.NewClientSideConnection(client, stdin, stdout)

		if _, err := conn.Initialize(ctx, acp.InitializeRequest{
			ProtocolVersion: acp.ProtocolVersionNumber,
			ClientInfo: &acp.Implementation{
				Name:    "pibuild",
				Version: "1.0.0",
			},
		}); err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("ACP initialize handshake failed: %w", err)
		}

		resp, err := conn.NewSession(ctx, acp.NewSessionRequest{
			Cwd:        cwd,
			McpServers: []acp.McpServer{},
		})
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("failed to create agent session: %w", err)
		}

		return &acpConn{
			cmd:       cmd,
			conn:      conn,
			sessionID: resp.SessionId,
		}, nil
	}
}

// Prompt sends one prompt turn and blocks until the agent reports it done.
func (c *acpConn) Prompt(ctx context.Context, text string) error {
	_, err := c.conn.Prompt(ctx, acp.PromptRequest{
		SessionId: c.sessionID,
		Prompt:    []acp.ContentBlock{acp.TextBlock(text)},
	})
	return err
}

// Cancel interrupts the current turn without ending the session.
func (c *acpConn) Cancel(ctx context.Context) error {
	return c.conn.Cancel(ctx, acp.CancelNotification{
		SessionId: c.sessionID,
	})
}

// Close terminates the agent process: SIGTERM first, SIGKILL if it lingers.
func (c *acpConn) Close() error {
	proc := c.cmd.Process
	if proc == nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return proc.Kill()
	}

	done := make(chan struct{})
	go func() {
		_ = c.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(killGrace):
		_ = proc.Kill()
	}
	return nil
}
