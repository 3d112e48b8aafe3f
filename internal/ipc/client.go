package ipc

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client sends one Command per call over a fresh connection to a daemon's
// Unix socket.
type Client struct {
	SocketPath string
	Timeout time.Duration

	nextID atomic.Uint64
}

// NewClient builds a Client targeting socketPath with a 10s default
// round-trip timeout.
func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: 10 * time.Second}
}

// Send dials the daemon, issues cmd, and returns its Response.
func (c *Client) Send(cmd Command) (Response, error) {
	conn, err := net.DialTimeout("unix", c.SocketPath, c.Timeout)
	if err != nil {
		return Response{}, fmt.Errorf("ipc: dial %s: %w", c.SocketPath, err)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}

	id := c.nextID.Add(1)
	if err := writeFrame(conn, IpcMessage{ID: id, Command: &cmd}); err != nil {
		return Response{}, err
	}

	msg, err := readFrame(conn)
	if err != nil {
		return Response{}, fmt.Errorf("ipc: read response: %w", err)
	}
	if msg.Response == nil {
		return Response{}, fmt.Errorf("ipc: response %d carries no payload", msg.ID)
	}
	return *msg.Response, nil
}

// GetStatus is a convenience wrapper for the GetStatus command.
func (c *Client) GetStatus() (StatusReport, error) {
	resp, err := c.Send(Command{Kind: CommandGetStatus})
	if err != nil {
		return StatusReport{}, err
	}
	if !resp.OK {
		return StatusReport{}, fmt.Errorf("ipc: get_status failed: %s", resp.Message)
	}
	if resp.Status == nil {
		return StatusReport{}, fmt.Errorf("ipc: get_status response missing status")
	}
	return *resp.Status, nil
}

// Shutdown is a convenience wrapper for the Shutdown command.
func (c *Client) Shutdown() error {
	resp, err := c.Send(Command{Kind: CommandShutdown})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("ipc: shutdown failed: %s", resp.Message)
	}
	return nil
}

// ForceReconcile is a convenience wrapper for the ForceReconcile command,
// scoped to accountID (empty means every open trade).
func (c *Client) ForceReconcile(accountID string) error {
	resp, err := c.Send(Command{Kind: CommandForceReconcile, AccountID: accountID})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("ipc: force_reconcile failed: %s", resp.Message)
	}
	return nil
}
