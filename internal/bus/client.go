package bus

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

// maxResponseBytes bounds a single response read; cached frames are shorter.
const maxResponseBytes = 260

// Client is a minimal bus master used to probe the server.
type Client struct {
	address   string
	conn      net.Conn
	mu        sync.Mutex
	timeout   time.Duration
	connected bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

// Connect opens the TCP connection
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// SendRequest writes req and returns whatever the server answers within the timeout.
// Responses carry no length prefix, so the read takes the first chunk the server sends.
func (c *Client) SendRequest(ctx context.Context, req Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(req.Encode()); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	buf := make([]byte, maxResponseBytes)
	n, err := c.conn.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("read failed: %w", io.ErrUnexpectedEOF)
	}

	return buf[:n], nil
}

// ReadRegister requests reg. A sentinel answer is reported as found=false.
func (c *Client) ReadRegister(ctx context.Context, reg types.Register) (types.Payload, bool, error) {
	resp, err := c.SendRequest(ctx, ReadRegisterRequest(reg))
	if err != nil {
		return nil, false, err
	}
	if IsErrorSentinel(resp) {
		return nil, false, nil
	}
	return types.Payload(resp), true, nil
}
