package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCommandTimeout bounds a command round trip when the context has no
// deadline of its own.
const DefaultCommandTimeout = 5 * time.Second

// maxLine is the largest NDJSON line accepted. Audio fragments arrive as
// base64 inside a single line.
const maxLine = 4 << 20

// SocketPath returns the default capture daemon socket path.
func SocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "speakify", "capture.sock")
}

// Client is one NDJSON connection to the capture daemon. A connection is
// either a command connection (Do) or, after Subscribe, an event stream
// (Next).
type Client struct {
	conn    net.Conn
	lines   *bufio.Scanner
	mu      sync.Mutex
	timeout time.Duration
}

// Dial connects to the daemon socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial capture daemon: %w", err)
	}

	lines := bufio.NewScanner(conn)
	lines.Buffer(make([]byte, 64<<10), maxLine)

	return &Client{conn: conn, lines: lines, timeout: DefaultCommandTimeout}, nil
}

// Close shuts down the connection. Pending Next calls return io.EOF.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends cmd and waits for its response. A response with ok=false is
// returned along with a *CommandError.
func (c *Client) Do(ctx context.Context, cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	defer c.conn.SetDeadline(time.Time{})

	if err := c.write(cmd); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := c.read(&resp); err != nil {
		return Response{}, fmt.Errorf("%s response: %w", cmd.Cmd, err)
	}
	if !resp.OK {
		return resp, &CommandError{Cmd: cmd.Cmd, Code: resp.Code, Message: resp.Error}
	}
	return resp, nil
}

// Subscribe turns the connection into an event stream for the named events
// (all events when none are given).
func (c *Client) Subscribe(ctx context.Context, events ...string) error {
	_, err := c.Do(ctx, Command{Cmd: "subscribe", Events: events})
	return err
}

// Next blocks until the next event arrives. It returns io.EOF once the
// daemon or Close ends the stream.
func (c *Client) Next() (Event, error) {
	var ev Event
	if err := c.read(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (c *Client) write(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Cmd, err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Cmd, err)
	}
	return nil
}

func (c *Client) read(v any) error {
	if !c.lines.Scan() {
		err := c.lines.Err()
		if err == nil || errors.Is(err, net.ErrClosed) {
			return io.EOF
		}
		return fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(c.lines.Bytes(), v); err != nil {
		return fmt.Errorf("decode line: %w", err)
	}
	return nil
}
