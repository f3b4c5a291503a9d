package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"anycoder/logger"
)

// Client relays an editor's stdio RPC channel to the daemon socket, so
// Neovim can start it as a job instead of dialing the socket itself.
type Client struct {
	socketPath string
	stdin      io.Reader
	stdout     io.Writer
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

func (c *Client) Connect() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		io.Copy(conn, c.stdin)
		// let the daemon finish replying after the editor hung up
		if uc, ok := conn.(*net.UnixConn); ok {
			uc.CloseWrite()
			return
		}
		conn.Close()
	}()

	if _, err := io.Copy(c.stdout, conn); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// dial waits briefly for a daemon that is still starting up
func (c *Client) dial() (net.Conn, error) {
	var lastErr error
	for range 50 { // Wait up to 5 seconds
		conn, err := net.Dial("unix", c.socketPath)
		if err == nil {
			logger.Debug("connected to daemon at %s", c.socketPath)
			return conn, nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("daemon not reachable at %s: %w", c.socketPath, lastErr)
}
