package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/spf13/viper"

	"github.com/orbas1/sharedlog/internal/control"
)

// sharedlogClient is the thin newline-framed JSON/TCP control-socket
// client, mirroring cmd/cli/replication.go's replClient exactly.
type sharedlogClient struct {
	conn net.Conn
	rd   *bufio.Reader
}

func newSharedlogClient(ctx context.Context) (*sharedlogClient, error) {
	addr := viper.GetString("control_addr")
	if addr == "" {
		addr = "127.0.0.1:7951"
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to shared-log node at %s: %w", addr, err)
	}
	return &sharedlogClient{conn: conn, rd: bufio.NewReader(conn)}, nil
}

func (c *sharedlogClient) Close() { _ = c.conn.Close() }

func (c *sharedlogClient) call(ctx context.Context, req control.Request) (map[string]any, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	b = append(b, '\n')
	if _, err := c.conn.Write(b); err != nil {
		return nil, err
	}
	var resp control.Response
	dec := json.NewDecoder(c.rd)
	if err := dec.Decode(&resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Data, nil
}

func doAction(ctx context.Context, req control.Request) (map[string]any, error) {
	cli, err := newSharedlogClient(ctx)
	if err != nil {
		return nil, err
	}
	defer cli.Close()
	return cli.call(ctx, req)
}
