// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package smc

import (
	"context"
	"net"
	"sync"
	"time"
)

// Caller issues service calls.
type Caller interface {
	Call(ctx context.Context, call Call) (Result, error)
}

// Client issues calls over a connection.
type Client struct {
	mu sync.Mutex

	// +checklocks:mu
	conn net.Conn
}

// NewClient returns a client using conn.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Dial connects to a server listening on addr.
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// Call implements Caller.Call. Cancelling ctx aborts the exchange, after
// which the connection should be closed: a late result would be read as the
// answer to the next call. Calls are serialized.
func (c *Client) Call(ctx context.Context, call Call) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return Result{}, err
	}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			c.conn.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	if err := writeFrame(c.conn, call); err != nil {
		return Result{}, ctxErr(ctx, err)
	}
	res, err := readResult(c.conn)
	if err != nil {
		return Result{}, ctxErr(ctx, err)
	}
	return res, nil
}

// ctxErr prefers the context error, if any, over err.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Local calls a Handler in-process.
type Local struct {
	Handler Handler
}

// Call implements Caller.Call.
func (l Local) Call(ctx context.Context, call Call) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var res Result
	res.Status, res.Ret, res.RetValid = l.Handler.Handle(call.Function, call.Arg)
	return res, nil
}
