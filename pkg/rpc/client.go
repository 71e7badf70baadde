package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// RemoteError is an error returned by the server's handler.
type RemoteError struct {
	Method  string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Method, e.Message, e.Code)
}

// Client is a line-delimited JSON RPC client. Calls are serialized over
// one connection.
type Client struct {
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	mu      sync.Mutex
	nextID  atomic.Int64
}

// Dial connects to addr, which takes the forms accepted by ParseAddr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	network, address := ParseAddr(addr)
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the response into result.
// The context deadline, if any, bounds the round trip. Call is safe for
// concurrent use.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	id := fmt.Sprintf("%d", c.nextID.Add(1))
	if err := c.encoder.Encode(Request{Method: method, ID: id, Params: raw}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	var resp struct {
		ID    string          `json:"id"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
		Code  int             `json:"code"`
	}
	if err := c.decoder.Decode(&resp); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, id)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
