package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Store is the contract the pipeline needs from the remote key-value
// service. All operations are network calls and can fail transiently;
// background sweeps log and continue, request paths propagate.
type Store interface {
	LPush(ctx context.Context, key, value string) error
	LRange(ctx context.Context, key string, start, stop int) ([]string, error)
	SAdd(ctx context.Context, key, member string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Expire(ctx context.Context, key string, seconds int) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// StoreError wraps a failed key-value operation with the command that
// caused it.
type StoreError struct {
	Command string
	Status  int
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("kvstore %s failed (status %d): %s", e.Command, e.Status, e.Message)
}

// Client talks to an Upstash-style REST endpoint: each command is POSTed
// as a JSON array to the base URL with bearer auth, and the reply is
// {"result": ...} or {"error": "..."}.
type Client struct {
	client *resty.Client
}

var _ Store = (*Client)(nil)

type commandResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// NewClient creates a new key-value store client
func NewClient(baseURL, token string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "signalbrief-pipeline/1.0"),
	}
}

func (c *Client) do(ctx context.Context, cmd ...string) (json.RawMessage, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(cmd).
		Post("/")

	if err != nil {
		return nil, &StoreError{Command: cmd[0], Message: err.Error()}
	}

	var parsed commandResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, &StoreError{Command: cmd[0], Status: resp.StatusCode(), Message: "unparseable response: " + string(resp.Body())}
	}

	if resp.StatusCode() != 200 || parsed.Error != "" {
		msg := parsed.Error
		if msg == "" {
			msg = string(resp.Body())
		}
		return nil, &StoreError{Command: cmd[0], Status: resp.StatusCode(), Message: msg}
	}

	return parsed.Result, nil
}

// LPush prepends a value to the list stored at key.
func (c *Client) LPush(ctx context.Context, key, value string) error {
	_, err := c.do(ctx, "LPUSH", key, value)
	return err
}

// LRange returns the elements of the list at key between start and stop,
// both inclusive.
func (c *Client) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	result, err := c.do(ctx, "LRANGE", key, strconv.Itoa(start), strconv.Itoa(stop))
	if err != nil {
		return nil, err
	}

	var entries []string
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, &StoreError{Command: "LRANGE", Message: "unexpected result shape: " + err.Error()}
	}

	return entries, nil
}

// SAdd adds a member to the set stored at key.
func (c *Client) SAdd(ctx context.Context, key, member string) error {
	_, err := c.do(ctx, "SADD", key, member)
	return err
}

// SIsMember reports whether member is in the set stored at key.
func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	result, err := c.do(ctx, "SISMEMBER", key, member)
	if err != nil {
		return false, err
	}

	var n int
	if err := json.Unmarshal(result, &n); err != nil {
		return false, &StoreError{Command: "SISMEMBER", Message: "unexpected result shape: " + err.Error()}
	}

	return n == 1, nil
}

// Expire sets a TTL in seconds on key.
func (c *Client) Expire(ctx context.Context, key string, seconds int) error {
	_, err := c.do(ctx, "EXPIRE", key, strconv.Itoa(seconds))
	return err
}

// Get returns the string value at key. The second return value is false
// when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := c.do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}

	if string(result) == "null" || len(result) == 0 {
		return "", false, nil
	}

	var value string
	if err := json.Unmarshal(result, &value); err != nil {
		return "", false, &StoreError{Command: "GET", Message: "unexpected result shape: " + err.Error()}
	}

	return value, true, nil
}

// Set stores a string value at key, replacing any previous value.
func (c *Client) Set(ctx context.Context, key, value string) error {
	_, err := c.do(ctx, "SET", key, value)
	return err
}
