package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrRequestFailed wraps non-2xx responses from the API.
var ErrRequestFailed = errors.New("dashboard: request failed")

// collectionPaths maps collections to their REST paths under /api/v1.
var collectionPaths = map[string]string{
	CollectionPosDevices:   "/pos-devices",
	CollectionCustomers:    "/customers",
	CollectionAlerts:       "/alerts",
	CollectionAlertsUnread: "/alerts/unread",
	CollectionBranches:     "/branches",
	CollectionEmployees:    "/employees",
	CollectionSummary:      "/dashboard/summary",
}

// defaultHTTPTimeout bounds each REST call made by Client.
const defaultHTTPTimeout = 10 * time.Second

// Client reads collections from the REST API.
//
// After Login the client keeps the credentials: a request answered with 401
// logs in again and is retried once, and PushSource renews the push
// credential on every connection attempt. A Client is not safe for
// concurrent use.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client

	username string
	password string
}

// NewClient creates a client for the server at baseURL (for example
// http://localhost:8080).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Login exchanges credentials for an access token and keeps it for later
// calls.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.Token = resp.Token
	c.username, c.password = username, password
	return nil
}

// WSTicket asks the server for a single-use push channel ticket.
func (c *Client) WSTicket(ctx context.Context) (string, error) {
	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/ws-ticket", nil, &resp); err != nil {
		return "", fmt.Errorf("ws ticket: %w", err)
	}
	if resp.Ticket == "" {
		return "", fmt.Errorf("ws ticket: %w: empty ticket", ErrRequestFailed)
	}
	return resp.Ticket, nil
}

// Fetch decodes the collection identified by key into dst.
func (c *Client) Fetch(ctx context.Context, key Key, dst any) error {
	path, ok := collectionPaths[key.Collection]
	if !ok {
		return fmt.Errorf("dashboard: unknown collection %q", key.Collection)
	}
	path = "/api/v1" + path
	if q := key.Query().Encode(); q != "" {
		path += "?" + q
	}
	return c.do(ctx, http.MethodGet, path, nil, dst)
}

// Fetcher returns a cache Fetcher that decodes key's collection as generic
// JSON rows.
func (c *Client) Fetcher(key Key) Fetcher {
	return func(ctx context.Context) (any, error) {
		var v any
		if err := c.Fetch(ctx, key, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// PushURL returns the ws:// or wss:// URL of the push channel, carrying
// the access token when one is held.
func (c *Client) PushURL() (string, error) {
	return c.pushURL("token", c.Token)
}

// PushSource returns a URLSource for a Subscriber. Without credentials it
// yields PushURL. After Login every call logs in again and exchanges the
// fresh token for a single-use ticket, so a reconnect never presents an
// expired credential.
func (c *Client) PushSource() URLSource {
	return func(ctx context.Context) (string, error) {
		if c.username == "" {
			return c.PushURL()
		}
		if err := c.Login(ctx, c.username, c.password); err != nil {
			return "", err
		}
		ticket, err := c.WSTicket(ctx)
		if err != nil {
			return "", err
		}
		return c.pushURL("ticket", ticket)
	}
}

func (c *Client) pushURL(param, value string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if value != "" {
		q := u.Query()
		q.Set(param, value)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// do sends an authenticated request. A 401 with credentials held triggers
// one fresh login and a retry.
func (c *Client) do(ctx context.Context, method, path string, body []byte, dst any) error {
	err := c.send(ctx, method, path, body, dst)
	var status statusError
	if c.username == "" || !errors.As(err, &status) || status != http.StatusUnauthorized {
		return err
	}
	if loginErr := c.Login(ctx, c.username, c.password); loginErr != nil {
		return errors.Join(err, loginErr)
	}
	return c.send(ctx, method, path, body, dst)
}

// statusError carries the HTTP status of a failed request.
type statusError int

func (e statusError) Error() string {
	return http.StatusText(int(e))
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, dst any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		//nolint:errcheck // Message is best effort
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%w: %s %s: %w %s", ErrRequestFailed, method, path, statusError(resp.StatusCode), apiErr.Message)
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
