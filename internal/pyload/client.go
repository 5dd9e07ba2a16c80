package pyload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"pyloadwatch/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	userAgent      = "pyloadwatch/1.0"
)

// Client talks to a PyLoad-compatible server. Every call resolves to a value
// or a *domain.APIError; nothing is thrown past this boundary and there is
// no retry logic at this layer.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the default per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client (tests)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new PyLoad API client. The session cookie set by login
// is kept in an in-memory jar for the lifetime of the client.
func NewClient(baseURL, username, password string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Jar: jar},
		timeout:    defaultTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// callOpts tweaks a single request
type callOpts struct {
	method  string
	timeout time.Duration
}

// call issues one request against /api/<endpoint> and decodes the payload.
// POST parameters are form-encoded, GET parameters go on the query string;
// any non-scalar value is JSON-serialized to a string first. The timeout is
// enforced through the context; expiry cancels only this call, never
// siblings in flight.
func (c *Client) call(ctx context.Context, endpoint string, params map[string]any, opts callOpts) (any, error) {
	method := opts.method
	if method == "" {
		method = http.MethodPost
	}
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{}
	for key, value := range params {
		form.Set(key, encodeParam(value))
	}

	reqURL := fmt.Sprintf("%s/api/%s", c.baseURL, endpoint)
	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			reqURL = reqURL + "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, domain.NewAPIError(domain.ErrKindUnknown, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("api request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewAPIError(domain.ErrKindTimeout, "request timed out", err)
		}
		c.logger.Error("api request failed", "endpoint", endpoint, "error", err)
		return nil, domain.NewAPIError(domain.ErrKindConnection, "failed to connect to server", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewAPIError(domain.ErrKindTimeout, "request timed out", err)
		}
		return nil, domain.NewAPIError(domain.ErrKindConnection, "failed to read response", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, domain.NewAPIError(domain.ErrKindLogin, "invalid credentials", nil)
	}

	var data any
	parseErr := json.Unmarshal(raw, &data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := "server returned an error"
		if m, ok := data.(map[string]any); ok {
			if errText, ok := m["error"].(string); ok && errText != "" {
				message = errText
			}
		}
		c.logger.Error("api request error", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, domain.NewAPIError(domain.ErrKindServer, message, nil)
	}

	if parseErr != nil {
		c.logger.Error("api response parse error", "endpoint", endpoint, "error", parseErr, "bodyLen", len(raw))
		return nil, domain.NewAPIError(domain.ErrKindRequest, "invalid JSON response", parseErr)
	}

	// A 2xx payload can still carry a server-side application error marker.
	if m, ok := data.(map[string]any); ok {
		if errText, ok := m["error"].(string); ok && errText != "" {
			return nil, domain.NewAPIError(domain.ErrKindRequest, errText, nil)
		}
	}

	return data, nil
}

// encodeParam renders one request parameter. Scalars become their plain
// string form; anything object-valued is JSON-serialized, matching the wire
// convention the server expects for list and quoted-string arguments.
func encodeParam(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return fmt.Sprintf("%t", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// ServerStatus checks that the server is reachable and answering.
func (c *Client) ServerStatus(ctx context.Context) error {
	_, err := c.call(ctx, "statusServer", nil, callOpts{})
	return err
}

// Login authenticates the session. The server answers false-y payloads on
// bad credentials even with a 200, so both the transport error and the
// payload are checked.
func (c *Client) Login(ctx context.Context) error {
	data, err := c.call(ctx, "login", map[string]any{
		"username": c.username,
		"password": c.password,
	}, callOpts{})
	if err != nil {
		return err
	}
	switch v := data.(type) {
	case bool:
		if !v {
			return domain.NewAPIError(domain.ErrKindLogin, "server rejected credentials", nil)
		}
	case nil:
		return domain.NewAPIError(domain.ErrKindLogin, "server rejected credentials", nil)
	}
	return nil
}

// ActiveListing fetches the live download status and normalizes it into
// tasks. When the server answers with a status summary that claims activity
// but carries no task rows, the queue listing is fetched instead to recover
// the actual rows.
func (c *Client) ActiveListing(ctx context.Context) ([]domain.Task, error) {
	data, err := c.call(ctx, "statusDownloads", nil, callOpts{})
	if err != nil {
		return nil, err
	}

	tasks, result := Normalize(data)
	if result.SummaryOnly {
		if result.ActiveCount > 0 {
			c.logger.Debug("status summary reports activity, falling back to queue listing",
				"active", result.ActiveCount)
			return c.QueueListing(ctx)
		}
		return []domain.Task{}, nil
	}
	if !result.Recognized {
		c.logger.Warn("unrecognized listing payload treated as empty", "endpoint", "statusDownloads")
	}
	return tasks, nil
}

// QueueListing fetches the queue contents and normalizes them into tasks.
func (c *Client) QueueListing(ctx context.Context) ([]domain.Task, error) {
	data, err := c.call(ctx, "getQueueData", nil, callOpts{})
	if err != nil {
		return nil, err
	}
	tasks, result := Normalize(data)
	if !result.Recognized && !result.SummaryOnly {
		c.logger.Warn("unrecognized listing payload treated as empty", "endpoint", "getQueueData")
	}
	return tasks, nil
}

// CheckURL asks the server whether it can handle the given URL.
func (c *Client) CheckURL(ctx context.Context, rawURL string) error {
	_, err := c.call(ctx, "checkURLs", map[string]any{
		"urls": []string{rawURL},
	}, callOpts{})
	return err
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName replaces characters the server chokes on in package names.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// AddPackage queues a new download package. Server versions disagree on the
// parameter encoding, so a fixed sequence of conventions is attempted: the
// JSON-quoted name first, then the raw name, then both again with the legacy
// destination parameter older servers require. The first success wins,
// otherwise the last failure is returned.
func (c *Client) AddPackage(ctx context.Context, name, rawURL string) (string, error) {
	safeName := SanitizeName(name)
	links := []string{rawURL}

	attempts := []map[string]any{
		{"name": quoted(safeName), "links": links},
		{"name": safeName, "links": links},
		{"name": safeName, "links": links, "dest": 1},
		{"name": quoted(safeName), "links": links, "dest": 1},
	}

	var lastErr error
	for i, params := range attempts {
		data, err := c.call(ctx, "addPackage", params, callOpts{})
		if err == nil {
			c.logger.Debug("package added", "name", safeName, "attempt", i+1)
			return asID(data), nil
		}
		lastErr = err
		// Auth and connectivity failures will not be fixed by re-encoding.
		kind := domain.KindOf(err)
		if kind == domain.ErrKindLogin || kind == domain.ErrKindConnection || kind == domain.ErrKindTimeout {
			break
		}
		c.logger.Debug("add package attempt failed", "attempt", i+1, "error", err)
	}
	return "", lastErr
}

// RemoveTask deletes a package from the server.
func (c *Client) RemoveTask(ctx context.Context, id string) error {
	_, err := c.call(ctx, "deletePackages", map[string]any{
		"ids": []string{id},
	}, callOpts{})
	return err
}

// ClearFinished removes every finished download server-side.
func (c *Client) ClearFinished(ctx context.Context) error {
	_, err := c.call(ctx, "deleteFinished", nil, callOpts{})
	return err
}

// SpeedLimit reads the download speed-limit flag. The value comes back as a
// bool, a number or a quoted string depending on the server version.
func (c *Client) SpeedLimit(ctx context.Context) (bool, error) {
	data, err := c.call(ctx, "getConfigValue", map[string]any{
		"category": quoted("download"),
		"option":   quoted("limit_speed"),
	}, callOpts{})
	if err != nil {
		return false, err
	}
	return CoerceBool(data), nil
}

// SetSpeedLimit writes the download speed-limit flag.
func (c *Client) SetSpeedLimit(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, "setConfigValue", map[string]any{
		"category": quoted("download"),
		"option":   quoted("limit_speed"),
		"value":    quoted(fmt.Sprintf("%t", enabled)),
	}, callOpts{})
	return err
}

// quoted wraps s so encodeParam transmits it JSON-quoted.
func quoted(s string) any {
	raw, _ := json.Marshal(s)
	return json.RawMessage(raw)
}

// CoerceBool interprets the loosely-typed config values the server returns.
func CoerceBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		s := strings.ToLower(strings.Trim(value, `"`))
		return s == "true" || s == "1" || s == "on"
	default:
		return false
	}
}
