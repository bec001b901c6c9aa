package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// GatewayClient implements Transport against a local MTProto session
// gateway. The gateway process owns the API credentials and the
// authenticated session; this client speaks plain JSON to it over
// localhost and shares its filesystem for media, so file payloads are
// passed by path rather than streamed twice.
type GatewayClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewGatewayClient returns a client for the gateway at baseURL
// (e.g. http://localhost:8081).
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{BaseURL: baseURL}
}

func (c *GatewayClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// doJSON performs a gateway request and decodes the JSON body into out
// (when out is non-nil). Failures are classified: connection-level errors
// and 5xx become TransientError, 401/403 become SessionError.
func (c *GatewayClient) doJSON(ctx context.Context, op, method, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if err := classifyStatus(op, resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func classifyStatus(op string, code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &SessionError{Op: op, Err: fmt.Errorf("gateway returned %d", code)}
	case code >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("gateway returned %d", code)}
	default:
		return fmt.Errorf("%s: gateway returned %d", op, code)
	}
}

// Connect asks the gateway to (re)open its session and confirms it is
// authorized.
func (c *GatewayClient) Connect(ctx context.Context) error {
	return c.doJSON(ctx, "connect", http.MethodPost, "/session/connect", nil, nil)
}

// Me verifies the session with the gateway's cheapest authenticated call.
func (c *GatewayClient) Me(ctx context.Context) error {
	return c.doJSON(ctx, "me", http.MethodGet, "/me", nil, nil)
}

type wireMessage struct {
	ID    int64  `json:"id"`
	Date  int64  `json:"date"` // unix seconds
	Text  string `json:"text,omitempty"`
	Media string `json:"media,omitempty"`
}

// RecentMessages lists messages newer than since, newest first, capped at
// limit, exactly as the gateway returns them.
func (c *GatewayClient) RecentMessages(ctx context.Context, chatID int64, since time.Time, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("chat_id", strconv.FormatInt(chatID, 10))
	q.Set("since", strconv.FormatInt(since.Unix(), 10))
	q.Set("limit", strconv.Itoa(limit))
	var body struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, "fetch messages", http.MethodGet, "/messages", q, &body); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		out = append(out, Message{ID: m.ID, Date: time.Unix(m.Date, 0).UTC(), Text: m.Text, Media: m.Media})
	}
	return out, nil
}

// DownloadMedia streams the media behind ref into dest.
func (c *GatewayClient) DownloadMedia(ctx context.Context, ref, dest string) error {
	const op = "download media"
	q := url.Values{}
	q.Set("ref", ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/media", nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.URL.RawQuery = q.Encode()
	resp, err := c.http().Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if err := classifyStatus(op, resp.StatusCode); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%s: mkdir: %w", op, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%s: create %s: %w", op, dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return &TransientError{Op: op, Err: err}
	}
	return f.Close()
}

// SendFile delivers the local file at path to the named recipient. The
// gateway shares the filesystem, so the payload is passed by path.
func (c *GatewayClient) SendFile(ctx context.Context, recipient, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("send file: %w", err)
	}
	q := url.Values{}
	q.Set("recipient", recipient)
	q.Set("path", abs)
	return c.doJSON(ctx, "send file", http.MethodPost, "/send-file", q, nil)
}

// Dialogs lists the chats visible to the session with their tagged kinds.
func (c *GatewayClient) Dialogs(ctx context.Context) ([]Dialog, error) {
	var body struct {
		Dialogs []struct {
			Kind  string `json:"kind"` // user | group | channel
			ID    int64  `json:"id"`
			Title string `json:"title"`
		} `json:"dialogs"`
	}
	if err := c.doJSON(ctx, "list dialogs", http.MethodGet, "/dialogs", nil, &body); err != nil {
		return nil, err
	}
	out := make([]Dialog, 0, len(body.Dialogs))
	for _, d := range body.Dialogs {
		kind := KindUser
		switch d.Kind {
		case "group":
			kind = KindGroup
		case "channel":
			kind = KindChannel
		}
		out = append(out, Dialog{Kind: kind, ID: d.ID, Title: d.Title})
	}
	return out, nil
}

// Close disconnects the gateway session. Best effort with a short deadline
// since it runs during shutdown.
func (c *GatewayClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.doJSON(ctx, "disconnect", http.MethodPost, "/session/disconnect", nil, nil)
}
