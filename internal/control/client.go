package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/coordinator"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/tracker"
	"github.com/julianstephens/streakline/internal/writerlock"
)

// Client talks to a running daemon found through its writer lock.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(info writerlock.Info) (*Client, error) {
	if info.Port <= 0 {
		return nil, errors.New("the running writer has no control API")
	}
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", info.Port),
		secret:  info.Secret,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Apply sends an intent to the daemon. Connection failures are retried a few
// times since the daemon may still be binding its listener.
func (c *Client) Apply(ctx context.Context, in tracker.Intent) (IntentResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return IntentResponse{}, err
	}
	var out IntentResponse
	err = c.do(ctx, http.MethodPost, "/intents", body, &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/refresh", nil, nil)
}

func (c *Client) Status(ctx context.Context) (coordinator.Status, error) {
	var st coordinator.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var (
		res *http.Response
		err error
	)
	for attempt := 0; attempt < constants.ControlMaxRetries; attempt++ {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(constants.ControlHeader, c.secret)

		res, err = c.http.Do(req)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(constants.ControlRetryDelay):
		}
	}
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var e errorResponse
		data, _ := io.ReadAll(res.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			return fmt.Errorf("daemon returned status %d: %s", res.StatusCode, string(data))
		}
		return remoteError(e)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func remoteError(e errorResponse) error {
	var sentinel error
	switch e.Kind {
	case "not_found":
		sentinel = apperrors.ErrNotFound
	case "invalid_config":
		sentinel = apperrors.ErrInvalidConfig
	case "not_allowed":
		sentinel = apperrors.ErrNotAllowed
	case "source_unavailable":
		sentinel = apperrors.ErrSourceUnavailable
	case "throttled":
		sentinel = coordinator.ErrRefreshThrottled
	default:
		return errors.New(e.Error)
	}
	return &RemoteError{Message: e.Error, kind: sentinel}
}

// RemoteError carries a daemon-side error message and matches its sentinel with
// errors.Is.
type RemoteError struct {
	Message string
	kind    error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}
