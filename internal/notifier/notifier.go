package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/coordinator"
	"github.com/julianstephens/streakline/internal/logger"
)

// SecretEnv names the variable whose value is sent in the secret header.
const SecretEnv = "STREAKLINE_NOTIFY_SECRET"

type WebhookPayload struct {
	Text  string            `json:"text"`
	State coordinator.State `json:"state"`
	// Failures maps habit id to the error that stopped its sync.
	Failures map[string]string `json:"failures,omitempty"`
}

// Notifier posts sync health changes to a webhook.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

func New(url string) *Notifier {
	return &Notifier{
		url:    url,
		secret: os.Getenv(SecretEnv),
		client: &http.Client{Timeout: constants.NotificationTimeout},
	}
}

func (n *Notifier) Notify(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(constants.ControlHeader, n.secret)
	}

	res, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
}

// Watch forwards health changes from a coordinator subscription until the
// channel closes. Only the edges are sent: entering a failed or partial cycle,
// and the first clean cycle after one.
func (n *Notifier) Watch(ctx context.Context, transitions <-chan coordinator.Transition) {
	unhealthy := false
	for t := range transitions {
		payload, next, ok := Message(t, unhealthy)
		unhealthy = next
		if !ok {
			continue
		}
		if err := n.Notify(ctx, payload); err != nil {
			logger.Warn("Failed to send sync notification", "url", n.url, "error", err)
		}
	}
}

// Message decides whether a transition is worth a notification given whether
// the previous finished cycle was unhealthy. It returns the new health flag.
func Message(t coordinator.Transition, unhealthy bool) (WebhookPayload, bool, bool) {
	if t.Report == nil || (t.To != coordinator.StateCompleted && t.To != coordinator.StateFailed) {
		return WebhookPayload{}, unhealthy, false
	}
	r := t.Report
	switch {
	case r.State == coordinator.StateFailed || r.Partial():
		if unhealthy {
			return WebhookPayload{}, true, false
		}
		return WebhookPayload{
			Text:     fmt.Sprintf("Habit sync %s: %s", r.State, describeFailures(r.Failures)),
			State:    r.State,
			Failures: r.Failures,
		}, true, true
	case unhealthy:
		return WebhookPayload{
			Text:  fmt.Sprintf("Habit sync recovered (%d habit(s) synced)", r.Habits),
			State: r.State,
		}, false, true
	}
	return WebhookPayload{}, false, false
}

func describeFailures(failures map[string]string) string {
	if len(failures) == 0 {
		return "source unavailable"
	}
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d habit(s) failed (%s: %s)", len(ids), ids[0], failures[ids[0]])
}
