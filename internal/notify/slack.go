package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/logger"
)

// Severity classifies an alert. High-severity alerts flag conditions that need
// a human (ambiguous executions awaiting reconciliation).
type Severity string

const (
	SeverityInfo Severity = "INFO"
	SeverityWarn Severity = "WARN"
	SeverityHigh Severity = "HIGH"
)

// Notifier posts alerts to a Slack channel. Delivery is strictly best-effort:
// a failed notification is logged and dropped, never propagated, so the alert
// sink can never fail a monitoring cycle.
type Notifier struct {
	client  *resty.Client
	channel string
	enabled bool
}

func NewNotifier(token, channel string) *Notifier {
	n := &Notifier{
		channel: channel,
		enabled: token != "" && channel != "",
	}
	if !n.enabled {
		logger.Log.Warn("Slack credentials missing, notifications disabled (log only)")
		return n
	}

	n.client = resty.New().
		SetBaseURL("https://slack.com/api").
		SetAuthToken(token).
		SetTimeout(10 * time.Second)
	return n
}

// Notify sends one message. Structured fields are appended as bullet lines in
// the order callers pass them.
func (n *Notifier) Notify(severity Severity, message string, fields ...Field) {
	text := format(severity, message, fields)

	if !n.enabled {
		logger.Log.Infof("Notification (%s): %s", severity, text)
		return
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	resp, err := n.client.R().
		SetBody(map[string]string{"channel": n.channel, "text": text}).
		SetResult(&result).
		Post("/chat.postMessage")
	if err != nil {
		logger.Log.Warnf("Slack notification failed: %v", err)
		return
	}
	if !result.OK {
		logger.Log.Warnf("Slack rejected notification: %s (http %d)", result.Error, resp.StatusCode())
	}
}

// Field is one structured key/value pair attached to a notification.
type Field struct {
	Key   string
	Value string
}

func F(key, value string) Field {
	return Field{Key: key, Value: value}
}

func format(severity Severity, message string, fields []Field) string {
	prefix := ""
	switch severity {
	case SeverityWarn:
		prefix = "⚠️ "
	case SeverityHigh:
		prefix = "🚨 "
	}

	text := prefix + message
	for _, f := range fields {
		text += fmt.Sprintf("\n• %s: %s", f.Key, f.Value)
	}
	return text
}
