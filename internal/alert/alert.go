// Package alert posts integrity and operational alerts to a Slack incoming
// webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Severity selects the attachment color of a system alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityResolved Severity = "good"
)

const footer = "snaplog"

type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
	now          func() time.Time
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return NewManagerWithClient(enabled, slackWebhook, &http.Client{Timeout: 10 * time.Second})
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
		now:          time.Now,
	}
}

// Enabled reports whether alerts are actually delivered.
func (m *Manager) Enabled() bool {
	return m.enabled && m.slackWebhook != ""
}

// SendChainBrokenAlert reports a failed verification of the log stored at
// location.
func (m *Manager) SendChainBrokenAlert(ctx context.Context, location string, index uint64, hash, detail string) error {
	if !m.Enabled() {
		return nil
	}
	if hash == "" {
		hash = "-"
	}

	return m.send(ctx, slackMessage{
		Text: "*CHAIN INTEGRITY VIOLATION*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Sequence log chain broken",
				Fields: []slackField{
					{Title: "Log", Value: location, Short: true},
					{Title: "Index", Value: strconv.FormatUint(index, 10), Short: true},
					{Title: "Hash", Value: hash, Short: false},
					{Title: "Details", Value: detail, Short: false},
				},
				Footer: footer,
				Ts:     m.now().Unix(),
			},
		},
	})
}

// SendCommitFailedAlert reports an append whose batch the store rejected.
func (m *Manager) SendCommitFailedAlert(ctx context.Context, location string, index uint64, hash string, cause error) error {
	if !m.Enabled() {
		return nil
	}

	return m.send(ctx, slackMessage{
		Text: "*APPEND COMMIT FAILED*",
		Attachments: []slackAttachment{
			{
				Color: "warning",
				Title: "Append was not committed",
				Fields: []slackField{
					{Title: "Log", Value: location, Short: true},
					{Title: "Index", Value: strconv.FormatUint(index, 10), Short: true},
					{Title: "Hash", Value: hash, Short: false},
					{Title: "Error", Value: cause.Error(), Short: false},
				},
				Footer: footer,
				Ts:     m.now().Unix(),
			},
		},
	})
}

func (m *Manager) SendSystemAlert(ctx context.Context, title, message string, severity Severity) error {
	if !m.Enabled() {
		return nil
	}

	color := "danger"
	switch severity {
	case SeverityWarning:
		color = "warning"
	case SeverityResolved:
		color = "good"
	}

	return m.send(ctx, slackMessage{
		Text: fmt.Sprintf("*SYSTEM ALERT: %s*", title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: []slackField{
					{Title: "Message", Value: message, Short: false},
				},
				Footer: footer,
				Ts:     m.now().Unix(),
			},
		},
	})
}

func (m *Manager) send(ctx context.Context, msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.slackWebhook, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}
	return nil
}
