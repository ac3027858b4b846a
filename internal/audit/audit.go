// Package audit indexes security-relevant auth transitions into
// elasticsearch so operators can query who logged in, who was forced out and
// when passwords changed. Recording is best-effort.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

type Entry struct {
	Action    string    `json:"action"`
	AccountID string    `json:"account_id"`
	Username  string    `json:"username,omitempty"`
	At        time.Time `json:"at"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

func NewESClient(url, username, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch error: %s: %s", res.Status(), body)
	}

	return client, nil
}

type ESRecorder struct {
	Client *elasticsearch.Client
	Index  string
}

func (r *ESRecorder) Record(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: json.Marshal failed: %w", err)
	}

	res, err := r.Client.Index(r.Index, bytes.NewReader(data),
		r.Client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("audit: index failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("audit: index error: %s", res.Status())
	}
	return nil
}

// Nop is used when no elasticsearch URL is configured and in tests.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
