package types

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	QuickNodeKVBaseURL = "https://api.quicknode.com/kv/rest/v1/lists"
	requestTimeout     = 10 * time.Second
)

var _ DataProvider = (*QuickNodeKVProvider)(nil)

// QuickNodeKVProvider reads recipient address lists from a QuickNode KV store list
type QuickNodeKVProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type QuickNodeKVResponse struct {
	Data struct {
		Items []string `json:"items"`
	} `json:"data"`
}

func NewQuickNodeKVProvider(apiKey, baseURL string) (*QuickNodeKVProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("quicknode-kv provider requires an api key")
	}
	if baseURL == "" {
		baseURL = QuickNodeKVBaseURL
	}
	return &QuickNodeKVProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

func (p *QuickNodeKVProvider) Name() string {
	return "quicknode-kv"
}

// FetchList returns the trimmed, non-empty items of the list stored under key
func (p *QuickNodeKVProvider) FetchList(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, fmt.Errorf("quicknode-kv list key is required")
	}
	op := "quicknode-kv list " + key

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+key, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var list QuickNodeKVResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", op, err)
	}

	items := make([]string, 0, len(list.Data.Items))
	for _, item := range list.Data.Items {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

func (p *QuickNodeKVProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
