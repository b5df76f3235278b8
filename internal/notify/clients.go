package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPNotifier posts {recipient, templateData} to a transactional messaging
// provider endpoint with a bearer token. The same shape serves both the
// email and the SMS provider; only endpoint and token differ.
type HTTPNotifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPNotifier(endpoint, apiKey string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, recipient string, templateData map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"recipient":     recipient,
		"template_data": templateData,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification provider returned %d", resp.StatusCode)
	}
	return nil
}
