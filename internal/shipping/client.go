package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopfront/order-reconciler/internal/domain"
)

// Client buys shipping labels from the shipping provider. The provider's
// response is treated as opaque: whatever comes back is stored verbatim on
// the order.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type labelRequest struct {
	OrderID string                  `json:"order_id"`
	Address *domain.AddressSnapshot `json:"address"`
	Items   []domain.LineItem       `json:"items"`
}

func (c *Client) Arrange(ctx context.Context, order *domain.Order) (domain.ShippingLabel, error) {
	body, err := json.Marshal(labelRequest{
		OrderID: order.OrderID,
		Address: order.ShippingAddress,
		Items:   order.Items,
	})
	if err != nil {
		return domain.ShippingLabel{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ShippingLabel{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ShippingLabel{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.ShippingLabel{}, fmt.Errorf("shipping provider returned %d", resp.StatusCode)
	}

	var label domain.ShippingLabel
	if err := json.NewDecoder(resp.Body).Decode(&label); err != nil {
		return domain.ShippingLabel{}, fmt.Errorf("failed to decode label response: %w", err)
	}
	if label.TrackingNumber == "" {
		return domain.ShippingLabel{}, fmt.Errorf("shipping provider returned no tracking number")
	}
	return label, nil
}
