package luminus

import (
	"context"
	"fmt"
	"net/url"

	"github.com/raterudder/luminus/pkg/types"
)

const (
	resourceMeters  = "meters"
	resourcePricing = "pricing"
)

type metersResponse struct {
	Meters []types.Meter `json:"meters"`
}

// ListMeters returns the meters of the account as Luminus reports them.
func (c *Client) ListMeters(ctx context.Context) ([]types.Meter, error) {
	if c.mock != nil {
		return c.mock.listMeters(), nil
	}

	var res metersResponse
	if err := c.fetch(ctx, resourceMeters, c.baseURL.JoinPath(metersPath).String(), &res); err != nil {
		return nil, fmt.Errorf("failed to list meters: %w", err)
	}
	return res.Meters, nil
}

// GetMeterPricing returns the price information for the meter with the
// given EAN.
func (c *Client) GetMeterPricing(ctx context.Context, ean string) (types.PriceDocument, error) {
	// the EAN ends up in the request path so anything but digits is refused
	if !validEAN(ean) {
		return types.PriceDocument{}, &NotFoundError{EAN: ean}
	}
	if c.mock != nil {
		return c.mock.meterPricing(ean)
	}

	u := c.baseURL.JoinPath(pricingPath, url.PathEscape(ean)).String()
	var doc types.PriceDocument
	if err := c.fetch(ctx, resourcePricing, u, &doc); err != nil {
		return types.PriceDocument{}, fmt.Errorf("failed to get pricing for %s: %w", ean, err)
	}
	return doc, nil
}

// validEAN reports whether ean is a non-empty string of ASCII digits.
func validEAN(ean string) bool {
	if ean == "" {
		return false
	}
	for _, r := range ean {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
