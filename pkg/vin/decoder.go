package vin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Decoder maps a 17-character VIN to structured vehicle attributes.
// An empty attribute map means the VIN could not be decoded.
type Decoder interface {
	Decode(ctx context.Context, vin string) (map[string]string, error)
}

// VPICDecoder decodes VINs against the NHTSA vPIC service.
type VPICDecoder struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewVPICDecoder creates a decoder for the given vPIC base URL
// (e.g. "https://vpic.nhtsa.dot.gov/api"). Calls are bounded at 10
// seconds and rate-limited to stay polite to the upstream.
func NewVPICDecoder(baseURL string) *VPICDecoder {
	return &VPICDecoder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

type vpicResponse struct {
	Results []struct {
		Variable string  `json:"Variable"`
		Value    *string `json:"Value"`
	} `json:"Results"`
}

// Decode fetches and flattens the vPIC attribute list for one VIN.
// Attributes with empty or "Not Applicable" values are dropped, so an
// undecodable VIN yields an empty map.
func (d *VPICDecoder) Decode(ctx context.Context, vin string) (map[string]string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/vehicles/DecodeVin/%s?format=json", d.baseURL, vin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vpic decode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vpic decode: unexpected status %d", resp.StatusCode)
	}

	var body vpicResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vpic decode response: %w", err)
	}

	decoded := make(map[string]string)
	for _, item := range body.Results {
		if item.Value == nil {
			continue
		}
		val := strings.TrimSpace(*item.Value)
		if val == "" || val == "Not Applicable" {
			continue
		}
		decoded[item.Variable] = val
	}

	slog.Debug("vin decoded", "vin", vin, "attributes", len(decoded))
	return decoded, nil
}
