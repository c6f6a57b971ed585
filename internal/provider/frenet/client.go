package frenet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"shippingquote/internal/httpx"
)

const defaultBaseURL = "https://api.frenet.com.br"

// errMissingServices is returned when the payload lacks the services array.
var errMissingServices = errors.New("response has no ShippingSevicesArray")

// Client is a client for the Frenet quote API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient httpx.HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// ClientOption is a configuration option for the Frenet client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a Frenet client authenticated with token.
func NewClient(token string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	if token != "" {
		// Frenet authenticates with a bare "token" header rather than Authorization.
		c.header.Set("token", token)
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// QuoteRequest is the body of POST /shipping/quote.
type QuoteRequest struct {
	SellerCEP            string         `json:"SellerCEP"`
	RecipientCEP         string         `json:"RecipientCEP"`
	ShipmentInvoiceValue float64        `json:"ShipmentInvoiceValue"`
	ShippingItemArray    []ShippingItem `json:"ShippingItemArray"`
	RecipientCountry     string         `json:"RecipientCountry"`
}

// ShippingItem is one line of the shipment.
type ShippingItem struct {
	Height   int     `json:"Height"`
	Length   int     `json:"Length"`
	Width    int     `json:"Width"`
	Weight   float64 `json:"Weight"`
	Quantity int     `json:"Quantity"`
	SKU      string  `json:"SKU"`
	Category string  `json:"Category"`
}

// QuoteResponse keeps the upstream spelling of the services array.
type QuoteResponse struct {
	ShippingServices *[]ShippingService `json:"ShippingSevicesArray"`
}

// ShippingService is one quoted carrier service.
type ShippingService struct {
	Carrier            string `json:"Carrier"`
	ServiceCode        string `json:"ServiceCode"`
	ServiceDescription string `json:"ServiceDescription"`
	ShippingPrice      Text   `json:"ShippingPrice"`
	DeliveryTime       Text   `json:"DeliveryTime"`
	Error              bool   `json:"Error"`
	Msg                string `json:"Msg"`
}

// Text decodes a JSON string or number as its text. Any other value decodes
// to "" so one odd entry never fails the whole response.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		*t = Text(b)
	default:
		*t = ""
	}
	return nil
}

// Quote posts a quote request and returns the quoted services.
func (c *Client) Quote(ctx context.Context, body QuoteRequest) ([]ShippingService, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipping/quote", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")
	case res.StatusCode < 200 || res.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return nil, fmt.Errorf("unexpected status code %d: %s", res.StatusCode, string(b))
	}

	var out QuoteResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding quote response: %w", err)
	}
	if out.ShippingServices == nil {
		return nil, errMissingServices
	}
	return *out.ShippingServices, nil
}
