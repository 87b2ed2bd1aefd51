package amadeus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mverdun/farewatch/internal/domain"
)

const (
	defaultBaseURL        = "https://test.api.amadeus.com"
	defaultCurrency       = "USD"
	defaultMaxResults     = 5
	defaultTimeoutSeconds = 30

	// tokens are refreshed this long before their reported expiry so an
	// almost-expired token is never sent upstream.
	tokenExpirySkew = 30 * time.Second

	SourceFlightOffers  = "Amadeus Flight Offers"
	SourceCheapestDates = "Amadeus Cheapest Dates"
)

var ErrMissingCredentials = errors.New("amadeus: missing credentials")

// StatusError reports a non-success HTTP status from the upstream API.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("amadeus: %s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Currency   string
	MaxResults int
	Timeout    time.Duration
}

// Client talks to the Amadeus self-service API. It caches the OAuth2
// bearer token and re-authenticates when the token is absent or expired.
type Client struct {
	config Config
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}

	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate exchanges the client id/secret for a bearer token via the
// client-credentials grant. The token is cached until shortly before expiry.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySkew)) {
		return c.token, nil
	}

	if strings.TrimSpace(c.config.APIKey) == "" || strings.TrimSpace(c.config.APISecret) == "" {
		return "", ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.config.APIKey)
	form.Set("client_secret", c.config.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("amadeus: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Endpoint: "token", Code: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("amadeus: decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("amadeus: token response without access_token")
	}

	c.token = tok.AccessToken
	if tok.ExpiresIn > 0 {
		c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	} else {
		c.tokenExpiry = time.Now().Add(10 * time.Minute)
	}
	return c.token, nil
}

type offersResponse struct {
	Data []offerEntry `json:"data"`
}

type offerEntry struct {
	Price struct {
		Total string `json:"total"`
	} `json:"price"`
	Itineraries []struct {
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
		} `json:"segments"`
	} `json:"itineraries"`
}

// SearchOffers queries the flight-offers endpoint for an exact date pair.
// Individual offers that fail to parse are skipped; the rest of the batch
// is still returned. returnDate may be empty for a one-way search.
func (c *Client) SearchOffers(ctx context.Context, origin, destination, departureDate, returnDate string) ([]domain.Deal, error) {
	params := url.Values{}
	params.Set("originLocationCode", origin)
	params.Set("destinationLocationCode", destination)
	params.Set("departureDate", departureDate)
	if returnDate != "" {
		params.Set("returnDate", returnDate)
	}
	params.Set("adults", "1")
	params.Set("currencyCode", c.config.Currency)
	params.Set("max", strconv.Itoa(c.config.MaxResults))

	var parsed offersResponse
	if err := c.getJSON(ctx, "/v2/shopping/flight-offers", params, &parsed); err != nil {
		return nil, err
	}

	deals := make([]domain.Deal, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		price, err := strconv.ParseFloat(entry.Price.Total, 64)
		if err != nil || price < 0 {
			continue
		}
		airline := "N/A"
		if len(entry.Itineraries) > 0 && len(entry.Itineraries[0].Segments) > 0 {
			if code := entry.Itineraries[0].Segments[0].CarrierCode; code != "" {
				airline = code
			}
		}
		deals = append(deals, domain.Deal{
			Origin:        origin,
			Destination:   destination,
			DepartureDate: departureDate,
			ReturnDate:    returnDate,
			Price:         price,
			Airline:       airline,
			Source:        SourceFlightOffers,
			URL:           googleFlightsURL(origin, destination, departureDate),
			FoundAt:       time.Now(),
		})
	}
	return deals, nil
}

type flightDatesResponse struct {
	Data []struct {
		DepartureDate string `json:"departureDate"`
		ReturnDate    string `json:"returnDate"`
		Price         struct {
			Total string `json:"total"`
		} `json:"price"`
	} `json:"data"`
}

// SearchCheapestDate queries the date-flexible flight-dates endpoint and
// returns the minimum-price entry, or nil when the API has no candidates.
func (c *Client) SearchCheapestDate(ctx context.Context, origin, destination string) (*domain.Deal, error) {
	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("currency", c.config.Currency)

	var parsed flightDatesResponse
	if err := c.getJSON(ctx, "/v1/shopping/flight-dates", params, &parsed); err != nil {
		return nil, err
	}

	var best *domain.Deal
	for _, entry := range parsed.Data {
		price, err := strconv.ParseFloat(entry.Price.Total, 64)
		if err != nil || price < 0 {
			continue
		}
		if best != nil && price >= best.Price {
			continue
		}
		best = &domain.Deal{
			Origin:        origin,
			Destination:   destination,
			DepartureDate: entry.DepartureDate,
			ReturnDate:    entry.ReturnDate,
			Price:         price,
			Airline:       "N/A",
			Source:        SourceCheapestDates,
			URL:           googleFlightsURL(origin, destination, entry.DepartureDate),
			FoundAt:       time.Now(),
		}
	}
	return best, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("amadeus: %s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			// the cached token was rejected; force a re-auth next call
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return &StatusError{Endpoint: path, Code: resp.StatusCode, Body: readBody(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("amadeus: decode %s response: %w", path, err)
	}
	return nil
}

func googleFlightsURL(origin, destination, departureDate string) string {
	return fmt.Sprintf("https://www.google.com/flights?hl=es#flt=%s.%s.%s", origin, destination, departureDate)
}

func readBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(data))
}
