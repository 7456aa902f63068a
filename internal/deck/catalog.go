// internal/deck/catalog.go
package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blanks/internal/models"
)

// ErrNotFound indicates the catalog has no deck under the requested code.
var ErrNotFound = errors.New("deck not found")

// Catalog is the lookup contract the lobby consumes. Fetch must be bounded:
// implementations apply a fixed timeout and surface context.DeadlineExceeded
// when it is exceeded.
type Catalog interface {
	Fetch(ctx context.Context, code string) (*models.Deck, error)
}

// Client fetches decks from a remote catalog over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds a catalog client. timeout bounds each Fetch call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

// wireDeck is the catalog's JSON shape; card IDs are minted locally.
type wireDeck struct {
	Name  string `json:"name"`
	Calls []struct {
		Text string `json:"text"`
		Pick int    `json:"pick"`
	} `json:"calls"`
	Responses []string `json:"responses"`
}

// Fetch looks up a deck by code. Exceeding the client's timeout surfaces
// context.DeadlineExceeded; a missing deck surfaces ErrNotFound.
func (c *Client) Fetch(ctx context.Context, code string) (*models.Deck, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/decks/%s", c.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deck catalog lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("deck catalog returned status %d", resp.StatusCode)
	}

	var wd wireDeck
	if err := json.NewDecoder(resp.Body).Decode(&wd); err != nil {
		return nil, fmt.Errorf("decoding catalog response: %w", err)
	}
	return buildDeck(code, wd), nil
}

func buildDeck(code string, wd wireDeck) *models.Deck {
	d := &models.Deck{
		Code:      code,
		Name:      wd.Name,
		Calls:     make([]models.CallCard, 0, len(wd.Calls)),
		Responses: make([]models.ResponseCard, 0, len(wd.Responses)),
	}
	for _, call := range wd.Calls {
		pick := call.Pick
		if pick < 1 {
			pick = 1
		}
		d.Calls = append(d.Calls, models.CallCard{ID: uuid.New(), Text: call.Text, Pick: pick})
	}
	for _, text := range wd.Responses {
		d.Responses = append(d.Responses, models.ResponseCard{ID: uuid.New(), Text: text})
	}
	return d
}
