package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/langowen/converter/internal/entities"
	"github.com/pkg/errors"
)

const Name = "frankfurter"

type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type latestResponse struct {
	Base  string         `json:"base"`
	Date  string         `json:"date"`
	Rates entities.Rates `json:"rates"`
}

type historyResponse struct {
	Base      string                    `json:"base"`
	StartDate string                    `json:"start_date"`
	EndDate   string                    `json:"end_date"`
	Rates     map[string]entities.Rates `json:"rates"`
}

// Latest fetches the newest rates quoted against base.
func (c *HTTPClient) Latest(ctx context.Context, base string) (*entities.RateSnapshot, error) {
	const op = "frankfurter.Latest"

	q := url.Values{}
	q.Set("from", base)

	var resp latestResponse
	if err := c.get(ctx, c.baseURL+"/latest?"+q.Encode(), &resp); err != nil {
		return nil, errors.Wrap(err, op)
	}

	snapshot := &entities.RateSnapshot{
		Base:  base,
		Rates: resp.Rates,
	}
	if snapshot.Rates == nil {
		snapshot.Rates = entities.Rates{}
	}
	if d, err := time.Parse(entities.DateLayout, resp.Date); err == nil {
		snapshot.Date = d
	}

	return snapshot, nil
}

// History fetches daily rates for the inclusive range start..end.
func (c *HTTPClient) History(ctx context.Context, base string, start, end time.Time) (map[string]entities.Rates, error) {
	const op = "frankfurter.History"

	q := url.Values{}
	q.Set("from", base)

	apiURL := fmt.Sprintf("%s/%s..%s?%s",
		c.baseURL,
		start.Format(entities.DateLayout),
		end.Format(entities.DateLayout),
		q.Encode(),
	)

	var resp historyResponse
	if err := c.get(ctx, apiURL, &resp); err != nil {
		return nil, errors.Wrap(err, op)
	}

	if resp.Rates == nil {
		return map[string]entities.Rates{}, nil
	}

	return resp.Rates, nil
}

func (c *HTTPClient) get(ctx context.Context, apiURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return errors.Wrap(err, "create request error")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &entities.ProviderError{Provider: Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		pErr := &entities.ProviderError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Status:     fmt.Sprintf("%d (%s)", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
		if msg := strings.TrimSpace(string(body)); msg != "" {
			pErr.Err = errors.New(msg)
		}
		return pErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &entities.ProviderError{
			Provider:   Name,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        errors.Wrap(err, "json decode error"),
		}
	}

	return nil
}
