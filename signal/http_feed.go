package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPFeed polls a JSON endpoint that publishes sentiment records in either
// of the two supported shapes.
type HTTPFeed struct {
	URL    string
	Client *http.Client
}

func NewHTTPFeed(url string) *HTTPFeed {
	return &HTTPFeed{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFeed) fetch(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return DecodeRecords(body)
}

func (f *HTTPFeed) Latest(ctx context.Context) (Record, error) {
	records, err := f.fetch(ctx)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, errors.New("feed returned no records")
	}
	return records[len(records)-1], nil
}

func (f *HTTPFeed) History(ctx context.Context) ([]Record, error) {
	return f.fetch(ctx)
}
