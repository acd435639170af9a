package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quatral/moodswing/types"
)

// Record is one raw entry from the sentiment feed before it becomes a
// MarketSample.
type Record struct {
	Timestamp time.Time
	Price     float64
	Sentiment float64
}

// Feed is the boundary to the sentiment source. Latest returns the most
// recent record the source knows about; the caller decides whether its
// timestamp is new.
type Feed interface {
	Latest(ctx context.Context) (Record, error)
	History(ctx context.Context) ([]Record, error)
}

// wireRecord matches the feed's JSON. Providers disagree on numeric
// encoding, so price and sentiment are decoded as raw values and parsed
// through decimal, which accepts both strings and numbers.
type wireRecord struct {
	Timestamp string          `json:"timestamp"`
	Price     json.RawMessage `json:"price"`
	Sentiment json.RawMessage `json:"sentimentIndex"`
}

// DecodeRecords parses a feed payload that is either a JSON array of
// records or a single latest record object, and returns the records sorted
// by ascending timestamp.
func DecodeRecords(data []byte) ([]Record, error) {
	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		var single wireRecord
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("feed payload is neither array nor object: %w", err)
		}
		wire = []wireRecord{single}
	}

	out := make([]Record, 0, len(wire))
	for _, w := range wire {
		r, err := w.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (w wireRecord) toRecord() (Record, error) {
	if w.Timestamp == "" {
		return Record{}, errors.New("feed record missing timestamp")
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("bad feed timestamp %q: %w", w.Timestamp, err)
	}
	price, err := parseNumeric(w.Price)
	if err != nil {
		return Record{}, fmt.Errorf("bad feed price: %w", err)
	}
	sent, err := parseNumeric(w.Sentiment)
	if err != nil {
		return Record{}, fmt.Errorf("bad feed sentiment: %w", err)
	}
	return Record{Timestamp: ts, Price: price, Sentiment: sent}, nil
}

func parseNumeric(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing value")
	}
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// ToSamples converts records to market samples, smoothing the sentiment
// series with the given window.
func ToSamples(records []Record, window int) []types.MarketSample {
	sm := NewSmoother(window)
	out := make([]types.MarketSample, len(records))
	for i, r := range records {
		out[i] = types.MarketSample{
			Timestamp: r.Timestamp,
			Price:     r.Price,
			RawSignal: r.Sentiment,
			Smoothed:  sm.Push(r.Sentiment),
		}
	}
	return out
}

// SliceFeed serves a fixed record series. The backtest CLI and the tests
// use it; Latest walks the series one record per call so a live loop can be
// driven through a scripted session.
type SliceFeed struct {
	Records []Record
	next    int
}

func (f *SliceFeed) Latest(ctx context.Context) (Record, error) {
	if len(f.Records) == 0 {
		return Record{}, errors.New("empty feed")
	}
	if f.next >= len(f.Records) {
		return f.Records[len(f.Records)-1], nil
	}
	r := f.Records[f.next]
	f.next++
	return r, nil
}

func (f *SliceFeed) History(ctx context.Context) ([]Record, error) {
	out := make([]Record, len(f.Records))
	copy(out, f.Records)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
