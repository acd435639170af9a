package signal

import (
	"math"
	"testing"
	"time"
)

func TestSmootherUsesShorterInitialWindow(t *testing.T) {
	sm := NewSmoother(3)

	// First output is the value itself, second the mean of two, and from
	// the third on the full window applies.
	if got := sm.Push(10); got != 10 {
		t.Fatalf("first output = %v, want 10", got)
	}
	if got := sm.Push(20); got != 15 {
		t.Fatalf("second output = %v, want 15", got)
	}
	if got := sm.Push(30); got != 20 {
		t.Fatalf("third output = %v, want 20", got)
	}
	if got := sm.Push(40); got != 30 {
		t.Fatalf("fourth output = %v, want mean(20,30,40)=30", got)
	}
}

func TestSmoothAllMatchesIncremental(t *testing.T) {
	raw := []float64{80, 75, 20, 61, 44, 90, 12}
	sm := NewSmoother(4)
	all := SmoothAll(4, raw)
	for i, v := range raw {
		if got := sm.Push(v); math.Abs(got-all[i]) > 1e-12 {
			t.Fatalf("sample %d: incremental %v != batch %v", i, got, all[i])
		}
	}
}

func TestDecodeRecordsArrayShape(t *testing.T) {
	payload := []byte(`[
		{"timestamp":"2024-05-02T00:00:00Z","price":"61250.5","sentimentIndex":72},
		{"timestamp":"2024-05-01T00:00:00Z","price":60800,"sentimentIndex":"65"}
	]`)
	records, err := DecodeRecords(payload)
	if err != nil {
		t.Fatalf("DecodeRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Re-sorted by timestamp regardless of payload order.
	if !records[0].Timestamp.Before(records[1].Timestamp) {
		t.Fatalf("records not sorted: %v then %v", records[0].Timestamp, records[1].Timestamp)
	}
	if records[0].Price != 60800 || records[0].Sentiment != 65 {
		t.Fatalf("first record mismatch: %+v", records[0])
	}
	if records[1].Price != 61250.5 || records[1].Sentiment != 72 {
		t.Fatalf("second record mismatch: %+v", records[1])
	}
}

func TestDecodeRecordsSingleObjectShape(t *testing.T) {
	payload := []byte(`{"timestamp":"2024-05-02T00:00:00Z","price":"61250.5","sentimentIndex":"72"}`)
	records, err := DecodeRecords(payload)
	if err != nil {
		t.Fatalf("DecodeRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Sentiment != 72 {
		t.Fatalf("sentiment = %v, want 72", records[0].Sentiment)
	}
}

func TestDecodeRecordsRejectsGarbage(t *testing.T) {
	if _, err := DecodeRecords([]byte(`"nope"`)); err == nil {
		t.Fatal("expected error for non-record payload")
	}
	if _, err := DecodeRecords([]byte(`{"timestamp":"not-a-time","price":1,"sentimentIndex":1}`)); err == nil {
		t.Fatal("expected error for bad timestamp")
	}
}

func TestToSamplesSmoothsSentiment(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{Timestamp: base, Price: 100, Sentiment: 80},
		{Timestamp: base.Add(24 * time.Hour), Price: 101, Sentiment: 40},
	}
	samples := ToSamples(records, 2)
	if samples[0].Smoothed != 80 {
		t.Fatalf("first smoothed = %v, want 80", samples[0].Smoothed)
	}
	if samples[1].Smoothed != 60 {
		t.Fatalf("second smoothed = %v, want 60", samples[1].Smoothed)
	}
}
