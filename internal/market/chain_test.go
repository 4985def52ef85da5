package market

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

type stubProvider struct {
	name string
	snap *model.Snapshot
	err  error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, _ string) (*model.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func testSnapshot(assetID, source string) *model.Snapshot {
	return &model.Snapshot{
		AssetID:     assetID,
		Name:        "Bitcoin",
		Symbol:      "btc",
		Price:       50000.123456,
		Change24h:   2.345678,
		Source:      source,
		LastUpdated: time.Now(),
	}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	chain := NewChain([]Provider{
		&stubProvider{name: "A", snap: testSnapshot("bitcoin", "A")},
		&stubProvider{name: "B", err: errors.New("should not be called")},
	}, 168, zerolog.Nop())

	snap, err := chain.Resolve(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Source != "A" {
		t.Errorf("expected source A, got %s", snap.Source)
	}
}

func TestChain_FallsThroughToThird(t *testing.T) {
	chain := NewChain([]Provider{
		&stubProvider{name: "A", err: &ProviderError{Provider: "A", Message: "down"}},
		&stubProvider{name: "B", err: &ProviderError{Provider: "B", Message: "timeout"}},
		&stubProvider{name: "C", snap: testSnapshot("bitcoin", "C")},
	}, 168, zerolog.Nop())

	snap, err := chain.Resolve(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Source != "C" {
		t.Errorf("expected source C, got %s", snap.Source)
	}
}

func TestChain_AllFailCollectsMessages(t *testing.T) {
	chain := NewChain([]Provider{
		&stubProvider{name: "A", err: &ProviderError{Provider: "A", Message: "down"}},
		&stubProvider{name: "B", err: &ProviderError{Provider: "B", Message: "timeout"}},
		&stubProvider{name: "C", err: &ProviderError{Provider: "C", Message: "quota"}},
	}, 168, zerolog.Nop())

	_, err := chain.Resolve(context.Background(), "bitcoin")
	var allFailed *AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	if len(allFailed.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(allFailed.Attempts))
	}
	msg := err.Error()
	for _, want := range []string{"A: down", "B: timeout", "C: quota", "bitcoin"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestChain_NormalizesSnapshot(t *testing.T) {
	now := time.Now()
	vol := 12.3456
	snap := &model.Snapshot{
		AssetID:      "shiba-inu",
		Price:        0.0000231456789,
		Change24h:    -1.23456,
		Volatility7d: &vol,
		History: []model.PricePoint{
			{Timestamp: now, Price: 3},
			{Timestamp: now.Add(-time.Hour), Price: 2},
			{Timestamp: now.Add(-time.Hour), Price: 2.5}, // duplicate timestamp
			{Timestamp: now.Add(-2 * time.Hour), Price: -1},
		},
		Source:      "A",
		LastUpdated: now,
	}
	chain := NewChain([]Provider{&stubProvider{name: "A", snap: snap}}, 168, zerolog.Nop())

	got, err := chain.Resolve(context.Background(), "shiba-inu")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Shiba Inu" {
		t.Errorf("expected fallback name Shiba Inu, got %q", got.Name)
	}
	if got.Symbol != "SHIBA" {
		t.Errorf("expected fallback symbol SHIBA, got %q", got.Symbol)
	}
	if got.Change24h != -1.23 {
		t.Errorf("expected change rounded to -1.23, got %v", got.Change24h)
	}
	if *got.Volatility7d != 12.35 {
		t.Errorf("expected volatility rounded to 12.35, got %v", *got.Volatility7d)
	}
	if len(got.History) != 2 {
		t.Fatalf("expected 2 history points after sanitize, got %d", len(got.History))
	}
	if !got.History[0].Timestamp.Before(got.History[1].Timestamp) {
		t.Error("history not chronological")
	}
}

func TestChain_CapsHistoryLength(t *testing.T) {
	now := time.Now()
	points := make([]model.PricePoint, 200)
	for i := range points {
		points[i] = model.PricePoint{Timestamp: now.Add(time.Duration(i) * time.Minute), Price: 100}
	}
	snap := testSnapshot("bitcoin", "A")
	snap.History = points
	chain := NewChain([]Provider{&stubProvider{name: "A", snap: snap}}, 168, zerolog.Nop())

	got, err := chain.Resolve(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.History) != 168 {
		t.Errorf("expected history capped at 168, got %d", len(got.History))
	}
	// Newest points must survive the trim.
	last := got.History[len(got.History)-1].Timestamp
	if !last.Equal(now.Add(199 * time.Minute)) {
		t.Errorf("expected newest point kept, got %v", last)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1234.5678, 1234.57},
		{1.994, 1.99},
		{0.4567, 0.4567},
		{0.012345, 0.0123},
		{0.0000231456789, 0.000023145679},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.in); got != tt.want {
			t.Errorf("FormatPrice(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDisplayPrice(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50000.12, "50000.12"},
		{1234.5678, "1234.57"},
		{2, "2.00"},
		{0.4567, "0.4567"},
		{0.012345, "0.0123"},
		// sub-cent prices stay in plain decimal, never exponent notation
		{0.0000231456789, "0.000023145679"},
	}
	for _, tt := range tests {
		if got := DisplayPrice(tt.in); got != tt.want {
			t.Errorf("DisplayPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFallbackSymbolFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bitcoin", "BITCO"},
		{"btc", "BTC"},
		{"xy", "XYX"},
		{"", "UNK"},
	}
	for _, tt := range tests {
		if got := fallbackSymbolFor(tt.in); got != tt.want {
			t.Errorf("fallbackSymbolFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
