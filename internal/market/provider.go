package market

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// Provider fetches market data for one asset from one upstream source and
// maps it to the canonical Snapshot shape. Implementations differ in request
// shape, field names, and whether history needs a secondary call.
type Provider interface {
	Resolve(ctx context.Context, assetID string) (*model.Snapshot, error)
	Name() string
}

// FormatPrice rounds a positive price for display: two decimals above a
// dollar, four down to a cent, eight significant digits below that.
func FormatPrice(v float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0
	case v >= 1:
		return roundTo(v, 2)
	case v >= 0.01:
		return roundTo(v, 4)
	default:
		s := strconv.FormatFloat(v, 'g', 8, 64)
		out, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v
		}
		return out
	}
}

// DisplayPrice renders a price for human-facing output with the same tiered
// precision as FormatPrice, always in plain decimal notation.
func DisplayPrice(v float64) string {
	v = FormatPrice(v)
	switch {
	case v >= 1:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case v >= 0.01:
		return strconv.FormatFloat(v, 'f', 4, 64)
	default:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// fallbackNameFor derives a display name from an asset id like
// "shiba-inu" -> "Shiba Inu".
func fallbackNameFor(assetID string) string {
	if assetID == "" {
		return "Unknown"
	}
	segments := strings.FieldsFunc(assetID, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, s := range segments {
		r := []rune(s)
		r[0] = unicode.ToUpper(r[0])
		segments[i] = string(r)
	}
	return strings.Join(segments, " ")
}

// fallbackSymbolFor derives a ticker-like symbol from an asset id.
func fallbackSymbolFor(assetID string) string {
	if assetID == "" {
		return "UNK"
	}
	var b strings.Builder
	for _, r := range assetID {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	cleaned := b.String()
	if len(cleaned) >= 3 {
		if len(cleaned) > 5 {
			return cleaned[:5]
		}
		return cleaned
	}
	for len(cleaned) < 3 {
		cleaned += "X"
	}
	return cleaned[:3]
}

// sanitizeHistory drops non-positive and non-finite points, sorts the series
// chronologically, removes duplicate timestamps, and caps the length to the
// newest maxPoints entries.
func sanitizeHistory(points []model.PricePoint, maxPoints int) []model.PricePoint {
	out := make([]model.PricePoint, 0, len(points))
	for _, p := range points {
		if p.Price > 0 && !math.IsInf(p.Price, 0) && !math.IsNaN(p.Price) && !p.Timestamp.IsZero() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	dedup := out[:0]
	for _, p := range out {
		if len(dedup) > 0 && !p.Timestamp.After(dedup[len(dedup)-1].Timestamp) {
			continue
		}
		dedup = append(dedup, p)
	}
	if maxPoints > 0 && len(dedup) > maxPoints {
		dedup = dedup[len(dedup)-maxPoints:]
	}
	return dedup
}

func parseFloatPtr(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func finitePtr(v *float64) *float64 {
	if v == nil || math.IsInf(*v, 0) || math.IsNaN(*v) {
		return nil
	}
	return v
}
