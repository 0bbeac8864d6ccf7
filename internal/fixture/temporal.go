package fixture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"genesynth/internal/mat"
)

var temporalDefaults = map[Kind]struct {
	layout   string
	min, max string
}{
	KindTimestamp: {time.RFC3339, "2000-01-01T00:00:00Z", "2030-01-01T00:00:00Z"},
	KindDate:      {time.DateOnly, "2000-01-01", "2030-01-01"},
	KindTime:      {time.TimeOnly, "00:00:00", "23:59:59"},
}

var parseLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly, time.TimeOnly}

func parseInstant(v any) (time.Time, error) {
	if f, ok := toFloat(v); ok {
		if _, isString := v.(string); !isString {
			return time.Unix(int64(f), 0).UTC(), nil
		}
	}
	s := fmt.Sprint(v)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

// temporalDraw spaces size instants evenly over [min, max]. Rendering uses
// metadata.format (a Go layout) or epoch seconds when metadata.epoch is set.
func temporalDraw(kind Kind, m Metadata) (drawFunc, error) {
	def := temporalDefaults[kind]
	instant := func(key, fallback string) (time.Time, error) {
		if v, ok := m[key]; ok && v != nil {
			return parseInstant(v)
		}
		return parseInstant(fallback)
	}
	lo, err := instant("min", def.min)
	if err != nil {
		return nil, err
	}
	hi, err := instant("max", def.max)
	if err != nil {
		return nil, err
	}
	if hi.Before(lo) {
		return nil, fmt.Errorf("min %s is after max %s", lo, hi)
	}
	epoch, err := m.Bool("epoch", false)
	if err != nil {
		return nil, err
	}
	layout := m.String("format", def.layout)

	render := func(sec int64) string { return time.Unix(sec, 0).UTC().Format(layout) }
	if epoch {
		render = formatInt
	}
	return func(_ context.Context, _ *rand.Rand, size int) (column, error) {
		points := mat.Linspace(float64(lo.Unix()), float64(hi.Unix()), size)
		vals := make([]int64, size)
		for i, p := range points {
			vals[i] = int64(p)
		}
		return rawOf(vals, render), nil
	}, nil
}
