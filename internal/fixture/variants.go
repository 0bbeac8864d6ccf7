package fixture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"genesynth/internal/mat"
)

func serialDraw(m Metadata) (drawFunc, error) {
	start, err := m.Int("min", 0)
	if err != nil {
		return nil, err
	}
	step, err := m.Int("step", 1)
	if err != nil {
		return nil, err
	}
	if step == 0 {
		return nil, errors.New("serial step must not be zero")
	}
	return func(_ context.Context, _ *rand.Rand, size int) (column, error) {
		vals := make([]int64, size)
		for i := range vals {
			vals[i] = start + int64(i)*step
		}
		return rawOf(vals, formatInt), nil
	}, nil
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// bounds reads [min, max) with defaults and rejects empty ranges.
func bounds(m Metadata, defMin, defMax float64) (float64, float64, error) {
	lo, err := m.Float("min", defMin)
	if err != nil {
		return 0, 0, err
	}
	hi, err := m.Float("max", defMax)
	if err != nil {
		return 0, 0, err
	}
	if !(lo < hi) {
		return 0, 0, fmt.Errorf("min (%v) must be below max (%v)", lo, hi)
	}
	return lo, hi, nil
}

// distribution builds the sampling model named by metadata. Accepted shapes:
//
//	distribution: normal
//	params: {mu: 0, sigma: 1}   # or positional: [0, 1]
//
//	distribution: {model: normal, params: [0, 1]}
func distribution(m Metadata, lo, hi float64) (mat.Model, error) {
	name := "uniform"
	rawParams := m["params"]
	switch v := m["distribution"].(type) {
	case nil:
	case string:
		name = v
	default:
		dm, ok := toStringMap(v)
		if !ok {
			return nil, fmt.Errorf("distribution must be a name or a mapping, got %T", v)
		}
		if s, ok := dm["model"].(string); ok {
			name = s
		}
		if p, ok := dm["params"]; ok {
			rawParams = p
		}
	}
	params, err := modelParams(name, rawParams)
	if err != nil {
		return nil, err
	}
	return mat.NewModel(name, lo, hi, params)
}

func modelParams(model string, raw any) (map[string]float64, error) {
	if raw == nil {
		return nil, nil
	}
	if list, ok := toFloats(raw); ok {
		names, known := mat.ParamNames(model)
		if !known {
			return nil, fmt.Errorf("unknown distribution model %q", model)
		}
		if len(list) > len(names) {
			return nil, fmt.Errorf("model %s takes at most %d parameters, got %d", model, len(names), len(list))
		}
		out := make(map[string]float64, len(list))
		for i, v := range list {
			out[names[i]] = v
		}
		return out, nil
	}
	pm, ok := toStringMap(raw)
	if !ok {
		return nil, fmt.Errorf("distribution params must be a list or mapping, got %T", raw)
	}
	out := make(map[string]float64, len(pm))
	for k, v := range pm {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("distribution param %q must be a number", k)
		}
		out[k] = f
	}
	return out, nil
}

func integerDraw(m Metadata, unique bool) (drawFunc, error) {
	lo, hi, err := bounds(m, 0, 100)
	if err != nil {
		return nil, err
	}
	lo, hi = math.Ceil(lo), math.Ceil(hi)
	model, err := distribution(m, lo, hi)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, r *rand.Rand, size int) (column, error) {
		xs, err := mat.Draw(r, size, lo, hi, model, unique)
		if err != nil {
			return nil, err
		}
		vals := make([]int64, size)
		for i, x := range xs {
			v := math.Floor(x + 1e-9)
			vals[i] = int64(math.Min(math.Max(v, lo), hi-1))
		}
		return rawOf(vals, formatInt), nil
	}, nil
}

// floatDraw samples [min, max). A non-negative scale rounds to that many
// decimal places.
func floatDraw(m Metadata, unique bool, scale int) (drawFunc, error) {
	lo, hi, err := bounds(m, 0, 1)
	if err != nil {
		return nil, err
	}
	model, err := distribution(m, lo, hi)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, r *rand.Rand, size int) (column, error) {
		xs, err := mat.Draw(r, size, lo, hi, model, unique)
		if err != nil {
			return nil, err
		}
		if scale >= 0 {
			pow := math.Pow(10, float64(scale))
			for i, x := range xs {
				xs[i] = math.Round(x*pow) / pow
			}
		}
		return rawOf(xs, formatFloat), nil
	}, nil
}

func decimalDraw(m Metadata, unique bool) (drawFunc, error) {
	scale, err := m.Int("scale", 2)
	if err != nil {
		return nil, err
	}
	if scale < 0 {
		return nil, fmt.Errorf("decimal scale must not be negative, got %d", scale)
	}
	if m.Has("precision") {
		precision, err := m.Int("precision", 0)
		if err != nil {
			return nil, err
		}
		if precision > 0 && scale > precision {
			return nil, fmt.Errorf("decimal scale %d exceeds precision %d", scale, precision)
		}
	}
	return floatDraw(m, unique, int(scale))
}

func booleanDraw(_ context.Context, r *rand.Rand, size int) (column, error) {
	vals := make([]int, size)
	for i := range vals {
		vals[i] = r.IntN(2)
	}
	return rawOf(vals, func(v int) string {
		if v == 1 {
			return "true"
		}
		return "false"
	}), nil
}

// enumDraw samples from metadata.options: a list for a uniform draw or a
// value→weight mapping. unique switches to sampling without replacement.
func enumDraw(m Metadata, unique bool) (drawFunc, error) {
	var opts mat.Options[string]
	switch raw := m["options"].(type) {
	case nil:
		return nil, errors.New("enum requires metadata.options")
	case []any:
		for _, v := range raw {
			opts.Values = append(opts.Values, fmt.Sprint(v))
		}
	default:
		weights, ok := toStringMap(raw)
		if !ok {
			return nil, fmt.Errorf("enum options must be a list or mapping, got %T", raw)
		}
		keys := make([]string, 0, len(weights))
		for k := range weights {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w, ok := toFloat(weights[k])
			if !ok {
				return nil, fmt.Errorf("enum weight for %q must be a number", k)
			}
			opts.Values = append(opts.Values, k)
			opts.Weights = append(opts.Weights, w)
		}
	}
	if len(opts.Values) == 0 {
		return nil, errors.New("enum options are empty")
	}
	return func(_ context.Context, r *rand.Rand, size int) (column, error) {
		vals, err := mat.Sample(r, size, opts, !unique)
		if err != nil {
			return nil, err
		}
		return rawStrings(vals), nil
	}, nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomString(r *rand.Rand, alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.IntN(len(alphabet))]
	}
	return string(b)
}

func textDraw(m Metadata) (drawFunc, error) {
	length, err := m.Int("length", 16)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("text length must be positive, got %d", length)
	}
	return func(_ context.Context, r *rand.Rand, size int) (column, error) {
		vals := make([]string, size)
		for i := range vals {
			vals[i] = randomString(r, alphanumeric, int(length))
		}
		return rawStrings(vals), nil
	}, nil
}

const bcryptAlphabet = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// passwordDraw renders bcrypt-shaped tokens ($2b$12$ + 53 chars). They are
// format-compatible placeholders, not hashes of anything.
func passwordDraw(m Metadata) (drawFunc, error) {
	prefix := m.String("prefix", "$2b$")
	cost, err := m.Int("cost", 12)
	if err != nil {
		return nil, err
	}
	if cost < 4 || cost > 31 {
		return nil, fmt.Errorf("password cost must be in [4, 31], got %d", cost)
	}
	head := fmt.Sprintf("%s%02d$", prefix, cost)
	return func(_ context.Context, r *rand.Rand, size int) (column, error) {
		vals := make([]string, size)
		for i := range vals {
			vals[i] = head + randomString(r, bcryptAlphabet, 53)
		}
		return rawStrings(vals), nil
	}, nil
}

// randReader adapts a seeded generator to io.Reader for uuid.
type randReader struct{ r *rand.Rand }

func (rr randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Uint32())
	}
	return len(p), nil
}

func uuidDraw(_ context.Context, r *rand.Rand, size int) (column, error) {
	src := randReader{r: r}
	vals := make([]string, size)
	for i := range vals {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return nil, err
		}
		vals[i] = id.String()
	}
	return rawStrings(vals), nil
}
