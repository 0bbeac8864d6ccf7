package mat

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model is a univariate distribution usable for inverse-transform sampling.
type Model interface {
	CDF(x float64) float64
	Quantile(p float64) float64
}

type cdfer interface {
	CDF(x float64) float64
}

type quantiler interface {
	Quantile(p float64) float64
}

// modelParams lists each model's parameter names in positional order.
var modelParams = map[string][]string{
	"uniform":     {"min", "max"},
	"normal":      {"mu", "sigma"},
	"student_t":   {"mu", "sigma", "nu"},
	"binomial":    {"n", "p"},
	"poisson":     {"lambda"},
	"beta":        {"alpha", "beta", "loc", "scale"},
	"gamma":       {"alpha", "beta", "loc", "scale"},
	"fisher":      {"d1", "d2", "loc", "scale"},
	"exponential": {"rate", "loc", "scale"},
	"lognormal":   {"mu", "sigma", "loc", "scale"},
	"weibull":     {"k", "lambda", "loc", "scale"},
	"cosine":      {"loc", "scale"},
	"power_law":   {"a", "loc", "scale"},
}

// Models returns the supported model names in sorted order.
func Models() []string {
	names := make([]string, 0, len(modelParams))
	for name := range modelParams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamNames returns the positional parameter names of a model.
func ParamNames(model string) ([]string, bool) {
	names, ok := modelParams[normalizeModel(model)]
	return names, ok
}

func normalizeModel(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "uniform":
		return "uniform"
	case "norm", "gaussian":
		return "normal"
	case "t", "students_t":
		return "student_t"
	case "f":
		return "fisher"
	case "powerlaw":
		return "power_law"
	}
	return name
}

// NewModel builds a named model. Missing parameters default to values scaled
// to the sampling bounds [min, max]. Standard-form models (beta, gamma,
// fisher, exponential, lognormal, weibull) are placed on the bounds with
// loc and scale: x = loc + scale*z, with loc defaulting to min and scale to a
// span-derived width that keeps the bulk of the mass inside [min, max].
func NewModel(name string, min, max float64, params map[string]float64) (Model, error) {
	name = normalizeModel(name)
	known, ok := modelParams[name]
	if !ok {
		return nil, fmt.Errorf("unknown distribution model %q", name)
	}
	for k := range params {
		if !contains(known, k) {
			return nil, fmt.Errorf("model %s has no parameter %q (expected %v)", name, k, known)
		}
	}
	get := func(key string, def float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return def
	}
	mid, span := (min+max)/2, max-min

	var d cdfer
	switch name {
	case "uniform":
		d = &distuv.Uniform{Min: get("min", min), Max: get("max", max)}
	case "normal":
		d = &distuv.Normal{Mu: get("mu", mid), Sigma: get("sigma", span/6)}
	case "student_t":
		d = &distuv.StudentsT{Mu: get("mu", mid), Sigma: get("sigma", span/6), Nu: get("nu", 1)}
	case "binomial":
		d = &distuv.Binomial{N: get("n", math.Max(max, 1)), P: get("p", 0.5)}
	case "poisson":
		d = &distuv.Poisson{Lambda: get("lambda", math.Max(mid, 1))}
	case "beta":
		d = &distuv.Beta{Alpha: get("alpha", 2), Beta: get("beta", 2)}
		d = shift(d, get("loc", min), get("scale", span))
	case "gamma":
		d = &distuv.Gamma{Alpha: get("alpha", 2), Beta: get("beta", 1)}
		d = shift(d, get("loc", min), get("scale", span/8))
	case "fisher":
		d = &distuv.F{D1: get("d1", 5), D2: get("d2", 2)}
		d = shift(d, get("loc", min), get("scale", span/10))
	case "exponential":
		d = &distuv.Exponential{Rate: get("rate", 1)}
		d = shift(d, get("loc", min), get("scale", span/5))
	case "lognormal":
		d = &distuv.LogNormal{Mu: get("mu", 0), Sigma: get("sigma", 1)}
		d = shift(d, get("loc", min), get("scale", span/8))
	case "weibull":
		d = &distuv.Weibull{K: get("k", 1.5), Lambda: get("lambda", 1)}
		d = shift(d, get("loc", min), get("scale", span/3))
	case "cosine":
		d = cosine{loc: get("loc", mid), scale: get("scale", span/(2*math.Pi))}
	case "power_law":
		pl := powerLaw{a: get("a", 1.5), loc: get("loc", min), scale: get("scale", span)}
		if pl.a <= 0 || pl.scale <= 0 {
			return nil, fmt.Errorf("power_law requires a > 0 and scale > 0")
		}
		return pl, nil
	}
	if ls, ok := d.(locScale); ok && !(ls.scale > 0) {
		return nil, fmt.Errorf("%s requires scale > 0, got %v", name, ls.scale)
	}
	if q, ok := d.(quantiler); ok {
		return bounded{cdfer: d, q: q.Quantile, lo: min, hi: max}, nil
	}
	return bounded{cdfer: d, lo: min, hi: max}, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// locScale maps a standard-form distribution onto x = loc + scale*z.
type locScale struct {
	z          cdfer
	q          func(float64) float64
	loc, scale float64
}

func shift(d cdfer, loc, scale float64) cdfer {
	ls := locScale{z: d, loc: loc, scale: scale}
	if q, ok := d.(quantiler); ok {
		ls.q = q.Quantile
	}
	return ls
}

func (ls locScale) CDF(x float64) float64 {
	return ls.z.CDF((x - ls.loc) / ls.scale)
}

// Quantile inverts the standard form by bisection when it has no quantile
// function of its own.
func (ls locScale) Quantile(p float64) float64 {
	if ls.q != nil {
		return ls.loc + ls.scale*ls.q(p)
	}
	return bisect(ls.CDF, p, ls.loc, ls.loc+ls.scale*1e6)
}

// bounded clamps quantiles to the sampling bounds and inverts the CDF by
// bisection when the underlying distribution has no quantile function.
type bounded struct {
	cdfer
	q      func(float64) float64
	lo, hi float64
}

const tinyP = 1e-12

func (b bounded) Quantile(p float64) float64 {
	p = math.Min(math.Max(p, tinyP), 1-tinyP)
	var x float64
	if b.q != nil {
		x = b.q(p)
	} else {
		x = bisect(b.CDF, p, b.lo, b.hi)
	}
	return math.Min(math.Max(x, b.lo), b.hi)
}

// bisect finds the smallest x in [lo, hi] with cdf(x) >= p.
func bisect(cdf func(float64) float64, p, lo, hi float64) float64 {
	for i := 0; i < 200 && hi-lo > 1e-12*(math.Abs(lo)+math.Abs(hi)+1); i++ {
		mid := lo + (hi-lo)/2
		if cdf(mid) >= p {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// cosine approximates a Gaussian on [loc-pi*scale, loc+pi*scale].
type cosine struct{ loc, scale float64 }

func (c cosine) CDF(x float64) float64 {
	z := (x - c.loc) / c.scale
	switch {
	case z <= -math.Pi:
		return 0
	case z >= math.Pi:
		return 1
	}
	return (math.Pi + z + math.Sin(z)) / (2 * math.Pi)
}

func (c cosine) Quantile(p float64) float64 {
	z := bisect(func(z float64) float64 { return (math.Pi + z + math.Sin(z)) / (2 * math.Pi) }, p, -math.Pi, math.Pi)
	return c.loc + c.scale*z
}

// powerLaw has density a*z^(a-1) on z in [0, 1].
type powerLaw struct{ a, loc, scale float64 }

func (pl powerLaw) CDF(x float64) float64 {
	z := (x - pl.loc) / pl.scale
	switch {
	case z <= 0:
		return 0
	case z >= 1:
		return 1
	}
	return math.Pow(z, pl.a)
}

func (pl powerLaw) Quantile(p float64) float64 {
	return pl.loc + pl.scale*math.Pow(p, 1/pl.a)
}

// Draw samples size values between min and max by inverse-transform sampling
// of m restricted to [CDF(min), CDF(max)). When unique is set the quantiles are
// evenly spaced instead of random.
func Draw(r *rand.Rand, size int, min, max float64, m Model, unique bool) ([]float64, error) {
	if size <= 0 {
		return nil, ErrSize
	}
	if !(min < max) {
		return nil, fmt.Errorf("min (%v) must be below max (%v)", min, max)
	}
	lo, hi := m.CDF(min), m.CDF(max)
	if !(lo < hi) {
		return nil, fmt.Errorf("model has no probability mass in [%v, %v)", min, max)
	}
	out := make([]float64, size)
	for i := range out {
		var p float64
		if unique {
			p = lo + (hi-lo)*float64(i)/float64(size)
		} else {
			p = lo + (hi-lo)*r.Float64()
		}
		out[i] = m.Quantile(p)
	}
	return out, nil
}

// Fit estimates model parameters from data. Only models with closed-form or
// moment estimators are supported. Standard-form fits carry loc 0 and scale 1
// so the result feeds NewModel unchanged.
func Fit(model string, data []float64) (map[string]float64, error) {
	if len(data) == 0 {
		return nil, ErrSize
	}
	name := normalizeModel(model)
	switch name {
	case "uniform":
		return map[string]float64{"min": floats.Min(data), "max": floats.Max(data)}, nil
	case "normal":
		mu, sigma := stat.MeanStdDev(data, nil)
		return map[string]float64{"mu": mu, "sigma": sigma}, nil
	case "exponential":
		mean := stat.Mean(data, nil)
		if mean <= 0 {
			return nil, fmt.Errorf("exponential fit needs a positive mean, got %v", mean)
		}
		return map[string]float64{"rate": 1 / mean, "loc": 0, "scale": 1}, nil
	case "poisson":
		return map[string]float64{"lambda": stat.Mean(data, nil)}, nil
	case "gamma":
		mean, variance := stat.MeanVariance(data, nil)
		if mean <= 0 || variance <= 0 {
			return nil, fmt.Errorf("gamma fit needs positive mean and variance")
		}
		return map[string]float64{"alpha": mean * mean / variance, "beta": mean / variance, "loc": 0, "scale": 1}, nil
	}
	return nil, fmt.Errorf("fitting is not supported for model %q", name)
}
