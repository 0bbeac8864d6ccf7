package mat

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestOrderedIndex_InvertRoundTrips(t *testing.T) {
	r := newRand(7)
	for trial := 0; trial < 20; trial++ {
		arr := make([]int, 50)
		for i := range arr {
			arr[i] = r.IntN(10) // plenty of ties
		}
		perm := OrderedIndex(arr)
		inv := InvertPermutation(perm)

		composed := Take(perm, inv)
		if diff := cmp.Diff(Identity(len(arr)), composed); diff != "" {
			t.Fatalf("perm∘inv is not identity (-want +got):\n%s", diff)
		}
		assert.Equal(t, inv, RevertOrderedIndex(arr))

		sorted := Take(arr, perm)
		assert.Equal(t, arr, Take(sorted, inv))
	}
}

func TestOrderedIndex_IsStable(t *testing.T) {
	arr := []string{"b", "a", "b", "a"}
	assert.Equal(t, []int{1, 3, 0, 2}, OrderedIndex(arr))
}

func TestNullMask_Bounds(t *testing.T) {
	r := newRand(1)
	assert.Equal(t, make([]bool, 100), NullMask(r, 100, 0))
	assert.Equal(t, Selector(100), NullMask(r, 100, 100))
}

func TestNullMask_ConvergesToPercent(t *testing.T) {
	const n = 200000
	mask := NullMask(newRand(3), n, 30)
	frac := float64(len(Where(mask))) / n
	assert.InDelta(t, 0.30, frac, 0.01)
}

func TestMaskRange_HalfOpen(t *testing.T) {
	got := MaskRange([]int{1, 2, 3, 4}, 2, 4)
	assert.Equal(t, []bool{false, true, true, false}, got)
	assert.Equal(t, []bool{false, true, false}, MaskEquals([]string{"x", "y", "z"}, "y"))
}

func TestApplyNullable(t *testing.T) {
	out := ApplyNullable([]string{"a", "b", "c"}, []bool{false, true, false}, "")
	assert.Equal(t, []string{"a", "", "c"}, out)
	assert.Equal(t, []int{1, 2}, ApplyNullable([]int{1, 2}, nil, 0))
}

func TestUniqueValues(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, UniqueValues([]int{3, 1, 2, 3, 1}))
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 2.5, 5, 7.5, 10}, Linspace(0, 10, 5))
	assert.Equal(t, []float64{4}, Linspace(4, 9, 1))
}

func TestSample_WithoutReplacementUndersized(t *testing.T) {
	_, err := Sample(newRand(1), 5, Options[string]{Values: []string{"a", "b"}}, false)
	require.ErrorIs(t, err, ErrUndersizedDomain)

	_, err = Sample(newRand(1), 0, Options[string]{Values: []string{"a"}}, true)
	require.ErrorIs(t, err, ErrSize)

	_, err = Sample(newRand(1), 1, Options[string]{}, true)
	require.ErrorIs(t, err, ErrEmptyDomain)
}

func TestSample_WithoutReplacementIsDistinct(t *testing.T) {
	values := []int{1, 2, 3, 4, 5, 6}
	got, err := Sample(newRand(9), 6, Options[int]{Values: values}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, values, got)

	got, err = Sample(newRand(9), 4, Options[int]{Values: values, Weights: []float64{1, 1, 1, 1, 50, 50}}, false)
	require.NoError(t, err)
	assert.Len(t, UniqueValues(got), 4)
}

func TestSample_WeightsAreRespected(t *testing.T) {
	opts := Options[string]{Values: []string{"rare", "common"}, Weights: []float64{1, 9}}
	got, err := Sample(newRand(5), 10000, opts, true)
	require.NoError(t, err)

	common := len(Where(MaskEquals(got, "common")))
	assert.InDelta(t, 0.9, float64(common)/10000, 0.02)

	_, err = Sample(newRand(5), 3, Options[string]{Values: []string{"a"}, Weights: []float64{1, 2}}, true)
	assert.Error(t, err)
}

func TestDraw_UniqueUniformIntegers(t *testing.T) {
	m, err := NewModel("uniform", 0, 10, nil)
	require.NoError(t, err)

	xs, err := Draw(newRand(1), 10, 0, 10, m, true)
	require.NoError(t, err)
	got := make([]int, len(xs))
	for i, x := range xs {
		got[i] = int(math.Floor(x + 1e-9))
	}
	assert.Equal(t, Identity(10), got)
}

func TestDraw_StaysInBounds(t *testing.T) {
	for _, name := range Models() {
		t.Run(name, func(t *testing.T) {
			m, err := NewModel(name, 1, 20, nil)
			require.NoError(t, err)
			xs, err := Draw(newRand(11), 500, 1, 20, m, false)
			require.NoError(t, err)
			require.Len(t, xs, 500)
			above := 0
			for _, x := range xs {
				require.GreaterOrEqual(t, x, 1.0)
				require.LessOrEqual(t, x, 20.0)
				if x > 1+19.0/4 {
					above++
				}
			}
			assert.Greater(t, floats.Max(xs)-floats.Min(xs), 19.0/4, "draws cover the range")
			assert.Greater(t, above, len(xs)/10, "draws are not piled on the lower bound")
		})
	}
}

func TestNewModel_LocScale(t *testing.T) {
	m, err := NewModel("beta", 10, 100, nil)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, m.Quantile(0.5), 1e-6, "symmetric beta is centred on the bounds")

	m, err = NewModel("exponential", 0, 10, map[string]float64{"rate": 1, "loc": 0, "scale": 1})
	require.NoError(t, err)
	assert.InDelta(t, 1-math.Exp(-2), m.CDF(2), 1e-9)

	m, err = NewModel("weibull", 10, 100, nil)
	require.NoError(t, err)
	xs, err := Draw(newRand(4), 8, 10, 100, m, false)
	require.NoError(t, err)
	assert.Greater(t, len(UniqueValues(xs)), 1)

	_, err = NewModel("gamma", 0, 1, map[string]float64{"scale": 0})
	assert.Error(t, err)
	names, ok := ParamNames("lognormal")
	require.True(t, ok)
	assert.Equal(t, []string{"mu", "sigma", "loc", "scale"}, names)
}

func TestDraw_Errors(t *testing.T) {
	m, err := NewModel("normal", 0, 1, nil)
	require.NoError(t, err)

	_, err = Draw(newRand(1), 0, 0, 1, m, false)
	assert.ErrorIs(t, err, ErrSize)
	_, err = Draw(newRand(1), 3, 1, 1, m, false)
	assert.Error(t, err)

	_, err = NewModel("zipf", 0, 1, nil)
	assert.Error(t, err)
	_, err = NewModel("normal", 0, 1, map[string]float64{"lambda": 1})
	assert.Error(t, err)
}

func TestNewModel_BisectionMatchesQuantile(t *testing.T) {
	m, err := NewModel("cosine", -1, 1, map[string]float64{"loc": 0, "scale": 0.25})
	require.NoError(t, err)
	for _, p := range []float64{0.1, 0.5, 0.9} {
		assert.InDelta(t, p, m.CDF(m.Quantile(p)), 1e-6)
	}
}

func TestFit(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	p, err := Fit("normal", data)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, p["mu"], 1e-9)

	p, err = Fit("uniform", data)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"min": 2, "max": 9}, p)

	p, err = Fit("exponential", data)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, p["rate"], 1e-9)
	_, err = NewModel("exponential", 0, 20, p)
	require.NoError(t, err, "fitted parameters feed NewModel")

	_, err = Fit("weibull", data)
	assert.Error(t, err)
	_, err = Fit("normal", nil)
	assert.ErrorIs(t, err, ErrSize)
}
