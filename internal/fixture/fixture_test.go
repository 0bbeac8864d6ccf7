package fixture

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesynth/internal/fault"
	"genesynth/internal/mat"
)

func generate(t *testing.T, spec Spec, opts ...Option) []string {
	t.Helper()
	f, err := New(spec, opts...)
	require.NoError(t, err)
	arr, err := f.Generate(context.Background())
	require.NoError(t, err)
	return arr.Values
}

func TestGenerate_EveryLeafTypeHasSizeRows(t *testing.T) {
	metas := map[Kind]Metadata{
		KindEnum: {"options": []any{"a", "b", "c"}},
	}
	for _, kind := range []Kind{
		KindSerial, KindInteger, KindFloat, KindDecimal, KindBoolean, KindEnum,
		KindText, KindString, KindTimestamp, KindDate, KindTime, KindPassword,
	} {
		for _, n := range []int{1, 7, 250} {
			t.Run(string(kind)+"/"+strconv.Itoa(n), func(t *testing.T) {
				got := generate(t, Spec{Name: "root.f", Kind: kind, Size: n, Seed: 42, Metadata: metas[kind]})
				assert.Len(t, got, n)
			})
		}
	}
}

func TestSerial_ArithmeticProgression(t *testing.T) {
	got := generate(t, Spec{Name: "id", Kind: KindSerial, Size: 5, Metadata: Metadata{"min": 10, "step": 3}})
	assert.Equal(t, []string{"10", "13", "16", "19", "22"}, got)
}

func TestGenerate_SameSeedSameOutput(t *testing.T) {
	spec := Spec{Name: "root.v", Kind: KindInteger, Size: 20, Seed: SeedFor(1, "root.v")}
	a := generate(t, spec)
	b := generate(t, spec)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different output (-a +b):\n%s", diff)
	}

	spec.Seed = SeedFor(2, "root.v")
	assert.NotEqual(t, a, generate(t, spec))
}

func TestInteger_StaysInHalfOpenRange(t *testing.T) {
	got := generate(t, Spec{Name: "n", Kind: KindInteger, Size: 500, Seed: 3, Metadata: Metadata{"min": -5, "max": 5}})
	for _, v := range got {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, -5)
		require.Less(t, n, 5)
	}
}

func TestInteger_UniqueUsesEvenlySpacedQuantiles(t *testing.T) {
	got := generate(t, Spec{
		Name: "n", Kind: KindInteger, Size: 10,
		Metadata:    Metadata{"min": 0, "max": 10},
		Constraints: Constraints{Unique: true, Sorted: true},
	})
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, got)
}

func TestInteger_UniqueCollisionIsIntegrityError(t *testing.T) {
	f, err := New(Spec{
		Name: "n", Kind: KindInteger, Size: 20,
		Metadata:    Metadata{"min": 0, "max": 5},
		Constraints: Constraints{Unique: true},
	})
	require.NoError(t, err)
	_, err = f.Generate(context.Background())
	assert.ErrorIs(t, err, fault.ErrIntegrity)
}

func TestInteger_DistributionParams(t *testing.T) {
	got := generate(t, Spec{
		Name: "n", Kind: KindInteger, Size: 100, Seed: 8,
		Metadata: Metadata{"min": 0, "max": 100, "distribution": map[string]any{"model": "normal", "params": []any{50, 5}}},
	})
	assert.Len(t, got, 100)

	_, err := New(Spec{Name: "n", Kind: KindInteger, Size: 1, Metadata: Metadata{"distribution": "zipf"}})
	assert.ErrorIs(t, err, fault.ErrConfig)
}

func TestInteger_StandardFormModelsSpanTheBounds(t *testing.T) {
	for _, model := range []string{"beta", "gamma", "exponential", "lognormal", "weibull", "fisher"} {
		t.Run(model, func(t *testing.T) {
			got := generate(t, Spec{
				Name: "root.x", Kind: KindInteger, Size: 200, Seed: 12,
				Metadata: Metadata{"min": 10, "max": 100, "distribution": model},
			})
			seen := map[string]bool{}
			for _, v := range got {
				n, err := strconv.Atoi(v)
				require.NoError(t, err)
				require.GreaterOrEqual(t, n, 10)
				require.Less(t, n, 100)
				seen[v] = true
			}
			assert.Greater(t, len(seen), 10, "draws are spread over the range")
		})
	}
}

func TestDecimal_RoundsToScale(t *testing.T) {
	got := generate(t, Spec{Name: "d", Kind: KindDecimal, Size: 50, Seed: 1, Metadata: Metadata{"min": 0, "max": 10, "scale": 3}})
	re := regexp.MustCompile(`^\d+(\.\d{1,3})?$`)
	for _, v := range got {
		assert.Regexp(t, re, v)
	}
}

func TestBoolean_RendersLiterals(t *testing.T) {
	for _, v := range generate(t, Spec{Name: "b", Kind: KindBoolean, Size: 30, Seed: 5}) {
		assert.Contains(t, []string{"true", "false"}, v)
	}
}

func TestEnum_UniqueUndersizedDomainFails(t *testing.T) {
	f, err := New(Spec{
		Name: "root.e", Kind: KindEnum, Size: 5,
		Metadata:    Metadata{"options": []any{"a", "b"}},
		Constraints: Constraints{Unique: true},
	})
	require.NoError(t, err)
	_, err = f.Generate(context.Background())
	require.ErrorIs(t, err, fault.ErrGeneration)
	assert.Equal(t, "root.e", fault.NodeOf(err))
}

func TestEnum_WeightedOptions(t *testing.T) {
	got := generate(t, Spec{Name: "e", Kind: KindEnum, Size: 100, Seed: 2, Metadata: Metadata{"options": map[string]any{"never": 0, "always": 1}}})
	for _, v := range got {
		require.Equal(t, "always", v)
	}
}

func TestNullable_MasksAndNotNullWins(t *testing.T) {
	all := generate(t, Spec{Name: "n", Kind: KindInteger, Size: 20, Constraints: Constraints{Nullable: 100}})
	assert.Equal(t, make([]string, 20), all)

	none := generate(t, Spec{Name: "n", Kind: KindInteger, Size: 20, Constraints: Constraints{Nullable: 100, NotNull: true}})
	assert.NotContains(t, none, Null)
}

func TestNullable_DoesNotPerturbValues(t *testing.T) {
	base := Spec{Name: "n", Kind: KindInteger, Size: 50, Seed: 11}
	plain := generate(t, base)
	base.Constraints = Constraints{Nullable: 30}
	masked := generate(t, base)
	for i := range masked {
		if masked[i] != Null {
			assert.Equal(t, plain[i], masked[i])
		}
	}
}

func TestSorted_OrdersNumerically(t *testing.T) {
	got := generate(t, Spec{Name: "n", Kind: KindInteger, Size: 40, Seed: 4, Metadata: Metadata{"min": 0, "max": 1000}, Constraints: Constraints{Sorted: true}})
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return compareLoose(got[i], got[j]) < 0 }))
}

func TestTimestamp_EvenlySpaced(t *testing.T) {
	got := generate(t, Spec{Name: "ts", Kind: KindTimestamp, Size: 3, Metadata: Metadata{"min": "2020-01-01T00:00:00Z", "max": "2020-01-03T00:00:00Z"}})
	assert.Equal(t, []string{"2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z", "2020-01-03T00:00:00Z"}, got)

	epoch := generate(t, Spec{Name: "ts", Kind: KindDate, Size: 2, Metadata: Metadata{"min": "1970-01-01", "max": "1970-01-02", "epoch": true}})
	assert.Equal(t, []string{"0", "86400"}, epoch)
}

func TestPassword_Shape(t *testing.T) {
	re := regexp.MustCompile(`^\$2b\$12\$[./A-Za-z0-9]{53}$`)
	for _, v := range generate(t, Spec{Name: "p", Kind: KindPassword, Size: 5, Seed: 1}) {
		assert.Regexp(t, re, v)
	}
}

func TestUUIDConstraint(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	got := generate(t, Spec{Name: "u", Kind: KindText, Size: 10, Seed: 9, Constraints: Constraints{UUID: true, Unique: true}})
	for _, v := range got {
		assert.Regexp(t, re, v)
	}

	_, err := New(Spec{Name: "u", Kind: KindInteger, Size: 1, Constraints: Constraints{UUID: true}})
	assert.ErrorIs(t, err, fault.ErrConfig)
}

func TestString_ProviderAndTruncation(t *testing.T) {
	got := generate(t, Spec{Name: "s", Kind: KindString, Size: 10, Seed: 1, Metadata: Metadata{"subtype": "person", "field": "first_name", "length": 3}})
	for _, v := range got {
		assert.LessOrEqual(t, len([]rune(v)), 3)
		assert.NotEmpty(t, v)
	}

	_, err := New(Spec{Name: "s", Kind: KindString, Size: 1, Metadata: Metadata{"subtype": "person", "field": "shoe_size"}})
	assert.ErrorIs(t, err, fault.ErrConfig)
}

type staticSource map[string][]string

func (s staticSource) Values(_ context.Context, name string) ([]string, error) {
	return s[name], nil
}

func TestForeign_ReproducesTarget(t *testing.T) {
	target := generate(t, Spec{Name: "root.users.id", Kind: KindInteger, Size: 8, Seed: 77})

	f, err := New(Spec{Name: "root.orders.user", Kind: KindForeign, Size: 8, Seed: 5, Metadata: Metadata{"foreign": map[string]any{"name": "users.id"}}})
	require.NoError(t, err)
	fk := f.(*Foreign)
	assert.Equal(t, "users.id", fk.Target())

	_, err = fk.Generate(context.Background())
	require.ErrorIs(t, err, fault.ErrGeneration)

	fk.Bind("root.users.id", staticSource{"root.users.id": target})
	arr, err := fk.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target, arr.Values)
}

func TestForeign_SizeMismatchSamplesTarget(t *testing.T) {
	f, err := New(Spec{Name: "fk", Kind: KindForeign, Size: 30, Seed: 5, Metadata: Metadata{"foreign": "t"}})
	require.NoError(t, err)
	f.(*Foreign).Bind("root.t", staticSource{"root.t": {"x", "y"}})
	arr, err := f.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, arr.Values, 30)
	for _, v := range arr.Values {
		assert.Contains(t, []string{"x", "y"}, v)
	}
}

func TestForeign_UniqueIgnoresInheritedNulls(t *testing.T) {
	target := generate(t, Spec{
		Name: "root.id", Kind: KindInteger, Size: 20, Seed: 9,
		Metadata:    Metadata{"min": 0, "max": 1000},
		Constraints: Constraints{Unique: true, Nullable: 30},
	})
	require.Greater(t, len(mat.Where(mat.MaskEquals(target, Null))), 1)

	f, err := New(Spec{Name: "root.ref", Kind: KindForeign, Size: 20, Seed: 4,
		Metadata: Metadata{"foreign": "id"}, Constraints: Constraints{Unique: true}})
	require.NoError(t, err)
	f.(*Foreign).Bind("root.id", staticSource{"root.id": target})
	arr, err := f.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target, arr.Values)

	dup, err := New(Spec{Name: "root.dup", Kind: KindForeign, Size: 3,
		Metadata: Metadata{"foreign": "t"}, Constraints: Constraints{Unique: true}})
	require.NoError(t, err)
	dup.(*Foreign).Bind("root.t", staticSource{"root.t": {"7", Null, "7"}})
	_, err = dup.Generate(context.Background())
	assert.ErrorIs(t, err, fault.ErrIntegrity)
}

func TestContainer_GeneratesKeyedChildren(t *testing.T) {
	id, err := New(Spec{Name: "root.id", Kind: KindSerial, Size: 4})
	require.NoError(t, err)
	flag, err := New(Spec{Name: "root.flag", Kind: KindBoolean, Size: 4})
	require.NoError(t, err)

	c, err := New(Spec{Name: "root", Kind: "table", Size: 4}, WithChildren(id, flag))
	require.NoError(t, err)
	ct, ok := c.(Container)
	require.True(t, ok)
	assert.Equal(t, LayoutTabular, ct.Layout())

	arr, err := c.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "flag"}, arr.Keys)
	assert.Equal(t, 4, arr.Len())
	got, ok := arr.Child("id")
	require.True(t, ok)
	assert.Equal(t, []string{"0", "1", "2", "3"}, got.Values)
}

func TestNew_ConfigErrors(t *testing.T) {
	cases := []Spec{
		{Name: "x", Kind: "blob", Size: 1},
		{Name: "x", Kind: KindInteger, Size: 0},
		{Name: "x", Kind: KindInteger, Size: 1, Metadata: Metadata{"min": 5, "max": 5}},
		{Name: "x", Kind: KindEnum, Size: 1},
		{Name: "x", Kind: KindObject, Size: 1},
		{Name: "x", Kind: KindForeign, Size: 1},
		{Name: "x", Kind: KindSerial, Size: 1, Metadata: Metadata{"step": "fast"}},
	}
	for _, spec := range cases {
		_, err := New(spec)
		assert.ErrorIs(t, err, fault.ErrConfig, "spec %+v", spec)
	}
}

func TestParseConstraints_Shapes(t *testing.T) {
	got, err := ParseConstraints([]any{
		"unique",
		[]any{"nullable", 10},
		map[string]any{"sorted": nil},
		map[string]any{"kind": "subset", "value": true},
	})
	require.NoError(t, err)
	assert.Equal(t, Constraints{Unique: true, Nullable: 10, Sorted: true, Subset: true}, got)

	p, ok := got.NullPercent()
	assert.True(t, ok)
	assert.Equal(t, 10.0, p)

	_, err = ParseConstraints([]any{"primary"})
	assert.Error(t, err)
	_, err = ParseConstraints([]any{[]any{"nullable", 120}})
	assert.Error(t, err)
}

func TestParseKind_Aliases(t *testing.T) {
	for alias, want := range map[string]Kind{"double": KindFloat, "struct": KindMap, "table": KindObject, "TUPLE": KindArray} {
		got, err := ParseKind(alias)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, WorkloadIO, DefaultWorkload(KindInteger))
	assert.Equal(t, WorkloadCooperative, DefaultWorkload(KindForeign))
}
