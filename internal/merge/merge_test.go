package merge

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesynth/internal/cache"
	"genesynth/internal/fault"
	"genesynth/internal/fixture"
)

func part(t *testing.T, dir, name string, kind fixture.Kind, values ...string) Part {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, cache.WriteLines(path, values))
	return Part{Name: name, Path: path, Kind: kind}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	lines, err := cache.ReadLines(path)
	require.NoError(t, err)
	return lines
}

func seq(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestMerge_TabularWithHeader(t *testing.T) {
	dir := t.TempDir()
	flags := []string{"true", "false", "true", "true", "false", "false", "true", "false", "true", "true"}
	parts := []Part{
		part(t, dir, "root.id", fixture.KindSerial, seq(10)...),
		part(t, dir, "root.flag", fixture.KindBoolean, flags...),
	}
	spec := fixture.Spec{Name: "root", Kind: fixture.KindObject, Size: 10, Metadata: fixture.Metadata{"header": true}}

	dst := filepath.Join(dir, "root")
	rows, err := Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)
	assert.Equal(t, 10, rows)

	lines := readLines(t, dst)
	require.Len(t, lines, 11)
	assert.Equal(t, "id,flag", lines[0])
	for i, line := range lines[1:] {
		cols := strings.Split(line, ",")
		assert.Equal(t, []string{strconv.Itoa(i), flags[i]}, cols)
	}
}

func TestMerge_LiteralHeaderFooterAndSep(t *testing.T) {
	dir := t.TempDir()
	parts := []Part{
		part(t, dir, "root.t.a", fixture.KindInteger, "1", "2"),
		part(t, dir, "root.t.b", fixture.KindInteger, "3", "4"),
	}
	spec := fixture.Spec{Name: "root.t", Kind: fixture.KindObject, Size: 2, Metadata: fixture.Metadata{
		"sep": "|", "header": "A|B", "footer": "-- end", "full_key": true,
	}}
	dst := filepath.Join(dir, "out")
	_, err := Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)
	assert.Equal(t, []string{"A|B", "1|3", "2|4", "-- end"}, readLines(t, dst))

	spec.Metadata = fixture.Metadata{"header": true, "full_key": true}
	_, err = Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)
	assert.Equal(t, "root.t.a,root.t.b", readLines(t, dst)[0])
}

func TestMerge_NestedTabularSkipsChildFraming(t *testing.T) {
	dir := t.TempDir()
	inner := fixture.Spec{Name: "root.inner", Kind: fixture.KindObject, Size: 3, Metadata: fixture.Metadata{
		"header": true, "footer": "total\n3 rows",
	}}
	innerPath := filepath.Join(dir, "root.inner")
	_, err := Merge(context.Background(), innerPath, inner, []Part{
		part(t, dir, "root.inner.x", fixture.KindInteger, "1", "2", "3"),
		part(t, dir, "root.inner.y", fixture.KindInteger, "4", "5", "6"),
	})
	require.NoError(t, err)
	require.Len(t, readLines(t, innerPath), 6)

	innerPart := PartOf(inner, innerPath)
	assert.Equal(t, 1, innerPart.Header)
	assert.Equal(t, 2, innerPart.Footer)

	outer := fixture.Spec{Name: "root", Kind: fixture.KindObject, Size: 3}
	dst := filepath.Join(dir, "root")
	rows, err := Merge(context.Background(), dst, outer, []Part{
		part(t, dir, "root.id", fixture.KindSerial, seq(3)...),
		innerPart,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, []string{"0,1,4", "1,2,5", "2,3,6"}, readLines(t, dst))
}

func TestMerge_JSONObjects(t *testing.T) {
	dir := t.TempDir()
	parts := []Part{
		part(t, dir, "root.a", fixture.KindInteger, "1", "2", "", "4", "5"),
		part(t, dir, "root.b", fixture.KindText, "x", "y", "z", "", "w"),
	}
	spec := fixture.Spec{Name: "root", Kind: fixture.KindJSON, Size: 5}
	dst := filepath.Join(dir, "out")
	_, err := Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)

	lines := readLines(t, dst)
	require.Len(t, lines, 5)
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		assert.Contains(t, rec, "a")
		assert.Contains(t, rec, "b")
	}
	assert.Equal(t, `{"a":"1","b":"x"}`, lines[0])
	assert.Equal(t, `{"a":null,"b":"z"}`, lines[2])
	assert.Equal(t, `{"a":"4","b":""}`, lines[3])
}

func TestMerge_NestedContainersAndArrays(t *testing.T) {
	dir := t.TempDir()
	parts := []Part{
		part(t, dir, "root.u.id", fixture.KindSerial, "0", "1"),
		part(t, dir, "root.u.tags", fixture.KindArray, `["a","b"]`, `["c",null]`),
		part(t, dir, "root.u.meta", fixture.KindJSON, `{"k":"v"}`, `{"k":"w"}`),
	}
	spec := fixture.Spec{Name: "root.u", Kind: fixture.KindJSONArray, Size: 2}
	dst := filepath.Join(dir, "out")
	_, err := Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)

	want := []string{
		`[{"id":"0","tags":["a","b"],"meta":{"k":"v"}}]`,
		`[{"id":"1","tags":["c",null],"meta":{"k":"w"}}]`,
	}
	if diff := cmp.Diff(want, readLines(t, dst)); diff != "" {
		t.Fatalf("json_array rows mismatch (-want +got):\n%s", diff)
	}

	list := fixture.Spec{Name: "root.tags", Kind: fixture.KindArray, Size: 2}
	elems := []Part{
		part(t, dir, "root.tags.0", fixture.KindInteger, "1", ""),
		part(t, dir, "root.tags.1", fixture.KindString, "a", "b"),
	}
	_, err = Merge(context.Background(), dst, list, elems)
	require.NoError(t, err)
	assert.Equal(t, []string{`["1","a"]`, `[null,"b"]`}, readLines(t, dst))
}

func TestMerge_InvalidNestedJSON(t *testing.T) {
	dir := t.TempDir()
	parts := []Part{part(t, dir, "root.m", fixture.KindMap, "{broken")}
	_, err := Merge(context.Background(), filepath.Join(dir, "out"), fixture.Spec{Name: "root", Kind: fixture.KindJSON, Size: 1}, parts)
	assert.ErrorIs(t, err, fault.ErrIntegrity)
}

func TestMerge_RowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")

	uneven := []Part{
		part(t, dir, "root.a", fixture.KindInteger, "1", "2", "3"),
		part(t, dir, "root.b", fixture.KindInteger, "1", "2"),
	}
	_, err := Merge(context.Background(), dst, fixture.Spec{Name: "root", Kind: fixture.KindObject, Size: 3}, uneven)
	require.ErrorIs(t, err, fault.ErrIntegrity)
	assert.Equal(t, "root", fault.NodeOf(err))

	even := uneven[:1]
	_, err = Merge(context.Background(), dst, fixture.Spec{Name: "root", Kind: fixture.KindObject, Size: 4,
		Metadata: fixture.Metadata{"header": true}}, even)
	require.ErrorIs(t, err, fault.ErrIntegrity)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "no artifact is left behind")
}

func TestMerge_RejectsLeavesAndBadHeader(t *testing.T) {
	dir := t.TempDir()
	parts := []Part{part(t, dir, "root.a", fixture.KindInteger, "1")}
	_, err := Merge(context.Background(), filepath.Join(dir, "o"), fixture.Spec{Name: "root.a", Kind: fixture.KindInteger, Size: 1}, parts)
	assert.ErrorIs(t, err, fault.ErrConfig)

	_, err = Merge(context.Background(), filepath.Join(dir, "o"), fixture.Spec{Name: "root", Kind: fixture.KindObject, Size: 1,
		Metadata: fixture.Metadata{"header": 3}}, parts)
	assert.ErrorIs(t, err, fault.ErrConfig)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatGzip, FormatFor("out.csv.gz"))
	assert.Equal(t, FormatSQLite, FormatFor("out.DB"))
	assert.Equal(t, FormatSQLite, FormatFor("out.sqlite"))
	assert.Equal(t, FormatCopy, FormatFor("out.csv"))
}

func mergedArtifact(t *testing.T) Artifact {
	t.Helper()
	dir := t.TempDir()
	parts := []Part{
		part(t, dir, "root.users.id", fixture.KindSerial, seq(5)...),
		part(t, dir, "root.users.score", fixture.KindFloat, "1.5", "", "2.5", "3", "4"),
		part(t, dir, "root.users.name", fixture.KindString, "ann", "bob", "", "dee", "eve"),
	}
	spec := fixture.Spec{Name: "root.users", Kind: fixture.KindObject, Size: 5}
	dst := filepath.Join(dir, "root.users")
	_, err := Merge(context.Background(), dst, spec, parts)
	require.NoError(t, err)
	return Artifact{Name: spec.Name, Path: dst, Parts: parts, Tabular: true}
}

func TestExport_CopyAndGzip(t *testing.T) {
	a := mergedArtifact(t)
	want, err := os.ReadFile(a.Path)
	require.NoError(t, err)

	out := t.TempDir()
	plain := filepath.Join(out, "nested", "users.csv")
	require.NoError(t, Export(context.Background(), a, plain))
	got, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	packed := filepath.Join(out, "users.csv.gz")
	require.NoError(t, Export(context.Background(), a, packed))
	f, err := os.Open(packed)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	got, err = io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "users.csv", zr.Name)
}

func TestExport_SQLite(t *testing.T) {
	a := mergedArtifact(t)
	dest := filepath.Join(t.TempDir(), "users.db")
	require.NoError(t, Export(context.Background(), a, dest))

	db, err := sql.Open("sqlite", dest)
	require.NoError(t, err)
	defer db.Close()

	var count, nullScores, emptyNames int
	var sum float64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), SUM(id) FROM users`).Scan(&count, &sum))
	assert.Equal(t, 5, count)
	assert.Equal(t, 10.0, sum)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE score IS NULL`).Scan(&nullScores))
	assert.Equal(t, 1, nullScores)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users WHERE name = ''`).Scan(&emptyNames))
	assert.Equal(t, 1, emptyNames)
}

func TestExport_SQLiteRejectsJSONRoots(t *testing.T) {
	a := mergedArtifact(t)
	a.Tabular = false
	dest := filepath.Join(t.TempDir(), "users.db")
	require.Error(t, Export(context.Background(), a, dest))
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestClean(t *testing.T) {
	cases := []struct{ in, want string }{
		{`{"a":"1","b":"true","c":"x1","d":["2","-3.5e2"]}`, `{"a":1,"b":true,"c":"x1","d":[2,-3.5e2]}`},
		{`["1","2","3"]`, `[1,2,3]`},
		{`{"10":"a"}`, `{"10":"a"}`},
		{`{"a":"01","b":"no"}`, `{"a":"01","b":"no"}`},
		{`1,true,abc`, `1,true,abc`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Clean(tc.in), tc.in)
	}
}

func TestStream(t *testing.T) {
	src := filepath.Join(t.TempDir(), "rows")
	require.NoError(t, cache.WriteLines(src, []string{`{"a":"1"}`, `{"a":"x"}`}))

	var raw, cleaned bytes.Buffer
	require.NoError(t, Stream(context.Background(), &raw, src, false))
	require.NoError(t, Stream(context.Background(), &cleaned, src, true))
	assert.Equal(t, "{\"a\":\"1\"}\n{\"a\":\"x\"}\n", raw.String())
	assert.Equal(t, "{\"a\":1}\n{\"a\":\"x\"}\n", cleaned.String())
}
