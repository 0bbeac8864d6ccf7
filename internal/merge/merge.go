// Package merge combines children's cache files into a container artifact
// and exports finished artifacts to their destination.
package merge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"genesynth/internal/cache"
	"genesynth/internal/fault"
	"genesynth/internal/fixture"
)

// DefaultSep joins tabular columns when metadata sets no "sep".
const DefaultSep = ","

// Part is one child's cache file. Header and Footer count the framing lines
// a tabular child wrote around its data rows; they are skipped when zipping.
type Part struct {
	Name   string
	Path   string
	Kind   fixture.Kind
	Header int
	Footer int
}

// PartOf describes the cache file at path built for spec.
func PartOf(spec fixture.Spec, path string) Part {
	p := Part{Name: spec.Name, Path: path, Kind: spec.Kind}
	if spec.Kind.Layout() != fixture.LayoutTabular {
		return p
	}
	switch h := spec.Metadata["header"].(type) {
	case string:
		p.Header = lineCount(h)
	case bool:
		if h {
			p.Header = 1
		}
	}
	p.Footer = lineCount(spec.Metadata.String("footer", ""))
	return p
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Key is the column or object key for the part: the innermost name segment,
// or the full dotted name when full is set.
func (p Part) Key(full bool) string {
	if full {
		return p.Name
	}
	if i := strings.LastIndexByte(p.Name, '.'); i >= 0 {
		return p.Name[i+1:]
	}
	return p.Name
}

// Merge writes the container described by spec to dst and returns the number
// of data rows. Children are streamed line by line; row i of the output is
// built from line i of every part.
func Merge(ctx context.Context, dst string, spec fixture.Spec, parts []Part) (int, error) {
	layout := spec.Kind.Layout()
	if layout == "" {
		return 0, fault.Configf(spec.Name, "%s is not a container", spec.Kind)
	}
	if len(parts) == 0 {
		return 0, fault.Integrityf(spec.Name, "container has no children to merge")
	}
	fullKey, err := spec.Metadata.Bool("full_key", false)
	if err != nil {
		return 0, fault.Configf(spec.Name, "%v", err)
	}

	var row rowFunc
	var header, footer string
	switch layout {
	case fixture.LayoutTabular:
		sep := spec.Metadata.String("sep", DefaultSep)
		row = tabularRow(sep)
		if header, err = tabularHeader(spec.Metadata, sep, parts, fullKey); err != nil {
			return 0, fault.Configf(spec.Name, "%v", err)
		}
		footer = spec.Metadata.String("footer", "")
	case fixture.LayoutJSONObject:
		row = objectRow(parts, fullKey, false)
	case fixture.LayoutJSONArray:
		row = objectRow(parts, fullKey, true)
	case fixture.LayoutList:
		row = listRow(parts)
	}

	var rows int
	err = cache.WriteAtomic(dst, 0o644, func(w io.Writer) error {
		if header != "" {
			if err := writeLine(w, header); err != nil {
				return err
			}
		}
		n, err := zipLines(ctx, spec.Name, parts, func(values []string) error {
			out, err := row(values)
			if err != nil {
				return err
			}
			return writeLine(w, out)
		})
		if err != nil {
			return err
		}
		// Header and footer lines are not data rows.
		if n != spec.Size {
			return fault.Integrityf(spec.Name, "expected %d data rows, got %d", spec.Size, n)
		}
		rows = n
		if footer != "" {
			return writeLine(w, footer)
		}
		return nil
	})
	if err != nil {
		return 0, fault.Wrap(fault.ErrGeneration, spec.Name, err)
	}
	return rows, nil
}

type rowFunc func(values []string) (string, error)

func writeLine(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// zipLines reads the data lines of every part in lockstep. All parts must
// have the same number of data lines.
func zipLines(ctx context.Context, node string, parts []Part, fn func(values []string) error) (int, error) {
	readers := make([]*partLines, len(parts))
	for i, p := range parts {
		f, err := os.Open(p.Path)
		if err != nil {
			return 0, fmt.Errorf("opening %s: %w", p.Name, err)
		}
		defer f.Close()
		readers[i] = &partLines{sc: cache.NewLineScanner(f), skip: p.Header, footer: p.Footer}
	}

	values := make([]string, len(parts))
	for row := 0; ; row++ {
		if row%1024 == 0 {
			if err := context.Cause(ctx); err != nil {
				return row, err
			}
		}
		ended := 0
		for i, r := range readers {
			v, ok, err := r.next()
			if err != nil {
				return row, fmt.Errorf("reading %s: %w", parts[i].Name, err)
			}
			if !ok {
				ended++
				continue
			}
			values[i] = v
		}
		switch {
		case ended == len(parts):
			return row, nil
		case ended > 0:
			return row, fault.Integrityf(node, "children disagree on row count at row %d", row)
		}
		if err := fn(values); err != nil {
			return row, err
		}
	}
}

// partLines yields the data lines of one part. The footer is held back by
// reading footer lines ahead and dropping them at EOF.
type partLines struct {
	sc      *bufio.Scanner
	skip    int
	footer  int
	pending []string
}

func (p *partLines) next() (string, bool, error) {
	for ; p.skip > 0; p.skip-- {
		if !p.sc.Scan() {
			return "", false, p.sc.Err()
		}
	}
	for len(p.pending) <= p.footer {
		if !p.sc.Scan() {
			return "", false, p.sc.Err()
		}
		p.pending = append(p.pending, p.sc.Text())
	}
	v := p.pending[0]
	p.pending = append(p.pending[:0], p.pending[1:]...)
	return v, true, nil
}

func tabularRow(sep string) rowFunc {
	return func(values []string) (string, error) {
		return strings.Join(values, sep), nil
	}
}

// tabularHeader returns the literal header, the joined child keys when the
// header is true, or "" when there is none.
func tabularHeader(meta fixture.Metadata, sep string, parts []Part, fullKey bool) (string, error) {
	switch h := meta["header"].(type) {
	case nil:
		return "", nil
	case string:
		return h, nil
	case bool:
		if !h {
			return "", nil
		}
		keys := make([]string, len(parts))
		for i, p := range parts {
			keys[i] = p.Key(fullKey)
		}
		return strings.Join(keys, sep), nil
	default:
		return "", fmt.Errorf("header must be a string or a boolean, got %T", h)
	}
}

// jsonValue renders one cell. Container children already hold JSON; a null
// position of a non-text leaf becomes null; everything else is a string.
func jsonValue(p Part, v string) ([]byte, error) {
	if p.Kind.IsContainer() {
		if !json.Valid([]byte(v)) {
			return nil, fault.Integrityf(p.Name, "row is not valid JSON")
		}
		return []byte(v), nil
	}
	if v == fixture.Null && !p.Kind.Textual() {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func objectRow(parts []Part, fullKey, wrap bool) rowFunc {
	keys := make([][]byte, len(parts))
	for i, p := range parts {
		keys[i], _ = json.Marshal(p.Key(fullKey))
	}
	return func(values []string) (string, error) {
		var b strings.Builder
		if wrap {
			b.WriteByte('[')
		}
		b.WriteByte('{')
		for i, v := range values {
			if i > 0 {
				b.WriteByte(',')
			}
			b.Write(keys[i])
			b.WriteByte(':')
			enc, err := jsonValue(parts[i], v)
			if err != nil {
				return "", err
			}
			b.Write(enc)
		}
		b.WriteByte('}')
		if wrap {
			b.WriteByte(']')
		}
		return b.String(), nil
	}
}

func listRow(parts []Part) rowFunc {
	return func(values []string) (string, error) {
		var b strings.Builder
		b.WriteByte('[')
		for i, v := range values {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, err := jsonValue(parts[i], v)
			if err != nil {
				return "", err
			}
			b.Write(enc)
		}
		b.WriteByte(']')
		return b.String(), nil
	}
}
