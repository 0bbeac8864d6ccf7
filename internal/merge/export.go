package merge

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"genesynth/internal/cache"
	"genesynth/internal/fault"
)

// Format is how an artifact is written to its destination.
type Format string

const (
	FormatCopy   Format = "copy"
	FormatGzip   Format = "gzip"
	FormatSQLite Format = "sqlite"
)

// FormatFor picks the export format from the destination's extension.
func FormatFor(dest string) Format {
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".gz":
		return FormatGzip
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	return FormatCopy
}

// Artifact is a finished root container ready for export.
type Artifact struct {
	Name string
	Path string
	// Parts and Table are used by column-oriented sinks.
	Parts []Part
	Table string
	// Tabular is false for JSON and list layouts.
	Tabular bool
}

// Export writes a to dest. Nothing appears at dest unless the export
// succeeds.
func Export(ctx context.Context, a Artifact, dest string) error {
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	switch FormatFor(dest) {
	case FormatGzip:
		return exportGzip(a.Path, dest)
	case FormatSQLite:
		if !a.Tabular {
			return fault.Configf(a.Name, "only tabular roots can be exported to SQLite")
		}
		return exportSQLite(ctx, a, dest)
	}
	return exportCopy(a.Path, dest)
}

func exportCopy(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return cache.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func exportGzip(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return cache.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		gz := gzip.NewWriter(w)
		gz.Name = strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))
		if _, err := io.Copy(gz, in); err != nil {
			return err
		}
		return gz.Close()
	})
}

// quotedLiteral matches a JSON string that only holds a number or a boolean,
// in value position.
var quotedLiteral = regexp.MustCompile(`([:\[,]\s*)"(-?(?:0|[1-9]\d*)(?:\.\d+)?(?:[eE][+-]?\d+)?|true|false)"(\s*[,}\]])`)

// Clean strips the quotes around numeric and boolean values in a JSON row.
func Clean(line string) string {
	// Adjacent matches share a delimiter, so repeat until stable.
	for {
		next := quotedLiteral.ReplaceAllString(line, "$1$2$3")
		if next == line {
			return line
		}
		line = next
	}
}

// Stream copies the artifact to w line by line, optionally through Clean.
func Stream(ctx context.Context, w io.Writer, src string, clean bool) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(w)
	sc := cache.NewLineScanner(f)
	for n := 0; sc.Scan(); n++ {
		if n%1024 == 0 {
			if err := context.Cause(ctx); err != nil {
				return err
			}
		}
		line := sc.Text()
		if clean {
			line = Clean(line)
		}
		if err := writeLine(bw, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
