package merge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"genesynth/internal/fixture"
)

// exportSQLite loads the root's columns into a single table of a fresh
// database file.
func exportSQLite(ctx context.Context, a Artifact, dest string) (err error) {
	if len(a.Parts) == 0 {
		return fmt.Errorf("%s: no columns to export", a.Name)
	}
	table := a.Table
	if table == "" {
		table = Part{Name: a.Name}.Key(false)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
			_ = os.Remove(tmpName + "-journal")
		}
	}()

	db, err := sql.Open("sqlite", tmpName)
	if err != nil {
		return fmt.Errorf("opening %s: %w", tmpName, err)
	}
	if err := loadTable(ctx, db, table, a); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

func loadTable(ctx context.Context, db *sql.DB, table string, a Artifact) error {
	cols := make([]string, len(a.Parts))
	marks := make([]string, len(a.Parts))
	for i, p := range a.Parts {
		cols[i] = quoteIdent(p.Key(false)) + " " + columnType(p.Kind)
		marks[i] = "?"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(a.Parts))
	_, err = zipLines(ctx, a.Name, a.Parts, func(values []string) error {
		for i, v := range values {
			if v == fixture.Null && !a.Parts[i].Kind.Textual() {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		_, err := stmt.ExecContext(ctx, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("loading table %s: %w", table, err)
	}
	return tx.Commit()
}

func columnType(k fixture.Kind) string {
	switch k {
	case fixture.KindSerial, fixture.KindInteger:
		return "INTEGER"
	case fixture.KindFloat, fixture.KindDecimal:
		return "REAL"
	}
	return "TEXT"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
