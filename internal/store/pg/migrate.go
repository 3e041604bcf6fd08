package pg

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// RunMigrations ejecuta en orden los *_up.sql del filesystem embebido.
func (s *Store) RunMigrations(ctx context.Context, fsys fs.FS, dir string) error {
	return s.runMigrations(ctx, fsys, dir, "_up.sql", false)
}

// RunMigrationsDown ejecuta los *_down.sql en orden inverso.
func (s *Store) RunMigrationsDown(ctx context.Context, fsys fs.FS, dir string) error {
	return s.runMigrations(ctx, fsys, dir, "_down.sql", true)
}

func (s *Store) runMigrations(ctx context.Context, fsys fs.FS, dir, suffix string, reverse bool) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}
