package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meal-planner/internal/recipe"
)

// ManifestName is the optional file listing the recipe files of a directory.
const ManifestName = "recipes.json"

const maxParallelReads = 8

// LoadDir reads every recipe of dir and builds a catalog.
//
// When dir contains a manifest, only the files it lists are read, in manifest
// order. Otherwise every .json, .yaml and .yml file is read in name order.
// A recipe that cannot be read or decoded is logged and left out.
func LoadDir(ctx context.Context, dir string, logger *zap.Logger) (*Catalog, error) {
	files, err := listRecipeFiles(dir)
	if err != nil {
		return nil, err
	}

	loaded := make([]*recipe.Recipe, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				failures[i] = fmt.Errorf("failed to read recipe file %s: %w", name, err)
				return nil
			}
			rec, err := recipe.Parse(name, data)
			if err != nil {
				failures[i] = err
				return nil
			}
			loaded[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load recipes from %s: %w", dir, err)
	}

	recipes := make([]recipe.Recipe, 0, len(files))
	for i, rec := range loaded {
		if rec == nil {
			logger.Warn("skipping recipe", zap.String("file", files[i]), zap.Error(failures[i]))
			continue
		}
		recipes = append(recipes, *rec)
	}

	c, duplicates := New(recipes)
	for _, id := range duplicates {
		logger.Warn("duplicate recipe id, keeping the first one", zap.String("recipe_id", id))
	}
	logger.Info("recipe catalog loaded", zap.String("dir", dir), zap.Int("recipes", c.Len()))
	return c, nil
}

func listRecipeFiles(dir string) ([]string, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, ManifestName))
	switch {
	case err == nil:
		var files []string
		if err := json.Unmarshal(manifest, &files); err != nil {
			return nil, fmt.Errorf("failed to decode recipe manifest: %w", err)
		}
		return files, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read recipe manifest: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ManifestName {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
