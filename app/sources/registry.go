package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DynamicProvider yields source records managed outside the binary, typically
// rows in the source store.
type DynamicProvider interface {
	GetActiveSources(ctx context.Context) ([]Source, error)
}

// Registry assembles the source set for a scan: compiled-in statics, YAML
// overrides from the sources directory, and dynamic store records, merged by
// name in that order.
type Registry struct {
	sourcesDir string
	dynamic    DynamicProvider
}

func NewRegistry(sourcesDir string, dynamic DynamicProvider) *Registry {
	return &Registry{
		sourcesDir: sourcesDir,
		dynamic:    dynamic,
	}
}

// Collect returns the merged source list. A failing dynamic lookup degrades
// to the static set rather than failing the scan.
func (r *Registry) Collect(ctx context.Context) ([]Source, error) {
	merged := make(map[string]Source)
	var order []string

	add := func(s Source) {
		if s.Name == "" || s.URL == "" {
			return
		}
		if _, exists := merged[s.Name]; !exists {
			order = append(order, s.Name)
		}
		merged[s.Name] = s
	}

	for _, s := range Static() {
		add(s)
	}

	fileSources, err := r.loadFiles()
	if err != nil {
		return nil, err
	}
	for _, s := range fileSources {
		add(s)
	}

	if r.dynamic != nil {
		dynamicSources, err := r.dynamic.GetActiveSources(ctx)
		if err != nil {
			slog.Warn("Failed to load dynamic sources, continuing with static set", "error", err)
		} else {
			for _, s := range dynamicSources {
				add(s)
			}
		}
	}

	out := make([]Source, 0, len(order))
	for _, name := range order {
		s := merged[name]
		if err := validate(s); err != nil {
			slog.Warn("Skipping invalid source", "source", name, "error", err)
			continue
		}
		out = append(out, s)
	}

	return out, nil
}

// Filter restricts the list to the requested source identities (name or
// store-assigned id). An empty selection keeps everything.
func Filter(list []Source, selected []string) []Source {
	if len(selected) == 0 {
		return list
	}

	wanted := make(map[string]bool, len(selected))
	for _, id := range selected {
		wanted[id] = true
	}

	out := make([]Source, 0, len(list))
	for _, s := range list {
		if wanted[s.Name] || (s.ID != "" && wanted[s.ID]) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) loadFiles() ([]Source, error) {
	if r.sourcesDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(r.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(r.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}

	var out []Source
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var s Source
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		if s.Name == "" {
			fileName := filepath.Base(file)
			s.Name = strings.TrimSuffix(fileName, ".yml")
		}

		out = append(out, s)
	}

	return out, nil
}

func validate(s Source) error {
	switch s.Type {
	case TypeRSS, TypeScrape:
	default:
		return fmt.Errorf("unknown source type '%s'", s.Type)
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("source URL must be absolute: %s", s.URL)
	}
	return nil
}
