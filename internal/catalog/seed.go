// Package catalog loads step definitions from YAML seed files.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"go-stepflow/internal/domain"
	"go-stepflow/internal/service"

	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk shape of a catalog seed.
type SeedFile struct {
	Steps []SeedStep `yaml:"steps"`
}

type SeedStep struct {
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	PromptTemplate string            `yaml:"prompt"`
	Order          int               `yaml:"order"`
	ResultKind     domain.ResultKind `yaml:"result_kind"`
}

// ParseSeedYAML decodes a seed file from YAML bytes.
func ParseSeedYAML(data []byte) (SeedFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return SeedFile{}, fmt.Errorf("catalog: seed payload is empty")
	}
	var file SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return SeedFile{}, fmt.Errorf("catalog: decode seed: %w", err)
	}
	if len(file.Steps) == 0 {
		return SeedFile{}, fmt.Errorf("catalog: seed defines no steps")
	}
	return file, nil
}

// LoadSeedFile loads a seed from an explicit file path.
func LoadSeedFile(path string) (SeedFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	file, err := ParseSeedYAML(content)
	if err != nil {
		return SeedFile{}, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return file, nil
}

// Seed defines every step whose name is not in the catalog yet. Existing
// definitions are left untouched.
func Seed(ctx context.Context, steps service.StepCatalog, file SeedFile, logger *slog.Logger) (created int, err error) {
	existing, err := steps.ListSteps(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s.Name] = true
	}

	for _, s := range file.Steps {
		if known[s.Name] {
			logger.Debug("seed step already defined", "name", s.Name)
			continue
		}
		_, err := steps.DefineStep(ctx, service.StepInput{
			Name:           s.Name,
			Description:    s.Description,
			PromptTemplate: s.PromptTemplate,
			Order:          s.Order,
			ResultKind:     s.ResultKind,
		})
		if err != nil {
			return created, fmt.Errorf("seed step %q: %w", s.Name, err)
		}
		created++
	}

	logger.Info("catalog seeded", "created", created, "skipped", len(file.Steps)-created)
	return created, nil
}
