package policy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/usage_mon/internal/domain"
)

// File is the on-disk YAML format for seeding app policies.
type File struct {
	Policies []FileEntry `yaml:"policies"`
}

// FileEntry is one app's settings in a policy file.
type FileEntry struct {
	Package           string `yaml:"package"`
	Name              string `yaml:"name,omitempty"`
	Tracked           bool   `yaml:"tracked"`
	TimeLimitMinutes  int    `yaml:"time_limit_minutes,omitempty"`
	RequiresIntention bool   `yaml:"requires_intention,omitempty"`
}

// LoadFile reads and validates a policy file.
func LoadFile(path string) ([]domain.AppPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML policy data.
func Parse(data []byte) ([]domain.AppPolicy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	seen := make(map[string]bool, len(f.Policies))
	policies := make([]domain.AppPolicy, 0, len(f.Policies))
	for i, e := range f.Policies {
		pkg := strings.TrimSpace(e.Package)
		if pkg == "" {
			return nil, fmt.Errorf("policy %d: package is required", i)
		}
		if e.TimeLimitMinutes < 0 {
			return nil, fmt.Errorf("policy %s: time_limit_minutes must be >= 0", pkg)
		}
		if seen[pkg] {
			return nil, fmt.Errorf("policy %s: duplicate package", pkg)
		}
		seen[pkg] = true

		policies = append(policies, domain.AppPolicy{
			Package:           pkg,
			Name:              e.Name,
			Tracked:           e.Tracked,
			TimeLimitMinutes:  e.TimeLimitMinutes,
			RequiresIntention: e.RequiresIntention,
		})
	}
	return policies, nil
}

// Marshal encodes policies in the policy file format.
func Marshal(policies []domain.AppPolicy) ([]byte, error) {
	f := File{Policies: make([]FileEntry, 0, len(policies))}
	for _, p := range policies {
		f.Policies = append(f.Policies, FileEntry{
			Package:           p.Package,
			Name:              p.Name,
			Tracked:           p.Tracked,
			TimeLimitMinutes:  p.TimeLimitMinutes,
			RequiresIntention: p.RequiresIntention,
		})
	}
	return yaml.Marshal(f)
}

// Seed writes every policy to the store, replacing existing settings.
func Seed(ctx context.Context, store domain.PolicyStore, policies []domain.AppPolicy) error {
	for _, p := range policies {
		if err := store.PutPolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to store policy %s: %w", p.Package, err)
		}
	}
	return nil
}
