package dataimporter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RegisteredAgency is one entry of the agency registry file.
type RegisteredAgency struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Feed string `yaml:"feed"`
}

type Registry struct {
	Agencies []RegisteredAgency `yaml:"agencies"`
}

func LoadRegistry(path string) (*Registry, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	registry := &Registry{}
	if err := yaml.Unmarshal(contents, registry); err != nil {
		return nil, err
	}

	seen := map[int]bool{}
	for _, agency := range registry.Agencies {
		if agency.ID <= 0 {
			return nil, fmt.Errorf("agency %q needs a positive id", agency.Name)
		}
		if seen[agency.ID] {
			return nil, fmt.Errorf("duplicate agency id %d", agency.ID)
		}
		seen[agency.ID] = true
	}

	return registry, nil
}
