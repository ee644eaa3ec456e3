package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceSpawn places one gatherable node.
type ResourceSpawn struct {
	Kind         string `yaml:"kind"` // tree, rock, fishing
	Name         string `yaml:"name"`
	Layer        int32  `yaml:"layer"`
	X            int32  `yaml:"x"`
	Z            int32  `yaml:"z"`
	Yield        string `yaml:"yield"`
	GatherTicks  int    `yaml:"gather_ticks"`
	Charges      int    `yaml:"charges"`
	RespawnTicks int    `yaml:"respawn_ticks"`
}

type resourceListFile struct {
	Resources []ResourceSpawn `yaml:"resources"`
}

// LoadResourceList loads resource node placements from a YAML file.
func LoadResourceList(path string) ([]ResourceSpawn, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resource_list: %w", err)
	}
	var f resourceListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse resource_list: %w", err)
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		if r.GatherTicks < 1 {
			r.GatherTicks = 4
		}
		if r.Charges < 1 {
			r.Charges = 1
		}
	}
	return f.Resources, nil
}
