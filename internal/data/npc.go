package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LootEntry is one roll on an NPC's loot table.
type LootEntry struct {
	Item   string  `yaml:"item"`
	Chance float64 `yaml:"chance"` // 0.0-1.0
	Min    int     `yaml:"min"`
	Max    int     `yaml:"max"`
}

// NpcTemplate holds static data for an NPC type loaded from YAML.
type NpcTemplate struct {
	NpcID        int32       `yaml:"npc_id"`
	Name         string      `yaml:"name"`
	Level        int32       `yaml:"level"`
	HP           int32       `yaml:"hp"`
	AC           int32       `yaml:"ac"`
	STR          int32       `yaml:"str"`
	DEX          int32       `yaml:"dex"`
	AtkDmg       int32       `yaml:"atk_dmg"`
	CombatRange  int32       `yaml:"combat_range"` // 1 = melee
	AttackType   string      `yaml:"attack_type"`  // melee, ranged, magic
	AttackTicks  int         `yaml:"attack_ticks"`
	Leash        int32       `yaml:"leash"`
	AggroRange   int32       `yaml:"aggro_range"`
	Aggressive   bool        `yaml:"aggressive"`
	TilesPerTick int         `yaml:"tiles_per_tick"`
	WanderRadius int32       `yaml:"wander_radius"`
	RespawnTicks int         `yaml:"respawn_ticks"`
	Loot         []LootEntry `yaml:"loot"`
}

// SpawnEntry defines where and how many NPCs to spawn.
type SpawnEntry struct {
	NpcID   int32 `yaml:"npc_id"`
	Layer   int32 `yaml:"layer"`
	X       int32 `yaml:"x"`
	Z       int32 `yaml:"z"`
	Count   int   `yaml:"count"`
	RandomX int32 `yaml:"randomx"`
	RandomZ int32 `yaml:"randomz"`
}

type npcListFile struct {
	Npcs []NpcTemplate `yaml:"npcs"`
}

type spawnListFile struct {
	Spawns []SpawnEntry `yaml:"spawns"`
}

// NpcTable holds all NPC templates indexed by NpcID.
type NpcTable struct {
	templates map[int32]*NpcTemplate
}

// LoadNpcTable loads NPC templates from a YAML file.
func LoadNpcTable(path string) (*NpcTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read npc_list: %w", err)
	}
	var f npcListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse npc_list: %w", err)
	}
	return NewNpcTable(f.Npcs), nil
}

// NewNpcTable indexes templates, filling in defaults for omitted fields.
func NewNpcTable(npcs []NpcTemplate) *NpcTable {
	t := &NpcTable{templates: make(map[int32]*NpcTemplate, len(npcs))}
	for i := range npcs {
		npc := &npcs[i]
		if npc.CombatRange < 1 {
			npc.CombatRange = 1
		}
		if npc.TilesPerTick < 1 {
			npc.TilesPerTick = 1
		}
		if npc.AttackTicks < 1 {
			npc.AttackTicks = 4
		}
		if npc.AttackType == "" {
			npc.AttackType = "melee"
		}
		t.templates[npc.NpcID] = npc
	}
	return t
}

// Get returns an NPC template by ID, or nil if not found.
func (t *NpcTable) Get(npcID int32) *NpcTemplate {
	return t.templates[npcID]
}

// Count returns the number of loaded templates.
func (t *NpcTable) Count() int {
	return len(t.templates)
}

// LoadSpawnList loads spawn entries from a YAML file.
func LoadSpawnList(path string) ([]SpawnEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	var f spawnListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	return f.Spawns, nil
}
