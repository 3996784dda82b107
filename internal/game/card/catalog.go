package card

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog 只读卡牌查询（外部提供的静态数据）
type Catalog interface {
	Archetype(id ID) (Archetype, bool)
}

// MapCatalog is an in-memory Catalog. It must not be mutated once shared with running matches.
type MapCatalog map[ID]Archetype

func (m MapCatalog) Archetype(id ID) (Archetype, bool) {
	a, ok := m[id]
	return a, ok
}

type catalogFile struct {
	Cards []struct {
		ID        ID        `yaml:"id"`
		Archetype Archetype `yaml:"archetype"`
	} `yaml:"cards"`
}

// LoadCatalogFile reads a YAML card list:
//
//	cards:
//	  - id: archer
//	    archetype: ATTACK
func LoadCatalogFile(path string) (MapCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (MapCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	out := make(MapCatalog, len(f.Cards))
	for _, c := range f.Cards {
		if c.ID == "" {
			return nil, fmt.Errorf("parse catalog: card entry missing id")
		}
		if _, dup := out[c.ID]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate card %q", c.ID)
		}
		out[c.ID] = c.Archetype
	}
	return out, nil
}
