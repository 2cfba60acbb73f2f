// Package catalog loads shop definitions from TOML, YAML or JSON files.
//
// Prices are written in coins ("12", "12.50"); they are converted to minor
// units when the catalog is built.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"coinbot/internal/economy"
)

type fileItem struct {
	ID          string `json:"id" toml:"id" yaml:"id"`
	Name        string `json:"name" toml:"name" yaml:"name"`
	Price       price  `json:"price" toml:"price" yaml:"price"`
	Description string `json:"description" toml:"description" yaml:"description"`
}

type fileCatalog struct {
	Items []fileItem `json:"items" toml:"items" yaml:"items"`
}

// Load returns the built-in catalog when path is empty.
func Load(path string) (*economy.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return economy.DefaultCatalog(), nil
	}
	return LoadFile(path)
}

func LoadFile(path string) (*economy.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var fc fileCatalog
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(raw, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &fc)
	case ".json":
		err = json.Unmarshal(raw, &fc)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return build(fc)
}

func build(fc fileCatalog) (*economy.Catalog, error) {
	if len(fc.Items) == 0 {
		return nil, fmt.Errorf("catalog has no items")
	}
	items := make([]economy.ShopItem, 0, len(fc.Items))
	for _, fi := range fc.Items {
		amount, err := economy.AmountFromDecimal(fi.Price.d)
		if err != nil {
			return nil, fmt.Errorf("item %q: price %s: %w", fi.ID, fi.Price.d, err)
		}
		items = append(items, economy.ShopItem{
			ID:          fi.ID,
			Name:        fi.Name,
			Price:       amount,
			Description: fi.Description,
		})
	}
	return economy.NewCatalog(items)
}

// price accepts numbers or numeric strings in every supported format.
type price struct {
	d decimal.Decimal
}

func (p *price) set(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	p.d = d
	return nil
}

func (p *price) UnmarshalJSON(b []byte) error {
	return p.set(strings.Trim(string(b), `"`))
}

func (p *price) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case int64:
		p.d = decimal.NewFromInt(x)
	case float64:
		p.d = decimal.NewFromFloat(x)
	case string:
		return p.set(x)
	default:
		return fmt.Errorf("unsupported price value %v", v)
	}
	return nil
}

func (p *price) UnmarshalYAML(node *yaml.Node) error {
	return p.set(node.Value)
}
