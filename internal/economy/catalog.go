package economy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

type ShopItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       Amount `json:"price_minor"`
	Description string `json:"description"`
}

// Catalog is an immutable, ordered item registry.
type Catalog struct {
	items  []ShopItem
	byName map[string]int
	byID   map[string]int
}

func NewCatalog(items []ShopItem) (*Catalog, error) {
	c := &Catalog{
		items:  make([]ShopItem, 0, len(items)),
		byName: make(map[string]int, len(items)),
		byID:   make(map[string]int, len(items)),
	}
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = strings.TrimSpace(item.Name)
		if item.ID == "" || item.Name == "" {
			return nil, fmt.Errorf("catalog item needs id and name: %+v", item)
		}
		if !item.Price.Valid() {
			return nil, fmt.Errorf("catalog item %q: price must be positive", item.ID)
		}
		nameKey, idKey := foldKey(item.Name), foldKey(item.ID)
		if _, dup := c.byName[nameKey]; dup {
			return nil, fmt.Errorf("catalog item %q: duplicate name %q", item.ID, item.Name)
		}
		if _, dup := c.byID[idKey]; dup {
			return nil, fmt.Errorf("catalog item %q: duplicate id", item.ID)
		}
		c.byName[nameKey] = len(c.items)
		c.byID[idKey] = len(c.items)
		c.items = append(c.items, item)
	}
	return c, nil
}

func MustNewCatalog(items []ShopItem) *Catalog {
	c, err := NewCatalog(items)
	if err != nil {
		panic(err)
	}
	return c
}

// FindByNameOrID matches names first, then ids, case-insensitively and exactly.
func (c *Catalog) FindByNameOrID(query string) (ShopItem, bool) {
	key := foldKey(query)
	if key == "" {
		return ShopItem{}, false
	}
	if i, ok := c.byName[key]; ok {
		return c.items[i], true
	}
	if i, ok := c.byID[key]; ok {
		return c.items[i], true
	}
	return ShopItem{}, false
}

// ByID is an exact, case-sensitive id lookup used when rendering inventories.
func (c *Catalog) ByID(id string) (ShopItem, bool) {
	i, ok := c.byID[foldKey(id)]
	if !ok || c.items[i].ID != id {
		return ShopItem{}, false
	}
	return c.items[i], true
}

func (c *Catalog) All() []ShopItem {
	return append([]ShopItem(nil), c.items...)
}

func (c *Catalog) Len() int {
	return len(c.items)
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// DefaultCatalog is the stock shop shipped with the bot.
func DefaultCatalog() *Catalog {
	return MustNewCatalog([]ShopItem{
		{ID: "pao", Name: "Pão Francês", Price: Coins(5), Description: "Quentinho e crocante."},
		{ID: "agua", Name: "Garrafa de Água", Price: Coins(8), Description: "Para matar a sede."},
		{ID: "maca", Name: "Maçã", Price: Coins(12), Description: "Uma maçã por dia..."},
		{ID: "pocao_cura", Name: "Poção de Cura", Price: Coins(50), Description: "Restaura sua energia."},
		{ID: "amuleto_sorte", Name: "Amuleto da Sorte", Price: Coins(200), Description: "Aumenta suas chances de sucesso."},
		{ID: "espada_lendaria", Name: "Espada Lendária", Price: Coins(1000), Description: "Uma espada forjada por lendas."},
		{ID: "armadura_divina", Name: "Armadura Divina", Price: Coins(2500), Description: "Proteção abençoada pelos deuses."},
	})
}
