package commands

import (
	"strings"

	"golang.org/x/text/cases"
)

// Canonical command names. Aliases resolve to one of these.
const (
	Balance   = "balance"
	Earn      = "earn"
	Buy       = "buy"
	Shop      = "sell-list"
	Inventory = "inventory"
	Transfer  = "transfer"
)

var aliases = map[string]string{
	"saldo":      Balance,
	"balance":    Balance,
	"bal":        Balance,
	"trabalhar":  Earn,
	"earn":       Earn,
	"work":       Earn,
	"loja":       Shop,
	"shop":       Shop,
	"sell-list":  Shop,
	"comprar":    Buy,
	"buy":        Buy,
	"inventario": Inventory,
	"inventário": Inventory,
	"inventory":  Inventory,
	"inv":        Inventory,
	"transferir": Transfer,
	"transfer":   Transfer,
	"pay":        Transfer,
}

// Parse splits a prefixed chat message into the typed command word and its
// arguments. ok is false when text does not start with prefix or has no
// command word.
func Parse(text, prefix string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// Resolve maps a typed command word to its canonical name.
func Resolve(name string) (string, bool) {
	canonical, ok := aliases[cases.Fold().String(name)]
	return canonical, ok
}
