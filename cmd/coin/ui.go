package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"golang.org/x/term"

	cl "coinbot/internal/cli"
	"coinbot/internal/economy"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	priceStyle  = cellStyle.Align(lipgloss.Right)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%s is required", label)
	}
	return string(raw), nil
}

func money(a economy.Amount) string {
	return "R$ " + a.String()
}

func renderShop(items []cl.ShopItem) {
	accent.Println("\n== SHOP ==")
	if len(items) == 0 {
		printInfo("The shop is empty.")
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "ITEM", "PRICE", "DESCRIPTION").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 2:
				return priceStyle
			default:
				return cellStyle
			}
		})
	for _, item := range items {
		t.Row(item.ID, item.Name, money(economy.Amount(item.PriceMinor)), item.Description)
	}
	fmt.Println(t.Render())
}

func renderEarn(out cl.EarnResponse) {
	res := out.Result
	switch res.Reason {
	case economy.ReasonNone:
		printSuccess(fmt.Sprintf("Earned %s. New balance: %s.", money(res.Reward), money(res.NewBalance)))
	case economy.ReasonCooldownActive:
		wait := time.Duration(out.CooldownRemainingMs) * time.Millisecond
		printWarn(fmt.Sprintf("Cooldown active: try again in %s.", wait.Round(time.Second)))
	default:
		printWarn(fmt.Sprintf("Rejected: %s (balance %s).", res.Reason, money(res.NewBalance)))
	}
}

func renderPurchase(res economy.PurchaseResult, query string) {
	switch res.Reason {
	case economy.ReasonNone:
		printSuccess(fmt.Sprintf("Bought %s for %s. New balance: %s.", res.Item.Name, money(res.Item.Price), money(res.NewBalance)))
	case economy.ReasonInsufficientFunds:
		printWarn(fmt.Sprintf("Balance %s is not enough for %s (%s).", money(res.Balance), res.Item.Name, money(res.Item.Price)))
	case economy.ReasonItemNotFound:
		printWarn(fmt.Sprintf("No item named %q. Run `coin shop` to see the catalog.", query))
	default:
		printWarn(fmt.Sprintf("Rejected: %s.", res.Reason))
	}
}

func renderInventory(lines []cl.InventoryLine) {
	accent.Println("\n== INVENTORY ==")
	if len(lines) == 0 {
		printInfo("Empty.")
		return
	}
	for _, line := range lines {
		fmt.Printf("%-24s x%d\n", line.Name, line.Count)
	}
}

func renderTransfer(res economy.TransferResult, recipient string) {
	switch res.Reason {
	case economy.ReasonNone:
		printSuccess(fmt.Sprintf("Sent %s to %s. Sender balance: %s; recipient balance: %s.",
			money(res.Amount), recipient, money(res.SenderBalance), money(res.RecipientBalance)))
	case economy.ReasonInsufficientFunds:
		printWarn(fmt.Sprintf("Balance %s is not enough to send %s.", money(res.SenderBalance), money(res.Amount)))
	default:
		printWarn(fmt.Sprintf("Rejected: %s.", res.Reason))
	}
}
