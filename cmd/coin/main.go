package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"coinbot/internal/auth"
	cl "coinbot/internal/cli"
	"coinbot/internal/config"
	"coinbot/internal/economy"
	"coinbot/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	var apiBase string

	root := &cobra.Command{
		Use:          "coin",
		Short:        "Operator CLI for the coinbot economy",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (defaults to saved credentials, then COIN_API_BASE_URL)")

	root.AddCommand(
		newLoginCmd(cfg, &apiBase),
		newLogoutCmd(),
		newKeygenCmd(),
		newShopCmd(cfg, &apiBase),
		newBalanceCmd(cfg, &apiBase),
		newEarnCmd(cfg, &apiBase),
		newBuyCmd(cfg, &apiBase),
		newInventoryCmd(cfg, &apiBase),
		newTransferCmd(cfg, &apiBase),
		newImportLegacyCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func savedCredentials() cl.Credentials {
	saved, err := cl.DefaultCredentialStore()
	if err != nil {
		return cl.Credentials{}
	}
	creds, err := saved.Load()
	if err != nil && !errors.Is(err, cl.ErrNotLoggedIn) {
		printWarn(err.Error())
	}
	return creds
}

func newClient(cfg config.CLIConfig, apiBase *string) *cl.Client {
	creds := savedCredentials()
	base := strings.TrimSpace(*apiBase)
	if base == "" {
		base = creds.APIBaseURL
	}
	if base == "" {
		base = cfg.APIBaseURL
	}
	key := cfg.APIKey
	if key == "" {
		key = creds.APIKey
	}
	return cl.NewClient(base, key)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newLoginCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save an API key for later commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := promptSecret("API key")
			if err != nil {
				return err
			}
			base := strings.TrimSpace(*apiBase)
			if base == "" {
				base = cfg.APIBaseURL
			}
			client := cl.NewClient(base, key)

			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := client.Shop(ctx); err != nil {
				return fmt.Errorf("verify key: %w", err)
			}
			creds, err := cl.DefaultCredentialStore()
			if err != nil {
				return err
			}
			if err := creds.Save(cl.Credentials{
				APIBaseURL: client.BaseURL,
				APIKey:     key,
				SavedAt:    time.Now().UTC(),
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := cl.DefaultCredentialStore()
			if err != nil {
				return err
			}
			if err := creds.Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and the hash for COINBOT_API_KEY_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, hash, err := auth.GenerateKey(bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			printInfo("API key (give to operators): " + key)
			printInfo("COINBOT_API_KEY_HASH=" + hash)
			return nil
		},
	}
}

func newShopCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "shop",
		Aliases: []string{"loja"},
		Short:   "List the shop catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			items, err := newClient(cfg, apiBase).Shop(ctx)
			if err != nil {
				return err
			}
			renderShop(items)
			return nil
		},
	}
}

func newBalanceCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "balance <user-id>",
		Aliases: []string{"saldo"},
		Short:   "Show a user's balance",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			bal, err := newClient(cfg, apiBase).Balance(ctx, args[0])
			if err != nil {
				return err
			}
			accent.Printf("%s: ", bal.UserID)
			fmt.Println(money(economy.Amount(bal.BalanceMinor)))
			return nil
		},
	}
}

func newEarnCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "earn <user-id>",
		Aliases: []string{"trabalhar"},
		Short:   "Run the periodic reward for a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg, apiBase).Earn(ctx, args[0])
			if err != nil {
				return err
			}
			renderEarn(out)
			return nil
		},
	}
}

func newBuyCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "buy <user-id> <item name or id>",
		Aliases: []string{"comprar"},
		Short:   "Buy a catalog item for a user",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(cfg, apiBase).Purchase(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			renderPurchase(res, strings.Join(args[1:], " "))
			return nil
		},
	}
}

func newInventoryCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "inventory <user-id>",
		Aliases: []string{"inv", "inventario"},
		Short:   "Show a user's items",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			lines, err := newClient(cfg, apiBase).Inventory(ctx, args[0])
			if err != nil {
				return err
			}
			renderInventory(lines)
			return nil
		},
	}
}

func newTransferCmd(cfg config.CLIConfig, apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "transfer <sender-id> <recipient-id> <amount>",
		Aliases: []string{"pay", "transferir"},
		Short:   "Move coins between users",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(cfg, apiBase).Transfer(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			renderTransfer(res, args[1])
			return nil
		},
	}
}

func newImportLegacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-legacy <economia.json>",
		Short: "Import a legacy economia.json into the configured store",
		Long: "Reads COINBOT_STORE and related variables, opens the store directly and " +
			"replaces matching profiles with the ones in the legacy file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeCfg, err := config.LoadStoreFromEnv()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			backend, err := store.Open(cmd.Context(), storeCfg, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			n, err := store.ImportLegacy(cmd.Context(), backend, f)
			if err != nil {
				if errors.Is(err, economy.ErrStorageIO) {
					printError("Store write failed; nothing was imported.")
				}
				return err
			}
			printSuccess(fmt.Sprintf("Imported %d profile(s) into the %s store.", n, storeCfg.Driver))
			return nil
		},
	}
}
