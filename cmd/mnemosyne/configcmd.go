package main

import (
	"context"
	"fmt"

	"github.com/rand/mnemosyne/internal/secrets"
)

// runConfig manages per-provider LLM credentials in the OS secret store,
// independent of the rest of the memory core (no storage is opened).
func runConfig(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mnemosyne config <set-key|show-key> <provider> [api-key]")
	}
	provider := ""
	if len(args) >= 2 {
		provider = args[1]
	}

	switch args[0] {
	case "set-key":
		if len(args) != 3 {
			return fmt.Errorf("usage: mnemosyne config set-key <provider> <api-key>")
		}
		if err := secrets.Store(provider, args[2]); err != nil {
			return fmt.Errorf("config set-key: %w", err)
		}
		fmt.Printf("stored API key for %s\n", provider)
		return nil

	case "show-key":
		if provider == "" {
			return fmt.Errorf("usage: mnemosyne config show-key <provider>")
		}
		key, err := secrets.Get(provider, "")
		if err != nil {
			return fmt.Errorf("config show-key: %w", err)
		}
		fmt.Printf("%s: %s\n", provider, maskKey(key))
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q (want set-key or show-key)", args[0])
	}
}

// maskKey shows only the last 4 characters of a credential when echoing a
// stored key back for confirmation.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
