// Package secrets stores and retrieves LLM provider API credentials in the
// platform-native secret store (Keychain on macOS, Credential Manager on
// Windows, Secret Service on Linux) via github.com/zalando/go-keyring, with
// an environment-variable fallback for hosts that have no secret-store
// daemon available (§4.9's DOMAIN STACK note).
package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// service is the keyring service name under which every provider's
// credential is stored, keyed by account = provider name.
const service = "mnemosyne"

// ErrNotFound is returned by Get when no keyring entry exists for provider
// and the caller supplied no environment fallback either.
var ErrNotFound = errors.New("secrets: no credential found")

// Store saves apiKey in the OS secret store under provider's account name.
func Store(provider, apiKey string) error {
	if apiKey == "" {
		return errors.New("secrets: refusing to store an empty API key")
	}
	if err := keyring.Set(service, provider, apiKey); err != nil {
		return fmt.Errorf("secrets: store credential for %s: %w", provider, err)
	}
	return nil
}

// Get retrieves the credential for provider from the OS secret store. If no
// entry exists, or the secret store itself is unavailable, and envFallback
// is non-empty, envFallback is returned instead; this mirrors
// LLMConfig.APIKey's environment-variable precedence rule so callers never
// need to special-case headless hosts themselves.
func Get(provider, envFallback string) (string, error) {
	key, err := keyring.Get(service, provider)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		// The backend itself failed (e.g. no Secret Service daemon running on
		// a headless Linux host) rather than simply having no entry. Use the
		// env var if one was supplied; otherwise return a distinct error
		// rather than ErrNotFound, so "config show-key" can tell the two
		// cases apart.
		if envFallback != "" {
			return envFallback, nil
		}
		return "", fmt.Errorf("secrets: OS secret store unavailable for %s (%w); set the provider's API key environment variable instead", provider, err)
	}
	if envFallback != "" {
		return envFallback, nil
	}
	return "", ErrNotFound
}

// Delete removes provider's stored credential, if any.
func Delete(provider string) error {
	if err := keyring.Delete(service, provider); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("secrets: delete credential for %s: %w", provider, err)
	}
	return nil
}
