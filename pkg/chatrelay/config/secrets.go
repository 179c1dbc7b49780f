package config

import (
	"os"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name used in the OS keyring.
const KeyringService = "chatrelay"

// LookupSecret returns the environment variable name, falling back to the
// OS keyring entry stored under the same name.
func LookupSecret(name string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return GetKeyring(name)
}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(KeyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found or the keyring is unavailable.
func GetKeyring(key string) string {
	val, err := keyring.Get(KeyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(KeyringService, key)
}
