package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadOrCreateSecret returns the cookie-signing secret from path, creating it
// with a fresh 32-byte random value on first boot. The secret survives
// restarts so session cookies issued before a restart keep validating.
func LoadOrCreateSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return nil, fmt.Errorf("secret key file %s is empty", path)
		}
		return []byte(secret), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secret key file: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	secret := hex.EncodeToString(raw)

	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return nil, fmt.Errorf("write secret key file: %w", err)
	}
	return []byte(secret), nil
}
