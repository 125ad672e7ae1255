package vault

import (
	"fmt"
	"strings"
)

// validateKey rejects keys that could escape the vault's namespace.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty snapshot key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid snapshot key: %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid snapshot key: %q", key)
		}
	}
	return nil
}
