package encryption

import (
	"fmt"

	"fsnap-go/internal/config"
	"fsnap-go/internal/fsnap"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil and no error for "none", meaning snapshots are stored in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (fsnap.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
