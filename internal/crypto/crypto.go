package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/gtank/cryptopasta"
)

// Cipher is a hex-encoded 32-byte key used to seal tokens at rest.
type Cipher string

// GenerateKey returns a fresh key suitable for DF_SECRET_KEY.
func GenerateKey() string {
	return hex.EncodeToString(cryptopasta.NewEncryptionKey()[:])
}

func (c Cipher) getSecureKey() (*[32]byte, error) {
	secureKey, err := hex.DecodeString(string(c))
	if err != nil {
		return nil, err
	}
	if len(secureKey) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(secureKey))
	}

	return (*[32]byte)(secureKey), nil
}

func (c Cipher) Validate() error {
	_, err := c.getSecureKey()
	return err
}

func (c Cipher) Encrypt(value string) (string, error) {
	secureKey, err := c.getSecureKey()
	if err != nil {
		return "", err
	}

	encryptedValue, err := cryptopasta.Encrypt([]byte(value), secureKey)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(encryptedValue), nil
}

func (c Cipher) Decrypt(value string) (string, error) {
	secureKey, err := c.getSecureKey()
	if err != nil {
		return "", err
	}

	decodedValue, err := hex.DecodeString(value)
	if err != nil {
		return "", err
	}

	decryptedValue, err := cryptopasta.Decrypt(decodedValue, secureKey)
	if err != nil {
		return "", err
	}

	return string(decryptedValue), nil
}
