// Package crypto encrypts local data at rest. The fernet key is generated on
// first use and kept in the settings table next to the data it protects.
package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fernet/fernet-go"
	"github.com/gluk-w/claworc/webssh/internal/database"
)

const keySetting = "fernet_key"

var (
	keyMu     sync.Mutex
	cachedKey *fernet.Key
)

func getKey() (*fernet.Key, error) {
	keyMu.Lock()
	defer keyMu.Unlock()

	if cachedKey != nil {
		return cachedKey, nil
	}

	keyStr, err := database.GetSetting(keySetting)
	if errors.Is(err, database.ErrNotFound) {
		var k fernet.Key
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate fernet key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("save fernet key: %w", err)
		}
		cachedKey = &k
		return cachedKey, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load fernet key: %w", err)
	}

	key, err := fernet.DecodeKey(keyStr)
	if err != nil {
		return nil, fmt.Errorf("decode fernet key: %w", err)
	}
	cachedKey = key
	return cachedKey, nil
}

// ResetKeyCache forgets the cached key, forcing a reload from the database.
func ResetKeyCache() {
	keyMu.Lock()
	cachedKey = nil
	keyMu.Unlock()
}

func Encrypt(plaintext []byte) (string, error) {
	key, err := getKey()
	if err != nil {
		return "", err
	}
	tok, err := fernet.EncryptAndSign(plaintext, key)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return string(tok), nil
}

func Decrypt(ciphertext string) ([]byte, error) {
	if ciphertext == "" {
		return nil, nil
	}
	key, err := getKey()
	if err != nil {
		return nil, err
	}
	msg := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{key})
	if msg == nil {
		return nil, fmt.Errorf("decrypt: invalid token")
	}
	return msg, nil
}

// Mask hides all but the last four characters of value for display.
// Values of four characters or fewer are hidden entirely.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if r := []rune(value); len(r) > 4 {
		return "****" + string(r[len(r)-4:])
	}
	return "****"
}
