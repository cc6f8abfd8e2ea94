// Package secrets resolves connection passwords that are kept out of the
// yaml configuration. The OS keyring is preferred; when no keyring backend
// is available the secret is stored in an encrypted file under the config
// directory instead.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"schemalift/internal/common"
	apperrors "schemalift/pkg/errors"
)

const (
	keyringService   = "schemalift"
	saltSize         = 32
	pbkdf2Iterations = 100000
	keySize          = 32 // AES-256
)

// Store reads and writes named secrets
type Store struct {
	useKeyring bool
	baseDir    string
	masterKey  []byte
}

// NewStore creates a secret store rooted at baseDir (typically
// ~/.schemalift). The encrypted-file fallback is initialized lazily.
func NewStore(baseDir string) *Store {
	return &Store{
		useKeyring: keyringAvailable(),
		baseDir:    baseDir,
	}
}

// Get returns the secret stored under name
func (s *Store) Get(name string) (string, error) {
	if s.useKeyring {
		value, err := keyring.Get(keyringService, name)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrCodeCredentialNotFound,
				fmt.Sprintf("no stored secret for %q", name)).
				WithSuggestions(fmt.Sprintf("Store one with 'schemalift init' or set it in the keyring under service %q", keyringService))
		}
		return value, nil
	}
	return s.getEncrypted(name)
}

// Set stores the secret under name
func (s *Store) Set(name, value string) error {
	if s.useKeyring {
		if err := keyring.Set(keyringService, name, value); err != nil {
			return fmt.Errorf("failed to store secret in keyring: %w", err)
		}
		return nil
	}
	return s.setEncrypted(name, value)
}

// Delete removes the secret stored under name
func (s *Store) Delete(name string) error {
	if s.useKeyring {
		return keyring.Delete(keyringService, name)
	}
	return os.Remove(s.secretPath(name))
}

func keyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Headless hosts usually have no secret service
		err := keyring.Set(keyringService, "__probe__", "probe")
		if err == nil {
			_ = keyring.Delete(keyringService, "__probe__")
			return true
		}
		return false
	default:
		return false
	}
}

// Encrypted-file fallback

func (s *Store) getEncrypted(name string) (string, error) {
	path, err := common.ValidatePath(s.secretPath(name), s.secretsDir())
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is validated
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeCredentialNotFound,
			fmt.Sprintf("no stored secret for %q", name))
	}

	if err := s.ensureMasterKey(); err != nil {
		return "", err
	}
	return s.decrypt(strings.TrimSpace(string(data)))
}

func (s *Store) setEncrypted(name, value string) error {
	if err := s.ensureMasterKey(); err != nil {
		return err
	}

	encrypted, err := s.encrypt(value)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeEncryptionFailed, "failed to encrypt secret")
	}

	if err := os.MkdirAll(s.secretsDir(), common.DirPermissionSecure); err != nil {
		return err
	}

	path, err := common.ValidatePath(s.secretPath(name), s.secretsDir())
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(encrypted), common.FilePermissionSecure)
}

func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// ensureMasterKey loads or creates the fallback master key. The key is
// derived from machine-specific data with PBKDF2 and persisted next to the
// secrets so restarts decrypt the same material.
func (s *Store) ensureMasterKey() error {
	if s.masterKey != nil {
		return nil
	}

	keyPath := filepath.Join(s.secretsDir(), ".master")

	data, err := os.ReadFile(keyPath) // #nosec G304 - fixed path under config dir
	if err == nil {
		if len(data) != saltSize+keySize {
			return fmt.Errorf("invalid master key file size")
		}
		s.masterKey = data[saltSize:]
		return nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}

	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	if err := os.MkdirAll(s.secretsDir(), common.DirPermissionSecure); err != nil {
		return err
	}
	if err := os.WriteFile(keyPath, append(salt, key...), common.FilePermissionSecure); err != nil {
		return err
	}

	s.masterKey = key
	return nil
}

func (s *Store) secretsDir() string {
	return filepath.Join(s.baseDir, "secrets")
}

func (s *Store) secretPath(name string) string {
	return filepath.Join(s.secretsDir(), common.SanitizeFileName(name)+".secret")
}

func machineID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%s-%s", hostname, runtime.GOOS, runtime.GOARCH)
}
