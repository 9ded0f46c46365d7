package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Renewal starts this long before the recorded expiry, so a token that is
// about to lapse mid-request is never handed out.
const expiryMargin = 30 * time.Second

// Credential is the persisted session state for one provider. It is owned
// exclusively by that provider's event source and replaced wholesale on
// every refresh.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email"`
}

// Fresh reports whether the access token can still authorize a request.
// A credential past its expiry (minus the safety margin) must go through a
// refresh before use.
func (c *Credential) Fresh(now time.Time) bool {
	return c.AccessToken != "" && now.Add(expiryMargin).Before(c.Expiry)
}

// ErrNotFound is returned by Store.Load when no blob exists for the key.
var ErrNotFound = errors.New("credential not found")

// Store persists one opaque credential blob per provider key. The secure
// storage backend is external; implementations only need save, load and
// delete.
type Store interface {
	Save(key string, blob []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

// FileStore keeps each credential as a JSON file under a directory,
// mirroring the token files used by the CLI providers it replaced.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+"_token.json")
}

func (s *FileStore) Save(key string, blob []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	return os.WriteFile(s.path(key), blob, 0o600)
}

func (s *FileStore) Load(key string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return blob, err
}

func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func encodeCredential(c *Credential) ([]byte, error) {
	return json.Marshal(c)
}

func decodeCredential(blob []byte) (*Credential, error) {
	var c Credential
	if err := json.Unmarshal(blob, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
