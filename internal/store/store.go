package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Entity names. The v3 suffix matches the current on-disk record format;
// bump it when the shape of a record changes.
const (
	EntityBeneficiaries = "lastwish_beneficiaries_v3"
	EntityAssignments   = "lastwish_assignments_v3"
	EntityWallets       = "lastwish_wallets_v3"
	EntityOwner         = "lastwish_owner_v3"
)

const namespacePrefix = "lastwish_"

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store is an account-scoped key/value store backed by one JSON file per
// record. Records are keyed by `<entity>_<account lowercased>` so switching
// accounts swaps the whole dataset.
type Store struct {
	dir string
	log *zap.Logger
}

func New(dir string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store: data dir must not be empty")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Key builds the record key for an entity scoped to an account address.
func Key(entity, account string) string {
	return entity + "_" + strings.ToLower(strings.TrimSpace(account))
}

func (s *Store) path(entity, account string) string {
	return filepath.Join(s.dir, Key(entity, account)+".json")
}

// Save marshals v and writes it atomically under the account-scoped key.
func (s *Store) Save(entity, account string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", entity, err)
	}
	if err := atomicWriteFile(s.path(entity, account), b, filePerm); err != nil {
		return fmt.Errorf("store: write %s: %w", entity, err)
	}
	return nil
}

// Load reads the record into out. The second return is false when no record
// exists for that account.
func (s *Store) Load(entity, account string, out any) (bool, error) {
	b, err := os.ReadFile(s.path(entity, account))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: read %s: %w", entity, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("store: unmarshal %s: %w", entity, err)
	}
	return true, nil
}

// Delete removes a single record. Missing records are not an error.
func (s *Store) Delete(entity, account string) error {
	err := os.Remove(s.path(entity, account))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", entity, err)
	}
	return nil
}

// ResetAccount removes every namespaced record for one account.
func (s *Store) ResetAccount(account string) error {
	suffix := "_" + strings.ToLower(strings.TrimSpace(account)) + ".json"
	return s.removeMatching(func(name string) bool {
		return strings.HasPrefix(name, namespacePrefix) && strings.HasSuffix(name, suffix)
	})
}

// ResetAll removes every record under the recognized namespace prefix,
// regardless of account.
func (s *Store) ResetAll() error {
	return s.removeMatching(func(name string) bool {
		return strings.HasPrefix(name, namespacePrefix)
	})
}

func (s *Store) removeMatching(match func(name string) bool) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("store: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("store: remove %s: %w", e.Name(), err)
		}
		if s.log != nil {
			s.log.Debug("removed record", zap.String("file", e.Name()))
		}
	}
	return nil
}

// atomicWriteFile writes via a temp file in the same directory and renames it
// into place so readers never observe a partial record.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
