package kvstore

import (
	"fmt"

	"github.com/dreamware/k9db/internal/crypto"
)

// MetaStore implements crypto.KeyPersister on top of a plain Store, using
// the "G" (global key/nonce) and "K/<shard_name>" layout spec.md section 6
// assigns to encryption metadata. It never encrypts anything itself — its
// own keys and values are the encryption manager's raw key material, which
// is why it is kept in its own Store instance rather than sharing one with
// row data.
type MetaStore struct {
	store Store
}

// NewMetaStore wraps store (typically a dedicated PebbleStore or
// MemoryStore instance) as a crypto.KeyPersister.
func NewMetaStore(store Store) *MetaStore {
	return &MetaStore{store: store}
}

var _ crypto.KeyPersister = (*MetaStore)(nil)

const (
	globalKeyRecord = "G/key"
	globalNonceRecord = "G/nonce"
	subjectKeyPrefix = "K/"
)

func (m *MetaStore) LoadGlobal() (key, nonce []byte, found bool, err error) {
	key, err = m.store.Get([]byte(globalKeyRecord))
	if err != nil {
		if err == ErrNotFound {
			return nil, nil, false, nil
		}
		return nil, nil, false, fmt.Errorf("kvstore: meta: load global key: %w", err)
	}
	nonce, err = m.store.Get([]byte(globalNonceRecord))
	if err != nil {
		return nil, nil, false, fmt.Errorf("kvstore: meta: load global nonce: %w", err)
	}
	return key, nonce, true, nil
}

func (m *MetaStore) SaveGlobal(key, nonce []byte) error {
	if err := m.store.Put([]byte(globalKeyRecord), key); err != nil {
		return fmt.Errorf("kvstore: meta: save global key: %w", err)
	}
	if err := m.store.Put([]byte(globalNonceRecord), nonce); err != nil {
		return fmt.Errorf("kvstore: meta: save global nonce: %w", err)
	}
	return nil
}

func (m *MetaStore) LoadSubjectKey(shardName string) (key []byte, found bool, err error) {
	key, err = m.store.Get([]byte(subjectKeyPrefix + shardName))
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kvstore: meta: load subject key %q: %w", shardName, err)
	}
	return key, true, nil
}

func (m *MetaStore) SaveSubjectKey(shardName string, key []byte) error {
	if err := m.store.Put([]byte(subjectKeyPrefix+shardName), key); err != nil {
		return fmt.Errorf("kvstore: meta: save subject key %q: %w", shardName, err)
	}
	return nil
}

func (m *MetaStore) DeleteSubjectKey(shardName string) error {
	if err := m.store.Delete([]byte(subjectKeyPrefix + shardName)); err != nil {
		return fmt.Errorf("kvstore: meta: delete subject key %q: %w", shardName, err)
	}
	return nil
}
