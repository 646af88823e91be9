package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha3"
	"encoding/binary"
	"fmt"
	"sync"
)

// KeyPersister is the narrow storage seam the encryption manager needs: a
// place to durably remember the global key/nonce and each subject shard's
// derived key across process restarts. internal/kvstore's metadata store
// implements this against the "K/<shard_name>" layout from spec.md section 6.
type KeyPersister interface {
	LoadGlobal() (key, nonce []byte, found bool, err error)
	SaveGlobal(key, nonce []byte) error
	LoadSubjectKey(shardName string) (key []byte, found bool, err error)
	SaveSubjectKey(shardName string, key []byte) error
	DeleteSubjectKey(shardName string) error
}

// Manager implements spec.md section 4.2: a global AEAD used to encrypt the
// two fields of a composite KV key, and one AEAD per subject shard used to
// encrypt row values. Every operation reuses a single global nonce, which is
// what makes EncryptSeek usable as a stable iteration prefix (and is the
// accepted semantic-security tradeoff spec.md documents).
type Manager struct {
	persist KeyPersister

	keyAEAD cipher.AEAD
	nonce   []byte

	mu      sync.RWMutex
	subject map[string]cipher.AEAD
}

var _ Encryptor = (*Manager)(nil)

const (
	globalKeySize  = 32 // AES-256
	subjectKeySize = 32
)

// NewManager loads or creates the global key/nonce from persist and returns
// a ready Manager. Cryptographic setup failure is fatal, per spec.md
// section 4.2 ("cryptographic failure is fatal").
func NewManager(persist KeyPersister) (*Manager, error) {
	key, nonce, found, err := persist.LoadGlobal()
	if err != nil {
		return nil, fmt.Errorf("crypto: load global key: %w", err)
	}
	if !found {
		key = make([]byte, globalKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("crypto: generate global key: %w", err)
		}
		aead, err := newGCM(key)
		if err != nil {
			return nil, err
		}
		nonce = make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("crypto: generate global nonce: %w", err)
		}
		if err := persist.SaveGlobal(key, nonce); err != nil {
			return nil, fmt.Errorf("crypto: persist global key: %w", err)
		}
	}

	keyAEAD, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != keyAEAD.NonceSize() {
		return nil, fmt.Errorf("crypto: stored nonce has wrong length %d", len(nonce))
	}

	return &Manager{
		persist: persist,
		keyAEAD: keyAEAD,
		nonce:   nonce,
		subject: make(map[string]cipher.AEAD),
	}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes-gcm: %w", err)
	}
	return aead, nil
}

// expand derives n fresh bytes from secret using a CSHAKE256 XOF, the same
// key-expansion shape opencoff-ebolt/cipher.go uses ahead of its per-purpose
// AES-GCM instances.
func expand(n int, secret []byte, ctx string) []byte {
	h := sha3.NewCSHAKE256(nil, []byte(ctx))
	h.Write(secret)
	out := make([]byte, n)
	h.Read(out)
	return out
}

// cachedSubjectAEAD returns shardName's AEAD if it is already in the
// in-memory cache, without touching persist.
func (m *Manager) cachedSubjectAEAD(shardName string) (cipher.AEAD, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	aead, ok := m.subject[shardName]
	return aead, ok
}

// subjectAEAD returns the AEAD for shardName, creating and persisting a
// fresh subject key on first use. Readers take the shared lock; the first
// writer for a given shard upgrades to the exclusive lock and rechecks the
// map before creating a key, the double-checked pattern spec.md section 5
// calls "a conditional upgrade for write".
func (m *Manager) subjectAEAD(shardName string) (cipher.AEAD, error) {
	if aead, ok := m.cachedSubjectAEAD(shardName); ok {
		return aead, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if aead, ok := m.subject[shardName]; ok {
		return aead, nil
	}

	rawKey, found, err := m.persist.LoadSubjectKey(shardName)
	if err != nil {
		return nil, fmt.Errorf("crypto: load subject key %q: %w", shardName, err)
	}
	if !found {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("crypto: generate subject seed: %w", err)
		}
		rawKey = expand(subjectKeySize, seed, "k9db subject key "+shardName)
		if err := m.persist.SaveSubjectKey(shardName, rawKey); err != nil {
			return nil, fmt.Errorf("crypto: persist subject key %q: %w", shardName, err)
		}
	}

	aead, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	m.subject[shardName] = aead
	return aead, nil
}

// loadSubjectAEAD returns shardName's AEAD from the in-memory cache or, on
// a cache miss (e.g. the first read of a subject's rows since a process
// restart), from persist — but unlike subjectAEAD, never generates a new
// key: a decrypt against a subject with no persisted key indicates the
// shard was never written to or the database is corrupt, and spec.md
// section 4.2 requires that to be fatal ("Unknown subject on decrypt is
// fatal"), not silently papered over with a fresh key that can't decrypt
// any existing ciphertext.
func (m *Manager) loadSubjectAEAD(shardName string) (cipher.AEAD, error) {
	if aead, ok := m.cachedSubjectAEAD(shardName); ok {
		return aead, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if aead, ok := m.subject[shardName]; ok {
		return aead, nil
	}

	rawKey, found, err := m.persist.LoadSubjectKey(shardName)
	if err != nil {
		return nil, fmt.Errorf("crypto: load subject key %q: %w", shardName, err)
	}
	if !found {
		return nil, fmt.Errorf("crypto: no key for subject shard %q: %w", shardName, ErrUnknownSubject)
	}

	aead, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	m.subject[shardName] = aead
	return aead, nil
}

// ForgetSubject deletes a subject's persisted and cached key, so its past
// and future ciphertexts become unrecoverable. Called by GDPR FORGET.
func (m *Manager) ForgetSubject(shardName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subject, shardName)
	if err := m.persist.DeleteSubjectKey(shardName); err != nil {
		return fmt.Errorf("crypto: forget subject %q: %w", shardName, err)
	}
	return nil
}

// EncryptKey encrypts the shard-name and primary-key fields separately under
// the global key and the global nonce, concatenates the ciphertexts, and
// appends a little-endian u16 length of the shard-cipher so the composite
// key's shard-prefix region can be located without decrypting anything.
func (m *Manager) EncryptKey(shardName, pk []byte) []byte {
	shardCipher := m.keyAEAD.Seal(nil, m.nonce, shardName, nil)
	pkCipher := m.keyAEAD.Seal(nil, m.nonce, pk, nil)

	out := make([]byte, 0, len(shardCipher)+len(pkCipher)+2)
	out = append(out, shardCipher...)
	out = append(out, pkCipher...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(shardCipher)))
	out = append(out, lenBuf[:]...)
	return out
}

// DecryptKey reverses EncryptKey.
func (m *Manager) DecryptKey(encryptedKey []byte) (shardName, pk []byte, err error) {
	shardCipher, pkCipher, err := SplitCipherKey(encryptedKey)
	if err != nil {
		return nil, nil, err
	}
	shardName, err = m.keyAEAD.Open(nil, m.nonce, shardCipher, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: decrypt shard name: %w", err)
	}
	pk, err = m.keyAEAD.Open(nil, m.nonce, pkCipher, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: decrypt primary key: %w", err)
	}
	return shardName, pk, nil
}

// SplitCipherKey splits an EncryptKey-produced blob into its shard-cipher and
// pk-cipher halves using the trailing u16 length, without decrypting
// anything. This is what the Pebble Comparer/Split use for ordering and
// prefix iteration (see internal/kvstore).
func SplitCipherKey(encryptedKey []byte) (shardCipher, pkCipher []byte, err error) {
	if len(encryptedKey) < 2 {
		return nil, nil, fmt.Errorf("crypto: encrypted key too short (%d bytes)", len(encryptedKey))
	}
	body := encryptedKey[:len(encryptedKey)-2]
	shardLen := int(binary.LittleEndian.Uint16(encryptedKey[len(encryptedKey)-2:]))
	if shardLen > len(body) {
		return nil, nil, fmt.Errorf("crypto: malformed key, shard length %d exceeds body %d", shardLen, len(body))
	}
	return body[:shardLen], body[shardLen:], nil
}

// EncryptValue encrypts a full row sequence under shardName's subject key
// and the global nonce, creating the subject key on first use.
func (m *Manager) EncryptValue(shardName string, seq []byte) ([]byte, error) {
	aead, err := m.subjectAEAD(shardName)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, m.nonce, seq, nil), nil
}

// DecryptValue reverses EncryptValue, reloading the subject's key from
// persist if it isn't already cached (the first read after a process
// restart). A missing subject key — in the cache and in persist — is
// fatal: it indicates the shard was never written to, or the database is
// corrupt.
func (m *Manager) DecryptValue(shardName string, cipherText []byte) ([]byte, error) {
	aead, err := m.loadSubjectAEAD(shardName)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, m.nonce, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt value for shard %q: %w", shardName, err)
	}
	return plain, nil
}

// EncryptSeek encrypts only the shard name and appends its length as the
// trailing u16 SplitCipherKey expects, producing a well-formed zero-pk key
// that sorts immediately before every real row EncryptKey would produce for
// that shard (empty pk-cipher sorts first) — suitable as a Pebble iteration
// lower/upper bound. The earlier shape (bare shard-cipher, no trailing
// length) let Comparer.Split/Compare misparse the bound as a key with a
// bogus shard/pk boundary whenever the cipher's last two bytes happened to
// decode to a plausible length, silently falling back to a raw byte compare
// for that bound.
func (m *Manager) EncryptSeek(shardName string) []byte {
	shardCipher := m.keyAEAD.Seal(nil, m.nonce, []byte(shardName), nil)
	out := make([]byte, 0, len(shardCipher)+2)
	out = append(out, shardCipher...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(shardCipher)))
	out = append(out, lenBuf[:]...)
	return out
}
