package crypto

import "encoding/binary"

// Encryptor is the seam internal/kvstore and internal/engine program
// against. Manager is the real AES-256-GCM implementation; Noop is a
// pass-through used by the spec's no-encryption test/dev mode.
type Encryptor interface {
	EncryptKey(shardName, pk []byte) []byte
	DecryptKey(encryptedKey []byte) (shardName, pk []byte, err error)
	EncryptValue(shardName string, seq []byte) ([]byte, error)
	DecryptValue(shardName string, cipherText []byte) ([]byte, error)
	EncryptSeek(shardName string) []byte
	ForgetSubject(shardName string) error
}

// Noop implements Encryptor without any cryptography: "encrypted" keys and
// values are their plaintext inputs, framed the same way Manager frames
// them so the rest of the system (ordering, prefix iteration) is oblivious
// to which Encryptor is in use. It exists for tests and for the spec's
// documented no-encryption mode; it must never be selected for a production
// deployment handling real subject data.
type Noop struct{}

var _ Encryptor = Noop{}

func (Noop) EncryptKey(shardName, pk []byte) []byte {
	out := make([]byte, 0, len(shardName)+len(pk)+2)
	out = append(out, shardName...)
	out = append(out, pk...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(shardName)))
	out = append(out, lenBuf[:]...)
	return out
}

func (Noop) DecryptKey(encryptedKey []byte) (shardName, pk []byte, err error) {
	return SplitCipherKey(encryptedKey)
}

func (Noop) EncryptValue(shardName string, seq []byte) ([]byte, error) {
	return seq, nil
}

func (Noop) DecryptValue(shardName string, cipherText []byte) ([]byte, error) {
	return cipherText, nil
}

func (Noop) EncryptSeek(shardName string) []byte {
	out := make([]byte, 0, len(shardName)+2)
	out = append(out, shardName...)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(shardName)))
	out = append(out, lenBuf[:]...)
	return out
}

func (Noop) ForgetSubject(shardName string) error {
	return nil
}
