package crypto

import "errors"

// ErrUnknownSubject is returned by DecryptValue when no key has ever been
// created or loaded for the given shard, and by lookups after ForgetSubject.
var ErrUnknownSubject = errors.New("crypto: unknown subject shard")
