package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorsAsRecoversWrappedSchemaError(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", &SchemaError{Table: "users", Reason: "no such table"})

	var schemaErr *SchemaError
	require.True(t, errors.As(wrapped, &schemaErr))
	require.Equal(t, "users", schemaErr.Table)
}

func TestStorageErrorUnwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := &StorageError{Op: "put", Err: inner}
	require.ErrorIs(t, err, inner)
}

func TestCryptoErrorUnwraps(t *testing.T) {
	inner := errors.New("bad nonce")
	err := &CryptoError{Op: "decrypt", Err: inner}
	require.ErrorIs(t, err, inner)
}

func TestComplianceErrorMessageNamesReason(t *testing.T) {
	err := &ComplianceError{Reason: "orphaned row in default shard"}
	require.Contains(t, err.Error(), "orphaned row in default shard")
}
