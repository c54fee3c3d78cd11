package shared

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyKeyValidate(t *testing.T) {
	cases := []struct {
		name string
		key  IdempotencyKey
		ok   bool
	}{
		{"valid", IdempotencyKey{TenantID: "firm-a", Module: "clients", Key: "abc"}, true},
		{"single tenant", IdempotencyKey{Module: "clients", Key: "abc"}, true},
		{"no module", IdempotencyKey{TenantID: "firm-a", Key: "abc"}, false},
		{"empty key", IdempotencyKey{TenantID: "firm-a", Module: "clients"}, false},
		{"oversized", IdempotencyKey{Module: "clients", Key: strings.Repeat("k", maxIdempotencyKeyLength+1)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.key.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidIdempotencyKey))
		})
	}
}

func TestIdempotencyStoreRejectsInvalidKeyBeforeQuerying(t *testing.T) {
	store := NewIdempotencyStore(nil)
	err := store.Claim(context.Background(), IdempotencyKey{Module: "clients"})
	assert.ErrorIs(t, err, ErrInvalidIdempotencyKey)
}
