package credentials

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"starload/pkg/errors"
)

func TestKeyring(t *testing.T) {
	keyring.MockInit()
	k := NewKeyring()
	account := "dwhuser@dwhcluster.abc123.us-west-2.redshift.amazonaws.com"

	t.Run("store and lookup", func(t *testing.T) {
		require.NoError(t, k.Store(account, "Passw0rd"))

		password, err := k.Lookup(account)
		require.NoError(t, err)
		assert.Equal(t, "Passw0rd", password)

		cred, err := k.Get(account)
		require.NoError(t, err)
		assert.Equal(t, account, cred.Account)
		assert.False(t, cred.StoredAt.IsZero())
	})

	t.Run("store replaces", func(t *testing.T) {
		require.NoError(t, k.Store(account, "rotated"))
		password, err := k.Lookup(account)
		require.NoError(t, err)
		assert.Equal(t, "rotated", password)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, k.Delete(account))
		_, err := k.Lookup(account)
		assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

		// deleting again is fine
		assert.NoError(t, k.Delete(account))
	})

	t.Run("validation", func(t *testing.T) {
		assert.True(t, errors.HasCode(k.Store("", "pw"), errors.ErrCodeConfigInvalid))
		assert.True(t, errors.HasCode(k.Store(account, ""), errors.ErrCodeConfigInvalid))
	})
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(fmt.Errorf("no secret service"))
	defer keyring.MockInit()

	k := NewKeyring()
	err := k.Store("user@host", "pw")
	assert.True(t, errors.HasCode(err, errors.ErrCodeServiceUnavailable))

	_, err = k.Lookup("user@host")
	assert.True(t, errors.HasCode(err, errors.ErrCodeServiceUnavailable))
}
