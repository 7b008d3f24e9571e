package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativePluginHashLength(t *testing.T) {
	p := NativePlugin{}
	salt := []byte("01234567890123456789")
	out, err := p.Authenticate("s3cret", salt)
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestNativePluginEmptyPassword(t *testing.T) {
	p := NativePlugin{}
	out, err := p.Authenticate("", []byte("salt"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCachingSHA2PluginHashLength(t *testing.T) {
	p := CachingSHA2Plugin{}
	out, err := p.Authenticate("s3cret", []byte("01234567890123456789"))
	require.NoError(t, err)
	assert.Len(t, out, 32)
}

func TestClassifyCachingSHA2MoreData(t *testing.T) {
	assert.Equal(t, ActionFastSuccess, ClassifyCachingSHA2MoreData([]byte{0x03}))
	assert.Equal(t, ActionNeedsFullAuth, ClassifyCachingSHA2MoreData([]byte{0x04}))
	assert.Equal(t, ActionUnknown, ClassifyCachingSHA2MoreData([]byte{0x01, 0x02}))
}

func TestLookupKnownPlugins(t *testing.T) {
	for _, name := range []string{
		"mysql_native_password",
		"caching_sha2_password",
		"sha256_password",
		"mysql_clear_password",
		"mysql_old_password",
	} {
		p, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, name, p.Name())
	}
}

func TestLookupUnknownPlugin(t *testing.T) {
	_, ok := Lookup("not_a_plugin")
	assert.False(t, ok)
}

func TestFullAuthResponseRequiresSecureChannelOrKey(t *testing.T) {
	_, err := FullAuthResponse("pw", []byte("salt"), false, nil)
	assert.Error(t, err)
}

func TestFullAuthResponseSecureChannelIsCleartext(t *testing.T) {
	out, err := FullAuthResponse("pw", []byte("salt"), true, nil)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("pw"), 0), out)
}
