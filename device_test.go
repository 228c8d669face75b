package accounts_test

import (
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceInfoNormalize(t *testing.T) {
	device := accounts.DeviceInfo{OS: "macOS"}.Normalize()

	assert.Equal(t, accounts.UnknownDevice, device.IPAddress)
	assert.Equal(t, "macOS", device.OS)
	assert.Equal(t, accounts.UnknownDevice, device.Browser)

	blank := accounts.DeviceInfo{IPAddress: "  ", OS: "\t", Browser: ""}.Normalize()
	assert.Equal(t, accounts.UnknownDevice, blank.IPAddress)
	assert.Equal(t, accounts.UnknownDevice, blank.OS)
	assert.Equal(t, accounts.UnknownDevice, blank.Browser)
}

func TestDeviceInfoString(t *testing.T) {
	device := accounts.DeviceInfo{
		IPAddress: "203.0.113.10",
		OS:        "Linux",
		Browser:   "Firefox",
	}
	assert.Equal(t, "203.0.113.10|Linux|Firefox", device.String())

	assert.Equal(t, "Unknown|Unknown|Unknown", accounts.DeviceInfo{}.String())
}

func TestParseDeviceInfo(t *testing.T) {
	t.Run("full form", func(t *testing.T) {
		device, err := accounts.ParseDeviceInfo("203.0.113.10|Linux|Firefox")
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.10", device.IPAddress)
		assert.Equal(t, "Linux", device.OS)
		assert.Equal(t, "Firefox", device.Browser)
	})

	t.Run("partial fields default", func(t *testing.T) {
		device, err := accounts.ParseDeviceInfo("203.0.113.10|Linux")
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.10", device.IPAddress)
		assert.Equal(t, "Linux", device.OS)
		assert.Equal(t, accounts.UnknownDevice, device.Browser)
	})

	t.Run("empty input", func(t *testing.T) {
		device, err := accounts.ParseDeviceInfo("   ")
		require.NoError(t, err)
		assert.Equal(t, accounts.UnknownDevice, device.IPAddress)
		assert.Equal(t, accounts.UnknownDevice, device.OS)
		assert.Equal(t, accounts.UnknownDevice, device.Browser)
	})

	t.Run("too many fields", func(t *testing.T) {
		_, err := accounts.ParseDeviceInfo("a|b|c|d")
		require.Error(t, err)
		assertTextCode(t, err, accounts.TextCodeInvalidArgument)
	})
}

func TestDeviceInfoEncodeDecode(t *testing.T) {
	device := accounts.DeviceInfo{
		IPAddress: "203.0.113.10",
		OS:        "Windows 11",
		Browser:   "Edge | Chromium",
	}

	encoded := accounts.EncodeDeviceInfo(device)
	decoded, err := accounts.DecodeDeviceInfo(encoded)
	require.NoError(t, err)
	assert.Equal(t, device, decoded)

	_, err = accounts.DecodeDeviceInfo("%%%not-base64%%%")
	require.Error(t, err)
	assertTextCode(t, err, accounts.TextCodeInvalidArgument)

	// valid base64 that is not JSON
	_, err = accounts.DecodeDeviceInfo("bm90LWpzb24=")
	require.Error(t, err)
	assertTextCode(t, err, accounts.TextCodeInvalidArgument)
}
