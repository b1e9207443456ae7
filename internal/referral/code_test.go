package referral

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	issued := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	code := encodeCodeAt(123456789, -1001234567890, issued)

	data, ok := DecodeCode(code)
	require.True(t, ok)
	assert.Equal(t, int64(123456789), data.ReferrerID)
	assert.Equal(t, int64(-1001234567890), data.ChannelID)
	assert.Equal(t, issued.Unix(), data.Timestamp)
}

func TestEncodeCodeIsURLSafe(t *testing.T) {
	// Large IDs push the base64 output into territory where the standard
	// alphabet would emit + and /.
	for i := int64(1); i < 200; i++ {
		code := EncodeCode(i*7919, -100*i-1)
		assert.NotContains(t, code, "+")
		assert.NotContains(t, code, "/")
		assert.NotContains(t, code, "=")
	}
}

func TestDecodeCodeAcceptsStandardAlphabet(t *testing.T) {
	code := EncodeCode(42, -1001)
	raw, err := base64.RawURLEncoding.DecodeString(code)
	require.NoError(t, err)

	// Same payload re-encoded with the standard padded alphabet still decodes.
	standard := base64.StdEncoding.EncodeToString(raw)
	data, ok := DecodeCode(standard)
	require.True(t, ok)
	assert.Equal(t, int64(42), data.ReferrerID)
	assert.Equal(t, int64(-1001), data.ChannelID)
}

func TestDecodeCodeRejectsCorruption(t *testing.T) {
	code := EncodeCode(42, -1001)

	cases := map[string]string{
		"empty":           "",
		"not base64":      "%%%not-base64%%%",
		"not json":        base64.RawURLEncoding.EncodeToString([]byte("hello")),
		"truncated":       code[:len(code)/2],
		"reordered":       code[len(code)/2:] + code[:len(code)/2],
		"byte substitute": "A" + code[1:],
		"missing fields":  base64.RawURLEncoding.EncodeToString([]byte(`{"referrer_id":42}`)),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := DecodeCode(input)
			assert.False(t, ok)
		})
	}
}

func TestDecodeCodeRejectsTamperedPayload(t *testing.T) {
	// A payload whose integrity hash does not match its fields fails closed.
	forged := base64.RawURLEncoding.EncodeToString([]byte(
		`{"referrer_id":42,"channel_id":-1001,"timestamp":1700000000,"hash":"deadbeef"}`))
	_, ok := DecodeCode(forged)
	assert.False(t, ok)
}

func TestDeepLink(t *testing.T) {
	link := DeepLink("my_test_bot", "abc123")
	assert.Equal(t, "https://t.me/my_test_bot?start=abc123", link)
	assert.True(t, strings.HasPrefix(link, "https://t.me/"))
}
