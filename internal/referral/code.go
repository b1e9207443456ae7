package referral

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CodeData is the payload embedded in a referral code. The hash field only
// makes accidental corruption detectable; it is not tamper resistant and must
// never gate a privileged action.
type CodeData struct {
	ReferrerID int64  `json:"referrer_id"`
	ChannelID  int64  `json:"channel_id"`
	Timestamp  int64  `json:"timestamp"`
	Hash       string `json:"hash"`
}

// EncodeCode produces a URL-safe referral code embedding the referrer, the
// channel and the issuance time.
func EncodeCode(referrerID, channelID int64) string {
	return encodeCodeAt(referrerID, channelID, time.Now())
}

func encodeCodeAt(referrerID, channelID int64, at time.Time) string {
	ts := at.Unix()
	data := CodeData{
		ReferrerID: referrerID,
		ChannelID:  channelID,
		Timestamp:  ts,
		Hash:       codeHash(referrerID, channelID, ts),
	}

	// CodeData marshals without error by construction.
	payload, _ := json.Marshal(data)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// DecodeCode parses a referral code. It fails closed: any malformed,
// truncated or corrupted input yields ok=false, never a panic.
func DecodeCode(code string) (CodeData, bool) {
	if code == "" {
		return CodeData{}, false
	}

	// Tolerate codes that went through transports using the standard base64
	// alphabet or that kept their padding.
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(code)
	normalized = strings.TrimRight(normalized, "=")

	payload, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return CodeData{}, false
	}

	var data CodeData
	if err := json.Unmarshal(payload, &data); err != nil {
		return CodeData{}, false
	}
	if data.ReferrerID == 0 || data.ChannelID == 0 || data.Timestamp == 0 {
		return CodeData{}, false
	}
	if data.Hash != codeHash(data.ReferrerID, data.ChannelID, data.Timestamp) {
		return CodeData{}, false
	}

	return data, true
}

func codeHash(referrerID, channelID, timestamp int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d_%d_%d", referrerID, channelID, timestamp)))
	return hex.EncodeToString(sum[:])[:8]
}

// DeepLink builds the t.me bot-start link carrying the given payload.
func DeepLink(botUsername, payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, payload)
}
