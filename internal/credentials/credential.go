// Package credentials acquires, verifies and stores the secrets the video
// service needs: a speech-to-text API key and a cloud secret id/key pair.
package credentials

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kayz/teachcut/internal/envfile"
)

// ErrSkipped is returned when the user gives up on a credential.
var ErrSkipped = errors.New("credential skipped")

// Service identifies which provider a credential belongs to.
type Service int

const (
	SpeechProvider Service = iota
	CloudProvider
)

func (s Service) String() string {
	switch s {
	case SpeechProvider:
		return "speech"
	case CloudProvider:
		return "cloud"
	default:
		return "unknown"
	}
}

// Field names inside Credential.Fields.
const (
	FieldAPIKey    = "api_key"
	FieldSecretID  = "secret_id"
	FieldSecretKey = "secret_key"
)

// Store keys.
const (
	KeyOpenAI        = "OPENAI_API_KEY"
	KeySecretID      = "TENCENT_SECRET_ID"
	KeySecretKey     = "TENCENT_SECRET_KEY"
	KeyASRSecretID   = "TENCENT_ASR_SECRET_ID"
	KeyASRSecretKey  = "TENCENT_ASR_SECRET_KEY"
	KeyTMTSecretID   = "TENCENT_TMT_SECRET_ID"
	KeyTMTSecretKey  = "TENCENT_TMT_SECRET_KEY"
	KeySpeechService = "SPEECH_SERVICE"
	KeyVideoService  = "VIDEO_SERVICE"
)

const (
	speechPrefix      = "sk-"
	cloudIDPrefix     = "AKID"
	maskPlaceholder   = "..."
	fullyMasked       = "***"
	speechMaskPrefix  = 10
	speechMaskSuffix  = 4
	cloudIDMaskPrefix = 8
	cloudIDMaskSuffix = 4
)

// Credential is one provider's secret material.
type Credential struct {
	Service  Service
	Fields   map[string]string
	Verified bool
	// Kept is set when an existing stored value was reused as is.
	Kept bool
}

// Entries maps the credential onto every store key that consumes it.
func (c Credential) Entries() []envfile.Entry {
	switch c.Service {
	case SpeechProvider:
		return []envfile.Entry{{Key: KeyOpenAI, Value: c.Fields[FieldAPIKey]}}
	case CloudProvider:
		id, key := c.Fields[FieldSecretID], c.Fields[FieldSecretKey]
		return []envfile.Entry{
			{Key: KeySecretID, Value: id},
			{Key: KeySecretKey, Value: key},
			{Key: KeyASRSecretID, Value: id},
			{Key: KeyASRSecretKey, Value: key},
			{Key: KeyTMTSecretID, Value: id},
			{Key: KeyTMTSecretKey, Value: key},
		}
	}
	return nil
}

// Masked returns the credential's identifying field, masked for display.
func (c Credential) Masked() string {
	switch c.Service {
	case SpeechProvider:
		return MaskSpeechKey(c.Fields[FieldAPIKey])
	case CloudProvider:
		return MaskCloudID(c.Fields[FieldSecretID])
	}
	return fullyMasked
}

// Mask keeps the first prefix and last suffix characters of secret and
// replaces the middle with "...". Secrets too short to leave a hidden
// middle are masked completely.
func Mask(secret string, prefix, suffix int) string {
	n := utf8.RuneCountInString(secret)
	if n == 0 || n < prefix+suffix {
		return fullyMasked
	}
	r := []rune(secret)
	return string(r[:prefix]) + maskPlaceholder + string(r[n-suffix:])
}

// MaskSpeechKey shows the first 10 and last 4 characters of a speech key.
func MaskSpeechKey(key string) string { return Mask(key, speechMaskPrefix, speechMaskSuffix) }

// MaskCloudID shows the first 8 and last 4 characters of a cloud secret id.
func MaskCloudID(id string) string { return Mask(id, cloudIDMaskPrefix, cloudIDMaskSuffix) }

// ValidSpeechKey reports whether key has the speech provider's key shape.
func ValidSpeechKey(key string) bool {
	return strings.HasPrefix(key, speechPrefix) && len(key) > len(speechPrefix) && !strings.ContainsAny(key, " \t")
}

// Status is whether one required store key holds a real value.
type Status struct {
	Key        string
	Configured bool
}

// RequiredKeys are the keys the service cannot run without.
var RequiredKeys = []string{KeyOpenAI, KeySecretID, KeySecretKey}

// Statuses reports every required key. Placeholders count as unconfigured.
func Statuses(store *envfile.Store) []Status {
	out := make([]Status, len(RequiredKeys))
	for i, k := range RequiredKeys {
		out[i] = Status{Key: k, Configured: store.Configured(k)}
	}
	return out
}

// Unconfigured returns the required keys without a real value.
func Unconfigured(store *envfile.Store) []string {
	var missing []string
	for _, s := range Statuses(store) {
		if !s.Configured {
			missing = append(missing, s.Key)
		}
	}
	return missing
}
