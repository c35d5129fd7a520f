package credentials

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/envfile"
)

const goodKey = "sk-proj-abcdefghijklmnop1234"

func newStore(t *testing.T, content string) *envfile.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	s, err := envfile.Open(path, "")
	require.NoError(t, err)
	return s
}

func modelsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+goodKey {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvisioner(store *envfile.Store, c console.Console, speech Verifier) *Provisioner {
	return &Provisioner{
		Store:       store,
		Console:     c,
		Speech:      speech,
		Cloud:       &CloudVerifier{Region: "ap-beijing"},
		Timeout:     2 * time.Second,
		MaxAttempts: 5,
	}
}

func TestMaskRevealsOnlyPrefixAndSuffix(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	const printable = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./+=!@#$%^&*() "
	for n := 14; n < 80; n++ {
		b := make([]byte, n)
		for i := range b {
			b[i] = printable[rng.Intn(len(printable))]
		}
		secret := string(b)
		got := MaskSpeechKey(secret)
		assert.Equal(t, secret[:10]+"..."+secret[n-4:], got)
		assert.Len(t, got, 10+3+4)
	}
}

func TestMaskShortSecret(t *testing.T) {
	assert.Equal(t, "***", MaskSpeechKey("sk-short"))
	assert.Equal(t, "***", MaskCloudID(""))
	assert.Equal(t, "AKIDabcd...wxyz", MaskCloudID("AKIDabcdefghijklmnopqrstuvwxyz"))
}

func TestCredentialEntriesFanOut(t *testing.T) {
	cred := Credential{Service: CloudProvider, Fields: map[string]string{FieldSecretID: "AKIDx", FieldSecretKey: "k"}}
	entries := cred.Entries()
	require.Len(t, entries, 6)
	for _, e := range entries {
		if strings.HasSuffix(e.Key, "_ID") {
			assert.Equal(t, "AKIDx", e.Value)
		} else {
			assert.Equal(t, "k", e.Value)
		}
	}
}

func TestSpeechVerifierOutcomes(t *testing.T) {
	srv := modelsServer(t)
	v := &SpeechVerifier{BaseURL: srv.URL + "/v1"}
	ctx := context.Background()

	outcome, err := v.Verify(ctx, map[string]string{FieldAPIKey: goodKey})
	require.NoError(t, err)
	assert.Equal(t, Verified, outcome)

	outcome, err = v.Verify(ctx, map[string]string{FieldAPIKey: "sk-wrong"})
	assert.Error(t, err)
	assert.Equal(t, Rejected, outcome)

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	v = &SpeechVerifier{BaseURL: closed.URL + "/v1"}
	outcome, err = v.Verify(ctx, map[string]string{FieldAPIKey: goodKey})
	assert.Error(t, err)
	assert.Equal(t, NetworkError, outcome)
}

func TestSpeechVerifierTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	store := newStore(t, "")
	s := console.NewScript(goodKey, "n")
	p := newProvisioner(store, s, &SpeechVerifier{BaseURL: srv.URL + "/v1"})
	p.Timeout = 100 * time.Millisecond

	_, err := p.Provision(context.Background(), SpeechProvider)
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Contains(t, s.Output(), "verification failed")
	assert.False(t, store.Configured(KeyOpenAI))
}

func TestProvisionSpeechVerifiesAndPersists(t *testing.T) {
	srv := modelsServer(t)
	store := newStore(t, "# keys\nDEBUG=true\n")
	// Malformed input is re-prompted without consuming an attempt.
	s := console.NewScript("not-a-key", goodKey)
	p := newProvisioner(store, s, &SpeechVerifier{BaseURL: srv.URL + "/v1"})
	p.MaxAttempts = 1

	cred, err := p.Provision(context.Background(), SpeechProvider)
	require.NoError(t, err)
	assert.True(t, cred.Verified)
	assert.False(t, cred.Kept)
	assert.Contains(t, s.Output(), "should start with 'sk-'")
	assert.NotContains(t, s.Output(), "Incorrect")

	reopened, err := envfile.Open(store.Path(), "")
	require.NoError(t, err)
	assert.Equal(t, goodKey, reopened.Value(KeyOpenAI))
	assert.Equal(t, "true", reopened.Value("DEBUG"))
}

func TestProvisionKeepsExistingWithoutNetwork(t *testing.T) {
	store := newStore(t, "OPENAI_API_KEY="+goodKey+"\n")
	var calls atomic.Int32
	speech := VerifierFunc(func(context.Context, map[string]string) (Outcome, error) {
		calls.Add(1)
		return Verified, nil
	})
	s := console.NewScript("")
	p := newProvisioner(store, s, speech)

	cred, err := p.Provision(context.Background(), SpeechProvider)
	require.NoError(t, err)
	assert.True(t, cred.Kept)
	assert.Zero(t, calls.Load())
	assert.Contains(t, s.Output(), "sk-proj-ab...1234")
	assert.NotContains(t, s.Output(), goodKey)
}

func TestProvisionRetryIsBounded(t *testing.T) {
	store := newStore(t, "")
	var calls atomic.Int32
	speech := VerifierFunc(func(context.Context, map[string]string) (Outcome, error) {
		calls.Add(1)
		return Rejected, nil
	})
	s := console.NewScript(goodKey, "y", goodKey, "y", goodKey, "y")
	p := newProvisioner(store, s, speech)
	p.MaxAttempts = 3

	_, err := p.Provision(context.Background(), SpeechProvider)
	assert.ErrorIs(t, err, ErrSkipped)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, s.Remaining())
	assert.Contains(t, s.Output(), "Giving up after 3 failed attempts")
}

func TestProvisionInputClosedIsSkip(t *testing.T) {
	p := newProvisioner(newStore(t, ""), console.NewScript(), nil)
	_, err := p.Provision(context.Background(), CloudProvider)
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestProvisionCloudWritesAllAliases(t *testing.T) {
	store := newStore(t, "TENCENT_SECRET_ID=your-secret-id\nTENCENT_SECRET_KEY=your-secret-key\n")
	// First pair fails the structural check, second passes.
	s := console.NewScript("bad-id", "secret", "y", "AKIDexample1234567890", "secretkey123")
	p := newProvisioner(store, s, nil)

	cred, err := p.Provision(context.Background(), CloudProvider)
	require.NoError(t, err)
	assert.True(t, cred.Verified)
	for _, k := range []string{KeySecretID, KeyASRSecretID, KeyTMTSecretID} {
		assert.Equal(t, "AKIDexample1234567890", store.Value(k), k)
	}
	for _, k := range []string{KeySecretKey, KeyASRSecretKey, KeyTMTSecretKey} {
		assert.Equal(t, "secretkey123", store.Value(k), k)
	}
	assert.NotContains(t, s.Prompts(), "Keep the current configuration? (y/n)")
}

func TestCloudVerifier(t *testing.T) {
	v := &CloudVerifier{}
	ctx := context.Background()

	outcome, err := v.Verify(ctx, map[string]string{FieldSecretID: "AKIDabc", FieldSecretKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, Verified, outcome)

	for _, fields := range []map[string]string{
		{FieldSecretID: "", FieldSecretKey: "key"},
		{FieldSecretID: "abc", FieldSecretKey: "key"},
		{FieldSecretID: "AKID abc", FieldSecretKey: "key"},
	} {
		outcome, err := v.Verify(ctx, fields)
		assert.Error(t, err)
		assert.Equal(t, Rejected, outcome)
	}
}

func TestConfigureSettingsFallsBackToDefault(t *testing.T) {
	store := newStore(t, "")
	s := console.NewScript("2", "9")
	p := newProvisioner(store, s, nil)

	entries, err := p.ConfigureSettings(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "xunfei", store.Value(KeySpeechService))
	assert.Equal(t, "tencent", store.Value(KeyVideoService))
}

func TestStatusesTreatPlaceholdersAsUnconfigured(t *testing.T) {
	store := newStore(t, "OPENAI_API_KEY=sk-your-openai-api-key\nTENCENT_SECRET_ID=your-secret-id\nTENCENT_SECRET_KEY=your-secret-key\n")
	for _, st := range Statuses(store) {
		assert.False(t, st.Configured, st.Key)
	}
	assert.Equal(t, RequiredKeys, Unconfigured(store))
}

func TestRunWizard(t *testing.T) {
	srv := modelsServer(t)
	store := newStore(t, "")
	s := console.NewScript(
		goodKey,                 // speech key
		"AKIDexample1234567890", // secret id
		"secretkey123",          // secret key
		"",                      // speech service: default
		"2",                     // video service: local
	)
	p := newProvisioner(store, s, &SpeechVerifier{BaseURL: srv.URL + "/v1"})

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sum.Speech)
	require.NotNil(t, sum.Cloud)
	assert.Equal(t, "openai", store.Value(KeySpeechService))
	assert.Equal(t, "local", store.Value(KeyVideoService))
	assert.Empty(t, Unconfigured(store))
	assert.NotContains(t, s.Output(), "secretkey123")
	assert.Contains(t, s.Output(), "teachcut deploy")
}
