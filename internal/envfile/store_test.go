package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), ".env"), "")
	require.NoError(t, err)
	assert.False(t, s.Exists())
	assert.Empty(t, s.Keys())
	_, ok := s.Get("OPENAI_API_KEY")
	assert.False(t, ok)
}

func TestSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	s, err := Open(path, "")
	require.NoError(t, err)

	values := map[string]string{
		"OPENAI_API_KEY": "sk-abc123XYZ",
		"PLAIN":          "0123",
		"URL":            "http://localhost:8000/docs",
		"SPACED":         "hello world # not a comment",
		"QUOTE":          "it's here",
		"MULTI":          "line one\nline \"two\" $HOME",
		"EMPTY":          "",
	}
	for k, v := range values {
		require.NoError(t, s.Set(k, v))
	}

	reopened, err := Open(path, "")
	require.NoError(t, err)
	for k, v := range values {
		got, ok := reopened.Get(k)
		assert.True(t, ok, k)
		assert.Equal(t, v, got, k)
	}
}

func TestSetPreservesUnrelatedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	original := "# speech\nOPENAI_API_KEY=sk-old\n\n# other\nDEBUG=true\nTENCENT_SECRET_ID=AKIDold\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0600))

	s, err := Open(path, "")
	require.NoError(t, err)
	require.NoError(t, s.SetAll([]Entry{
		{Key: "OPENAI_API_KEY", Value: "sk-new"},
		{Key: "VIDEO_SERVICE", Value: "local"},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "# speech\nOPENAI_API_KEY=sk-new\n\n# other\nDEBUG=true\nTENCENT_SECRET_ID=AKIDold\nVIDEO_SERVICE=local\n"
	assert.Equal(t, want, string(data))
	assert.Equal(t, "true", s.Value("DEBUG"))
}

func TestSetSeedsFromExample(t *testing.T) {
	dir := t.TempDir()
	example := filepath.Join(dir, ".env.example")
	require.NoError(t, os.WriteFile(example, []byte("OPENAI_API_KEY=sk-your-openai-api-key\nHOST=0.0.0.0\n"), 0644))

	s, err := Open(filepath.Join(dir, ".env"), example)
	require.NoError(t, err)
	require.NoError(t, s.Set("OPENAI_API_KEY", "sk-real"))

	assert.True(t, s.Exists())
	assert.Equal(t, "sk-real", s.Value("OPENAI_API_KEY"))
	assert.Equal(t, "0.0.0.0", s.Value("HOST"))
}

func TestSetRereadsDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	s, err := Open(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set("A", "1"))

	// Another writer changes the file behind our back.
	require.NoError(t, os.WriteFile(path, []byte("A=1\nB=2\n"), 0600))
	require.NoError(t, s.Set("C", "3"))

	assert.Equal(t, "2", s.Value("B"))
	assert.Equal(t, []string{"A", "B", "C"}, s.Keys())
}

func TestSetDuplicateLinesCollapse(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("K=1\nX=y\nK=2\n"), 0600))
	s, err := Open(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set("K", "3"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "K=3\nX=y\n", string(data))
}

func TestSetRejectsInvalidKey(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), ".env"), "")
	require.NoError(t, err)
	assert.Error(t, s.Set("BAD KEY", "v"))
	assert.False(t, s.Exists())
}

func TestConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	s, err := Open(path, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Set(fmt.Sprintf("KEY_%02d", i), fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	reopened, err := Open(path, "")
	require.NoError(t, err)
	assert.Len(t, reopened.Keys(), 20)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPlaceholders(t *testing.T) {
	for _, v := range []string{"", "  ", "sk-your-openai-api-key", "your-secret-id", "your_secret_key"} {
		assert.True(t, IsPlaceholder(v), v)
	}
	for _, v := range []string{"sk-abc", "AKIDxyz", "yourself"} {
		assert.False(t, IsPlaceholder(v), v)
	}

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-your-key\nTENCENT_SECRET_ID=AKID1\n"), 0600))
	s, err := Open(path, "")
	require.NoError(t, err)
	assert.False(t, s.Configured("OPENAI_API_KEY"))
	assert.True(t, s.Configured("TENCENT_SECRET_ID"))
	assert.False(t, s.Configured("MISSING"))
}
