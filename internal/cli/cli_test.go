package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"multirag/internal/adapter/collection"
	"multirag/internal/adapter/embedding"
	"multirag/internal/adapter/store"
	"multirag/internal/domain"
	"multirag/internal/usecase"
)

func buildIndex(t *testing.T, dir string, contents map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))

	idx, err := store.CreateCollectionIndex(collection.IndexPath(dir), 4, "mock")
	require.NoError(t, err)
	defer idx.Close()

	emb := embedding.NewMockEmbedder(4)
	var items []store.Item
	for id, text := range contents {
		vecs, err := emb.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		items = append(items, store.Item{Chunk: domain.Chunk{ID: id, Content: text}, Vector: vecs[0]})
	}
	require.NoError(t, idx.Upsert(items))
}

// setupWorkspace builds two small collections and writes a config declaring
// them plus an unbuilt one. extra is appended to the config.
func setupWorkspace(t *testing.T, extra string) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	buildIndex(t, filepath.Join(root, "indexes", "dac-2014"), map[string]string{
		"d1": "abcd",
		"d2": "wxyz",
	})
	buildIndex(t, filepath.Join(root, "indexes", "lo-2019"), map[string]string{
		"l1": "abce",
	})

	cfgPath = filepath.Join(root, "rag.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
index_dir: indexes
collections:
  - name: dac
    id: dac-2014
    title: Dictionary of Consciential Analogies
  - name: lo
    id: lo-2019
  - name: missing
    id: not-built
retrieve:
  display_names:
    - from: dac
      to: Dictionary
embedding:
  provider: mock
  dimension: 4
`+extra), 0644))
	return root, cfgPath
}

// resetFlags restores command flag variables, which persist between runs of
// the shared root command.
func resetFlags() {
	searchCollections, searchMatch = nil, nil
	searchTopK, searchJSON, searchFull, searchNoProgress = 0, false, false, false
	askCollections, askMatch = nil, nil
	askTopK, askTemperature, askJSON, askShowSources = 0, -1, false, false
	contextCollections, contextMatch = nil, nil
	contextTopK, contextPrompt = 0, false
	collectionsJSON = false
	logLevel = ""
}

func execute(t *testing.T, root, cfgPath string, args ...string) (stdout, stderr string) {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{
		"--config", cfgPath,
		"--env", filepath.Join(root, "none.env"),
	}, args...))
	require.NoError(t, rootCmd.Execute())
	return out.String(), errOut.String()
}

func TestSearchCommand_JSON(t *testing.T) {
	root, cfgPath := setupWorkspace(t, "logging:\n  level: error\n")

	stdout, _ := execute(t, root, cfgPath, "search", "-q", "abcd", "-k", "2", "--json")

	var got searchOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	require.Len(t, got.Results, 2)
	assert.Equal(t, "abcd", got.Results[0].Text)
	assert.Equal(t, "dac", got.Results[0].Source)
	assert.Equal(t, "abce", got.Results[1].Text)
	assert.LessOrEqual(t, got.Results[0].Distance, got.Results[1].Distance)

	assert.Equal(t, []string{"Dictionary", "lo"}, got.Sources)
	require.Len(t, got.Warnings, 1)
	assert.Contains(t, got.Warnings[0], "missing")
}

func TestSearchCommand_WarningPrintedOnce(t *testing.T) {
	root, cfgPath := setupWorkspace(t, "logging:\n  level: info\n")

	stdout, stderr := execute(t, root, cfgPath, "search", "-q", "abcd", "-k", "2", "--no-progress")

	assert.Contains(t, stdout, "Found 2 results for: abcd")
	assert.Equal(t, 1, strings.Count(stderr, collection.ErrIndexNotFound.Error()), stderr)
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
}

func newChatServer(t *testing.T, reply string, requests *[]chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*requests = append(*requests, req)

		body, err := json.Marshal(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAskCommand_JSON(t *testing.T) {
	var requests []chatRequest
	srv := newChatServer(t, "An analogy dictionary.", &requests)
	t.Setenv("TEST_ASK_KEY", "test-key")

	root, cfgPath := setupWorkspace(t, `answer:
  base_url: `+srv.URL+`
  api_key_env: TEST_ASK_KEY
  temperature: 0.7
  max_retries: 0
logging:
  level: error
`)

	t.Run("uses configured temperature", func(t *testing.T) {
		requests = nil
		stdout, _ := execute(t, root, cfgPath, "ask", "-q", "abcd", "-k", "2", "--json")

		var got searchOutput
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))

		require.NotNil(t, got.Answer)
		assert.Equal(t, "An analogy dictionary.", got.Answer.Text)
		assert.False(t, got.Answer.Failed())
		require.Len(t, got.Results, 2)
		assert.Equal(t, []string{"Dictionary", "lo"}, got.Sources)
		require.Len(t, got.Warnings, 1)

		require.Len(t, requests, 1)
		assert.InDelta(t, 0.7, requests[0].Temperature, 1e-6)
		require.Len(t, requests[0].Messages, 2)
		assert.Equal(t, usecase.BuildUserPrompt("abcd\n\nabce", "abcd"), requests[0].Messages[1].Content)
	})

	t.Run("flag overrides temperature", func(t *testing.T) {
		requests = nil
		execute(t, root, cfgPath, "ask", "-q", "abcd", "-k", "2", "--json", "--temperature", "0")

		require.Len(t, requests, 1)
		assert.InDelta(t, 0, requests[0].Temperature, 1e-6)
	})

	t.Run("no results skips the model", func(t *testing.T) {
		requests = nil
		stdout, _ := execute(t, root, cfgPath, "ask", "-q", "abcd", "-c", "missing", "--json")

		var got searchOutput
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))

		require.NotNil(t, got.Answer)
		assert.Equal(t, usecase.NoResultsMessage, got.Answer.Text)
		assert.Empty(t, got.Results)
		assert.Empty(t, requests)
	})
}

func TestContextCommand(t *testing.T) {
	root, cfgPath := setupWorkspace(t, "logging:\n  level: error\n")

	t.Run("bare context", func(t *testing.T) {
		stdout, stderr := execute(t, root, cfgPath, "context", "-q", "abcd", "-k", "2")
		assert.Equal(t, "abcd\n\nabce\n", stdout)
		assert.Contains(t, stderr, "2 chunks")
	})

	t.Run("full prompt", func(t *testing.T) {
		stdout, _ := execute(t, root, cfgPath, "context", "-q", "abcd", "-k", "2", "--prompt")
		assert.Equal(t, usecase.BuildUserPrompt("abcd\n\nabce", "abcd")+"\n", stdout)
	})

	t.Run("no results", func(t *testing.T) {
		stdout, stderr := execute(t, root, cfgPath, "context", "-q", "abcd", "-c", "missing")
		assert.Equal(t, usecase.NoResultsMessage+"\n", stdout)
		assert.Contains(t, stderr, "missing")
	})
}

func TestCollectionsCommand_JSON(t *testing.T) {
	root, cfgPath := setupWorkspace(t, "")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
index_dir: indexes
collections:
  - name: dac
    id: dac-2014
    title: Dictionary of Consciential Analogies
  - name: missing
    id: not-built
  - name: unplaced
  - name: broken
    id: broken
embedding:
  provider: mock
  dimension: 4
logging:
  level: error
`), 0644))

	brokenDir := filepath.Join(root, "indexes", "broken")
	require.NoError(t, os.MkdirAll(brokenDir, 0755))
	db, err := bbolt.Open(collection.IndexPath(brokenDir), 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	stdout, _ := execute(t, root, cfgPath, "collections", "--json")

	var got []collectionStatus
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got, 4)

	byName := make(map[string]collectionStatus, len(got))
	for _, st := range got {
		byName[st.Name] = st
	}

	dac := byName["dac"]
	assert.Equal(t, "ok", dac.Status)
	assert.Equal(t, 2, dac.Chunks)
	assert.Equal(t, "mock", dac.Model)
	assert.Equal(t, "Dictionary of Consciential Analogies", dac.Title)

	assert.Contains(t, byName["missing"].Status, "failed to open index")
	assert.Equal(t, collection.ErrNoLocation.Error(), byName["unplaced"].Status)
	assert.Equal(t, store.ErrNotIndex.Error(), byName["broken"].Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// "é" is two bytes; never cut in the middle of it.
	assert.Equal(t, "a", truncate("aé", 2))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", indent("a\nb", "  "))
}
