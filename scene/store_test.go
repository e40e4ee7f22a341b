package scene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	state := sampleState()
	store.SaveScene(state)

	got := store.GetScene("v1")
	require.NotNil(t, got)
	assert.Equal(t, state.Description, got.Description)
	assert.Len(t, got.Objects, len(state.Objects))
	assert.Equal(t, state.Settings, got.Settings)
}

func TestStoreMissesReturnNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Nil(t, store.GetScene("nope"))
	assert.Nil(t, store.CurrentForThread("unknown-thread"))
	assert.Empty(t, store.History("unknown-thread"))
}

func TestRecordExtractionTracksThread(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	v1 := sampleState()
	store.RecordExtraction("thread-1", v1)

	current := store.CurrentForThread("thread-1")
	require.NotNil(t, current)
	assert.Equal(t, "v1", current.ID)

	v2 := Apply(v1, "make it blue", &Modification{RemoveObjectIDs: []string{"s2"}})
	store.RecordExtraction("thread-1", v2)

	current = store.CurrentForThread("thread-1")
	require.NotNil(t, current)
	assert.Equal(t, v2.ID, current.ID)
	assert.Equal(t, "v1", current.DerivedFrom)

	history := store.History("thread-1")
	require.Len(t, history, 2)
	assert.Equal(t, "v1", history[0].ID)
	assert.Equal(t, v2.ID, history[1].ID)

	// Re-recording the same scene must not duplicate the history entry.
	store.RecordExtraction("thread-1", v2)
	assert.Len(t, store.History("thread-1"), 2)
}

func TestStoreReloadsMappingsFromDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	store.RecordExtraction("thread-1", sampleState())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	current := reopened.CurrentForThread("thread-1")
	require.NotNil(t, current)
	assert.Equal(t, "v1", current.ID)
}

func TestStoreDiscardsCorruptMappings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thread_mappings.json"), []byte("{not json"), 0o644))

	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Nil(t, store.CurrentForThread("thread-1"))
}

func TestUpdateGLBURL(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	store.SaveScene(sampleState())
	store.UpdateGLBURL("v1", "https://storage.example/signed.glb")

	got := store.GetScene("v1")
	require.NotNil(t, got)
	assert.Equal(t, "https://storage.example/signed.glb", got.GLBURL)

	// Unknown scene is a logged no-op.
	store.UpdateGLBURL("missing", "https://storage.example/other.glb")
}
