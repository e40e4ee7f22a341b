package scene

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// threadRecord maps a conversation thread to its current scene and full
// extraction history.
type threadRecord struct {
	ThreadID       string   `json:"threadId"`
	CurrentSceneID string   `json:"currentSceneId,omitempty"`
	SceneHistory   []string `json:"sceneHistory"`
}

// Store persists scene states as one JSON record per id plus a single
// thread-mapping index, under a base directory.
//
// Storage failures are logged and swallowed at the point of read/write: a
// failed read behaves as a miss and a failed write leaves the caller without
// persisted state. Scene tracking is a continuity enhancement, not
// correctness-critical for a single generation, so the turn proceeds either
// way. The mutex covers the in-process thread index only; concurrent
// processes racing on the mapping file are last-writer-wins.
type Store struct {
	dir     string
	mu      sync.Mutex
	threads map[string]*threadRecord
}

// NewStore opens (creating if needed) a store rooted at dir and loads the
// existing thread mappings.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scene store directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		threads: make(map[string]*threadRecord),
	}

	data, err := os.ReadFile(s.mappingPath())
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thread mappings: %w", err)
	}
	if err := json.Unmarshal(data, &s.threads); err != nil {
		// A corrupt index loses continuity but not the scene records.
		log.Printf("discarding unreadable thread mappings: %v", err)
		s.threads = make(map[string]*threadRecord)
	}
	return s, nil
}

func (s *Store) mappingPath() string {
	return filepath.Join(s.dir, "thread_mappings.json")
}

func (s *Store) scenePath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// SaveScene writes state as one record keyed by its id, overwriting any
// existing record with the same id.
func (s *Store) SaveScene(state *State) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("error encoding scene %s: %v", state.ID, err)
		return
	}
	if err := writeFileAtomic(s.scenePath(state.ID), data); err != nil {
		log.Printf("error saving scene %s: %v", state.ID, err)
	}
}

// GetScene loads a scene state by id. Missing or unreadable records return
// nil rather than an error.
func (s *Store) GetScene(id string) *State {
	data, err := os.ReadFile(s.scenePath(id))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("error loading scene %s: %v", id, err)
		}
		return nil
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("error decoding scene %s: %v", id, err)
		return nil
	}
	return &state
}

// CurrentForThread resolves the thread's current-scene pointer and loads it.
// Unknown threads, threads without a current scene, and missing records all
// return nil.
func (s *Store) CurrentForThread(threadID string) *State {
	s.mu.Lock()
	rec := s.threads[threadID]
	var sceneID string
	if rec != nil {
		sceneID = rec.CurrentSceneID
	}
	s.mu.Unlock()

	if sceneID == "" {
		return nil
	}
	return s.GetScene(sceneID)
}

// History returns every scene recorded for the thread in extraction order,
// skipping any record that fails to load.
func (s *Store) History(threadID string) []*State {
	s.mu.Lock()
	var ids []string
	if rec := s.threads[threadID]; rec != nil {
		ids = append(ids, rec.SceneHistory...)
	}
	s.mu.Unlock()

	var out []*State
	for _, id := range ids {
		if state := s.GetScene(id); state != nil {
			out = append(out, state)
		}
	}
	return out
}

// RecordExtraction persists state, appends its id to the thread's history
// (no duplicate if already last), and makes it the thread's current scene.
func (s *Store) RecordExtraction(threadID string, state *State) {
	s.SaveScene(state)

	s.mu.Lock()
	rec := s.threads[threadID]
	if rec == nil {
		rec = &threadRecord{ThreadID: threadID}
		s.threads[threadID] = rec
	}
	n := len(rec.SceneHistory)
	if n == 0 || rec.SceneHistory[n-1] != state.ID {
		rec.SceneHistory = append(rec.SceneHistory, state.ID)
	}
	rec.CurrentSceneID = state.ID
	s.saveMappingsLocked()
	s.mu.Unlock()
}

// UpdateGLBURL attaches the signed download URL to a persisted scene.
// A no-op (logged) if the scene no longer exists.
func (s *Store) UpdateGLBURL(sceneID, url string) {
	state := s.GetScene(sceneID)
	if state == nil {
		log.Printf("cannot attach GLB URL, scene %s not found", sceneID)
		return
	}
	state.GLBURL = url
	s.SaveScene(state)
}

func (s *Store) saveMappingsLocked() {
	data, err := json.MarshalIndent(s.threads, "", "  ")
	if err != nil {
		log.Printf("error encoding thread mappings: %v", err)
		return
	}
	if err := writeFileAtomic(s.mappingPath(), data); err != nil {
		log.Printf("error saving thread mappings: %v", err)
	}
}

// writeFileAtomic writes to a temp file then renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
