package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/scene"
	"github.com/df07/blender-llm/script"
)

// scriptedProvider replays canned responses in order and records the
// requests it saw.
type scriptedProvider struct {
	responses []string
	requests  []*llm.GenerateRequest
}

func (p *scriptedProvider) GenerateText(ctx context.Context, req *llm.GenerateRequest) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.Response{Text: resp, StopReason: "stop"}, nil
}

func (p *scriptedProvider) ListModels() []llm.ModelInfo {
	return []llm.ModelInfo{{ID: "fake-model", DisplayName: "Fake", Provider: "fake"}}
}

func (p *scriptedProvider) Name() string { return "fake" }

type fakeRenderer struct {
	url     string
	err     error
	scripts []string
}

func (r *fakeRenderer) Render(ctx context.Context, threadID, prompt, scriptText string) (string, error) {
	r.scripts = append(r.scripts, scriptText)
	return r.url, r.err
}

func newTestWorkflow(t *testing.T, provider *scriptedProvider, renderer Renderer) (*Workflow, *scene.Store) {
	t.Helper()
	registry := llm.NewRegistry()
	registry.Add(provider)
	store, err := scene.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewWorkflow(WorkflowConfig{
		Registry: registry,
		Model:    "fake-model",
		Renderer: renderer,
		Store:    store,
	}), store
}

func collectEvents(t *testing.T, ch <-chan AgentEvent) []AgentEvent {
	t.Helper()
	var events []AgentEvent
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func endState(t *testing.T, events []AgentEvent) string {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events emitted")
	}
	end, ok := events[len(events)-1].(EndEvent)
	if !ok {
		t.Fatalf("last event = %T, want EndEvent", events[len(events)-1])
	}
	return end.State
}

// cubeScript is a known-good script the fake model "generates".
func cubeScript() string {
	red := [3]float64{1, 0, 0}
	state := &scene.State{
		Description: "a spinning red cube",
		Settings:    scene.DefaultSettings(),
		Objects: []scene.Object{
			{ID: "c1", Name: "Camera", Type: scene.TypeCamera,
				Position: [3]float64{10, -10, 10}, Properties: map[string]any{"isActive": true}},
			{ID: "cube1", Name: "Cube", Type: scene.TypeCube,
				Scale: [3]float64{1, 1, 1}, Material: &scene.Material{Color: &red},
				Properties: map[string]any{"size": 2.0}},
		},
	}
	return script.Generate(state)
}

func TestWorkflowFreshGeneration(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"GENERATE_ANIMATION: a spinning red cube",
		"```python\n" + cubeScript() + "\n```",
	}}
	renderer := &fakeRenderer{url: "https://storage.example/animation.glb"}
	wf, store := newTestWorkflow(t, provider, renderer)

	events := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make a spinning red cube", nil))

	if state := endState(t, events); state != StateCompleted {
		t.Fatalf("end state = %q, want %q (events: %+v)", state, StateCompleted, events)
	}
	if len(renderer.scripts) != 1 {
		t.Fatalf("renderer called %d times", len(renderer.scripts))
	}

	var sawScript, sawRender bool
	for _, e := range events {
		switch ev := e.(type) {
		case ScriptEvent:
			sawScript = true
		case RenderEvent:
			sawRender = true
			if ev.SignedURL != renderer.url {
				t.Errorf("render url = %q", ev.SignedURL)
			}
		}
	}
	if !sawScript || !sawRender {
		t.Errorf("missing events: script=%v render=%v", sawScript, sawRender)
	}

	current := store.CurrentForThread("thread-1")
	if current == nil {
		t.Fatal("no scene recorded for thread")
	}
	if len(current.GeometryObjects()) != 1 {
		t.Errorf("recorded scene objects = %+v", current.Objects)
	}
	if current.GLBURL != renderer.url {
		t.Errorf("recorded scene url = %q", current.GLBURL)
	}
}

func TestWorkflowModificationTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"GENERATE_ANIMATION: a spinning red cube",
		"```python\n" + cubeScript() + "\n```",
	}}
	renderer := &fakeRenderer{url: "https://storage.example/v1.glb"}
	wf, store := newTestWorkflow(t, provider, renderer)

	first := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make a spinning red cube", nil))
	if state := endState(t, first); state != StateCompleted {
		t.Fatalf("first turn end state = %q", state)
	}
	v1 := store.CurrentForThread("thread-1")
	cubeID := v1.GeometryObjects()[0].ID

	// Second turn: the model answers the modification analysis with a
	// color change for the recorded cube.
	provider.responses = []string{
		fmt.Sprintf(`{"object_changes": {"%s": {"material": {"color": [0, 0, 1]}}}}`, cubeID),
	}
	renderer.url = "https://storage.example/v2.glb"

	second := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make it blue", nil))
	if state := endState(t, second); state != StateCompleted {
		t.Fatalf("second turn end state = %q (events: %+v)", state, second)
	}

	v2 := store.CurrentForThread("thread-1")
	if v2.ID == v1.ID {
		t.Fatal("modification did not produce a new scene version")
	}
	if v2.DerivedFrom != v1.ID {
		t.Errorf("derivedFrom = %q, want %q", v2.DerivedFrom, v1.ID)
	}
	cube := v2.FindObject(v2.GeometryObjects()[0].ID)
	if cube.Material == nil || cube.Material.Color == nil || *cube.Material.Color != [3]float64{0, 0, 1} {
		t.Errorf("cube material = %+v, want blue", cube.Material)
	}
	if history := store.History("thread-1"); len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestWorkflowConversationOnly(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"CONVERSATION: I make 3D animations. What would you like to see?",
	}}
	renderer := &fakeRenderer{url: "unused"}
	wf, store := newTestWorkflow(t, provider, renderer)

	events := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "what can you do?", nil))

	if state := endState(t, events); state != StateConversationOnly {
		t.Fatalf("end state = %q, want %q", state, StateConversationOnly)
	}
	if len(renderer.scripts) != 0 {
		t.Errorf("renderer called on conversation turn")
	}
	if store.CurrentForThread("thread-1") != nil {
		t.Errorf("scene recorded on conversation turn")
	}

	var msg *MessageEvent
	for _, e := range events {
		if m, ok := e.(MessageEvent); ok {
			msg = &m
		}
	}
	if msg == nil || msg.Content == "" {
		t.Fatalf("no conversational reply emitted: %+v", events)
	}
}

func TestWorkflowRenderFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"GENERATE_ANIMATION: a bouncing sphere",
		"```python\n" + cubeScript() + "\n```",
	}}
	renderer := &fakeRenderer{err: fmt.Errorf("blender exited with status 1")}
	wf, store := newTestWorkflow(t, provider, renderer)

	events := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make a bouncing sphere", nil))

	if state := endState(t, events); state != StateError {
		t.Fatalf("end state = %q, want %q", state, StateError)
	}
	var sawError, sawMessage bool
	for _, e := range events {
		switch ev := e.(type) {
		case ErrorEvent:
			sawError = true
		case MessageEvent:
			sawMessage = ev.Content != ""
		}
	}
	if !sawError {
		t.Errorf("no error event emitted: %+v", events)
	}
	if !sawMessage {
		t.Errorf("failed turn left no conversational message: %+v", events)
	}
	if store.CurrentForThread("thread-1") != nil {
		t.Errorf("scene recorded despite render failure")
	}
}

// When the analysis finds nothing to change, the turn regenerates from
// the prompt, and the stored result still extends the thread's lineage.
func TestWorkflowEmptyModificationKeepsLineage(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"GENERATE_ANIMATION: a spinning red cube",
		"```python\n" + cubeScript() + "\n```",
	}}
	renderer := &fakeRenderer{url: "https://storage.example/v1.glb"}
	wf, store := newTestWorkflow(t, provider, renderer)

	first := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make a spinning red cube", nil))
	if state := endState(t, first); state != StateCompleted {
		t.Fatalf("first turn end state = %q", state)
	}
	v1 := store.CurrentForThread("thread-1")

	provider.responses = []string{
		`{"object_changes": {}}`,
		"```python\n" + cubeScript() + "\n```",
	}
	renderer.url = "https://storage.example/v2.glb"

	second := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "actually start again with two cubes", nil))
	if state := endState(t, second); state != StateCompleted {
		t.Fatalf("second turn end state = %q (events: %+v)", state, second)
	}

	v2 := store.CurrentForThread("thread-1")
	if v2.ID == v1.ID {
		t.Fatal("regeneration did not produce a new scene version")
	}
	if v2.DerivedFrom != v1.ID {
		t.Errorf("derivedFrom = %q, want %q", v2.DerivedFrom, v1.ID)
	}
	if history := store.History("thread-1"); len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

// A thread with a recorded scene is always treated as a modification
// request, no matter how conversational the wording is.
func TestWorkflowPriorSceneRoutesToModification(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"GENERATE_ANIMATION: a spinning red cube",
		"```python\n" + cubeScript() + "\n```",
	}}
	renderer := &fakeRenderer{url: "https://storage.example/v1.glb"}
	wf, store := newTestWorkflow(t, provider, renderer)

	first := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "make a spinning red cube", nil))
	if state := endState(t, first); state != StateCompleted {
		t.Fatalf("first turn end state = %q", state)
	}
	cubeID := store.CurrentForThread("thread-1").GeometryObjects()[0].ID

	provider.responses = []string{
		fmt.Sprintf(`{"object_changes": {"%s": {"material": {"color": [0, 1, 0]}}}}`, cubeID),
	}
	second := collectEvents(t, wf.ProcessTurn(context.Background(), "thread-1", "hmm, could it maybe be green instead?", nil))
	if state := endState(t, second); state != StateCompleted {
		t.Fatalf("second turn end state = %q (events: %+v)", state, second)
	}

	var sawAnalyzing, sawClassifying bool
	for _, e := range second {
		if s, ok := e.(StatusEvent); ok {
			switch s.State {
			case StateAnalyzingModification:
				sawAnalyzing = true
			case StateAnalyzing:
				sawClassifying = true
			}
		}
	}
	if !sawAnalyzing {
		t.Errorf("no %s status on follow-up turn: %+v", StateAnalyzingModification, second)
	}
	if sawClassifying {
		t.Errorf("follow-up turn went through intent classification")
	}
}

func TestWorkflowUntaggedIntentIsConversation(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"Sure, happy to chat about animation techniques.",
	}}
	wf, _ := newTestWorkflow(t, provider, &fakeRenderer{})

	events := collectEvents(t, wf.ProcessTurn(context.Background(), "t", "hello", nil))
	if state := endState(t, events); state != StateConversationOnly {
		t.Fatalf("end state = %q, want conversation_only", state)
	}
}
