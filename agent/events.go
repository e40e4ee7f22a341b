package agent

import "github.com/df07/blender-llm/scene"

// Workflow states reported over the event stream.
const (
	StateStarted               = "started"
	StateAnalyzing             = "analyzing_request"
	StateAnalyzingModification = "analyzing_modification"
	StateModificationAnalyzed  = "modification_analyzed"
	StateScriptGenerated       = "script_generated"
	StateRenderPending         = "render_pending"
	StateCompleted             = "completed"
	StateConversationOnly      = "conversation_only"
	StateError                 = "error"
)

// AgentEvent is implemented by everything the workflow can emit while
// processing a turn. EventType becomes the SSE event name.
type AgentEvent interface {
	EventType() string
}

// MessageEvent carries conversational text for the user.
type MessageEvent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (e MessageEvent) EventType() string { return "message" }

// StatusEvent reports a workflow state transition, with an optional
// human-readable note.
type StatusEvent struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

func (e StatusEvent) EventType() string { return "status" }

// ScriptEvent carries the generated Blender script.
type ScriptEvent struct {
	Script string `json:"script"`
}

func (e ScriptEvent) EventType() string { return "script" }

// RenderEvent carries the signed URL of a finished render.
type RenderEvent struct {
	SignedURL string `json:"signed_url"`
}

func (e RenderEvent) EventType() string { return "render" }

// SceneStateEvent carries the scene extracted from the latest script.
type SceneStateEvent struct {
	Scene *scene.State `json:"scene"`
}

func (e SceneStateEvent) EventType() string { return "scene_state" }

// SceneHistoryEvent carries the ordered scene lineage of a thread.
type SceneHistoryEvent struct {
	Scenes []*scene.State `json:"scenes"`
}

func (e SceneHistoryEvent) EventType() string { return "scene_history" }

// ErrorEvent reports a failure. The workflow keeps going where it can;
// a terminal error is followed by an EndEvent like any other turn.
type ErrorEvent struct {
	Error string `json:"error"`
}

func (e ErrorEvent) EventType() string { return "error" }

// EndEvent closes a turn with its final state.
type EndEvent struct {
	State string `json:"state"`
}

func (e EndEvent) EventType() string { return "end" }
