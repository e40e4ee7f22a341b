package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/internal/platform/metrics"
	"github.com/df07/blender-llm/scene"
	"github.com/df07/blender-llm/script"
)

// Renderer is the animator dependency of the workflow. RenderClient is
// the production implementation.
type Renderer interface {
	Render(ctx context.Context, threadID, prompt, scriptText string) (string, error)
}

// Workflow drives a single chat turn from prompt to rendered animation,
// emitting events as it goes. A thread with a recorded scene is always
// treated as a modification of that scene; a fresh thread goes through
// intent classification first.
type Workflow struct {
	registry  *llm.Registry
	model     string
	generator *ScriptGenerator
	analyzer  *Analyzer
	renderer  Renderer
	store     *scene.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type WorkflowConfig struct {
	Registry *llm.Registry
	Model    string
	Renderer Renderer
	Store    *scene.Store
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func NewWorkflow(cfg WorkflowConfig) *Workflow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		registry:  cfg.Registry,
		model:     cfg.Model,
		generator: NewScriptGenerator(cfg.Registry, cfg.Model),
		analyzer:  NewAnalyzer(cfg.Registry, cfg.Model, logger),
		renderer:  cfg.Renderer,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// ProcessTurn runs one turn asynchronously. The returned channel carries
// the turn's events and is closed after the terminal EndEvent.
func (w *Workflow) ProcessTurn(ctx context.Context, threadID, prompt string, history []llm.Message) <-chan AgentEvent {
	events := make(chan AgentEvent, 16)
	go func() {
		defer close(events)
		w.run(ctx, threadID, prompt, history, events)
	}()
	return events
}

func (w *Workflow) run(ctx context.Context, threadID, prompt string, history []llm.Message, events chan<- AgentEvent) {
	emit := func(e AgentEvent) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	// Failures leave a conversational message in the thread history as
	// well as the machine-readable error event.
	fail := func(userMsg, detail string) {
		emit(MessageEvent{Role: string(llm.RoleAssistant), Content: userMsg})
		emit(ErrorEvent{Error: detail})
	}

	final := StateError
	defer func() {
		if w.metrics != nil {
			w.metrics.TurnFinished(final)
		}
		emit(EndEvent{State: final})
	}()

	emit(StatusEvent{State: StateStarted})

	var (
		scriptText string
		newState   *scene.State
	)

	prior := w.store.CurrentForThread(threadID)
	if prior != nil {
		emit(StatusEvent{State: StateAnalyzingModification, Detail: "Working out how to change the current scene"})
		mod := w.analyzer.Analyze(ctx, prior, prompt)
		if w.metrics != nil {
			w.metrics.ModificationAnalyzed(mod.Source)
		}
		if mod.Empty() {
			w.logger.Info("modification analysis produced no changes, regenerating from prompt",
				"thread", threadID)
		} else {
			emit(StatusEvent{State: StateModificationAnalyzed, Detail: "Changes understood (" + mod.Source + ")"})
			newState = scene.Apply(prior, prompt, mod)
			scriptText = script.Generate(newState)
			if result := script.Validate(scriptText); !result.Valid {
				if w.metrics != nil {
					w.metrics.ScriptRejected()
				}
				fail("I couldn't turn that change into a safe script. Try describing the change differently.",
					"synthesized script failed validation: "+result.Error)
				return
			}
		}
	}

	if scriptText == "" {
		description := prompt
		if prior == nil {
			emit(StatusEvent{State: StateAnalyzing, Detail: "Understanding your request"})
			intent, err := w.classify(ctx, prompt, history)
			if err != nil {
				fail("Something went wrong while reading your request. Please try again.", err.Error())
				return
			}
			if !intent.generate {
				emit(MessageEvent{Role: string(llm.RoleAssistant), Content: intent.reply})
				final = StateConversationOnly
				return
			}
			description = intent.description
		}

		emit(StatusEvent{State: StateAnalyzing, Detail: "Creating your animation script"})
		s, err := w.generator.Generate(ctx, description)
		if err != nil {
			if w.metrics != nil && strings.Contains(err.Error(), "rejected") {
				w.metrics.ScriptRejected()
			}
			fail("I couldn't create an animation script for that. Try rephrasing your request.", err.Error())
			return
		}
		scriptText = s
	}

	emit(ScriptEvent{Script: scriptText})
	emit(StatusEvent{State: StateScriptGenerated})

	if newState == nil {
		newState = script.Parse(scriptText)
		// The model's script rarely carries a usable description; the
		// user's own words are the best record of what this scene is.
		newState.Description = prompt
		// Regenerating from scratch on a thread with history is still a
		// new version of that thread's scene, not a fresh lineage.
		if prior != nil {
			newState.DerivedFrom = prior.ID
		}
	}

	emit(StatusEvent{State: StateRenderPending, Detail: "Rendering your animation"})
	url, err := w.renderer.Render(ctx, threadID, prompt, scriptText)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RenderFailed()
		}
		fail("The animation failed to render. Please try again in a moment.", err.Error())
		return
	}
	if w.metrics != nil {
		w.metrics.RenderSucceeded()
	}
	emit(RenderEvent{SignedURL: url})

	// Persistence failures are logged inside the store and never fail
	// the turn; the user already has their render.
	w.store.RecordExtraction(threadID, newState)
	w.store.UpdateGLBURL(newState.ID, url)
	newState.GLBURL = url

	emit(SceneStateEvent{Scene: newState})
	emit(SceneHistoryEvent{Scenes: w.store.History(threadID)})

	emit(MessageEvent{Role: string(llm.RoleAssistant), Content: "Your animation is ready."})
	final = StateCompleted
}

type intentResult struct {
	generate    bool
	description string
	reply       string
}

const (
	tagGenerate     = "GENERATE_ANIMATION:"
	tagConversation = "CONVERSATION:"
)

// classify asks the model whether the prompt wants an animation. Untagged
// replies are treated as conversation so a confused model never triggers
// a render.
func (w *Workflow) classify(ctx context.Context, prompt string, history []llm.Message) (intentResult, error) {
	provider, err := w.registry.ProviderFor(w.model)
	if err != nil {
		return intentResult{}, err
	}
	msgs := append(append([]llm.Message{}, history...), llm.Message{Role: llm.RoleUser, Text: prompt})
	resp, err := provider.GenerateText(ctx, &llm.GenerateRequest{
		Model:        w.model,
		SystemPrompt: intentSystemPrompt,
		Messages:     msgs,
	})
	if err != nil {
		return intentResult{}, err
	}

	text := strings.TrimSpace(resp.Text)
	if idx := strings.Index(text, tagGenerate); idx >= 0 {
		desc := strings.TrimSpace(text[idx+len(tagGenerate):])
		if desc == "" {
			desc = prompt
		}
		return intentResult{generate: true, description: desc}, nil
	}
	if idx := strings.Index(text, tagConversation); idx >= 0 {
		return intentResult{reply: strings.TrimSpace(text[idx+len(tagConversation):])}, nil
	}
	return intentResult{reply: text}, nil
}
