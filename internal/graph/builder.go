package graph

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxop/voxop/internal/errors"
	"github.com/voxop/voxop/internal/library"
	"github.com/voxop/voxop/internal/log"
)

// Sequencing cues open a new stage whose tasks depend on the previous
// stage. Conjunction cues inside a stage separate independent tasks.
// "and then" must come before "and" so the sequential form wins.
var (
	seqCueRe = regexp.MustCompile(`\s*,?\s*\b(?:and then|then|after that|afterwards|followed by|next)\b\s*,?\s*`)
	parCueRe = regexp.MustCompile(`\s*,?\s*\b(?:and also|at the same time|meanwhile|while|also|and|plus)\b\s*,?\s*`)

	bestEffortRe = regexp.MustCompile(`\s*,?\s*\b(?:regardless(?: of (?:the )?outcome)?|either way|even if (?:it|that) fails)\b\s*,?\s*`)

	guiVerbRe   = regexp.MustCompile(`\b(?:click|double.?click|right.?click|press|scroll|select|compose|drag|toggle|submit|send|play|pause|menu|tab)\b`)
	dictationRe = regexp.MustCompile(`^(?:type|write|dictate|say)\b\s*`)

	// Demonstratives only resolve against a known screen context.
	demonstrativeRe = regexp.MustCompile(`\b(?:this|that|here|it)\b`)
)

// shellLexicon marks words that make a sub-intent expressible as a
// shell command sequence, eligible for model generation.
var shellLexicon = map[string]bool{
	"run": true, "execute": true, "install": true, "uninstall": true,
	"build": true, "compile": true, "test": true, "deploy": true,
	"list": true, "show": true, "create": true, "make": true,
	"delete": true, "remove": true, "move": true, "copy": true,
	"rename": true, "download": true, "upload": true, "clone": true,
	"commit": true, "push": true, "pull": true, "merge": true,
	"checkout": true, "restart": true, "stop": true, "update": true,
	"upgrade": true, "search": true, "find": true, "check": true,
	"git": true, "docker": true, "npm": true, "clean": true,
	"compress": true, "extract": true, "convert": true, "backup": true,
	"sync": true, "mount": true, "ping": true,
}

// DisplayResource is the shared resource key serializing every task
// that manipulates the visible screen surface.
const DisplayResource = "display"

// proto is a task under construction, before IDs and edges exist.
type proto struct {
	desc     string
	path     Path
	commands [][]string
	text     string
	resource string
}

// Builder turns corrected utterance text plus a command library
// snapshot into a validated task graph. All-or-nothing: any
// unresolvable sub-intent fails the whole build.
type Builder struct {
	logger *log.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(logger *log.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build parses the utterance into a task graph. screenContext, when
// known, lets demonstrative phrases ("fill this in") resolve to the
// GUI path instead of failing.
func (b *Builder) Build(utterance string, lib *library.Snapshot, screenContext string) (*Graph, error) {
	norm := library.Normalize(utterance)
	if norm == "" {
		return nil, errors.New(errors.ErrCodeEmptyUtterance, "utterance is empty")
	}

	g := &Graph{
		ID:        uuid.NewString(),
		Utterance: utterance,
		Tasks:     make(map[string]*Task),
		CreatedAt: time.Now(),
	}

	var prevStage []string
	seq := 0
	for _, stage := range splitNonEmpty(seqCueRe, norm) {
		bestEffort := bestEffortRe.MatchString(stage)
		if bestEffort {
			stage = strings.TrimSpace(bestEffortRe.ReplaceAllString(stage, " "))
			stage = library.Normalize(stage)
		}

		var exitIDs []string
		for _, piece := range splitStage(stage, lib) {
			protos, err := b.resolve(piece, lib, screenContext)
			if err != nil {
				return nil, err
			}

			// Workflow chains link internally; only the first
			// member carries the stage's incoming edges and only
			// the last one is depended on by the next stage.
			var prevChainID string
			for i, p := range protos {
				id := fmt.Sprintf("task_%d", seq)
				t := &Task{
					ID:          id,
					Description: p.desc,
					Path:        p.path,
					ResourceKey: p.resource,
					Commands:    p.commands,
					Text:        p.text,
					State:       StatePending,
					Seq:         seq,
				}
				seq++

				if i == 0 {
					for _, depID := range prevStage {
						t.Deps = append(t.Deps, Dep{TaskID: depID, BestEffort: bestEffort})
					}
				} else {
					t.Deps = []Dep{{TaskID: prevChainID}}
				}
				prevChainID = id

				g.Tasks[id] = t
				g.Order = append(g.Order, id)
			}
			exitIDs = append(exitIDs, prevChainID)
		}
		prevStage = exitIDs
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	b.logger.Debug("graph built",
		"graph_id", g.ID,
		"tasks", len(g.Order),
		"utterance", utterance,
	)
	return g, nil
}

// splitStage breaks one stage into independent pieces. A stage that is
// an exact library entry is never split, so multi-word library phrases
// containing "and" survive intact. Fuzzy workflow matching happens per
// piece, after splitting, to keep it from swallowing neighbors.
func splitStage(stage string, lib *library.Snapshot) []string {
	if lib.HasExact(stage) {
		return []string{stage}
	}
	return splitNonEmpty(parCueRe, stage)
}

func splitNonEmpty(re *regexp.Regexp, s string) []string {
	var out []string
	for _, part := range re.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolve maps one sub-intent to its execution path. Resolution order:
// command library first, then explicit dictation, then GUI verbs, then
// the shell lexicon. Anything left over is ambiguous and fails the
// whole build.
func (b *Builder) resolve(piece string, lib *library.Snapshot, screenContext string) ([]proto, error) {
	if alias, ok := lib.MatchAlias(piece); ok {
		return []proto{{
			desc:     piece,
			path:     PathDeterministic,
			commands: alias.Commands,
			resource: alias.Resource,
		}}, nil
	}

	if name, wf, ok := lib.MatchWorkflow(piece); ok {
		protos := make([]proto, 0, len(wf.Steps))
		for _, step := range wf.Steps {
			protos = append(protos, proto{
				desc:     fmt.Sprintf("%s: %s", name, step.Name),
				path:     PathDeterministic,
				commands: [][]string{step.Command},
				resource: wf.Resource,
			})
		}
		return protos, nil
	}

	if appName, launch, resource, ok := lib.MatchApp(piece); ok {
		return []proto{{
			desc:     "launch " + appName,
			path:     PathDeterministic,
			commands: [][]string{launch},
			resource: resource,
		}}, nil
	}

	if m := dictationRe.FindString(piece); m != "" {
		payload := strings.TrimSpace(piece[len(m):])
		if payload == "" {
			return nil, errors.NewAmbiguousIntentError(piece).
				WithSuggestion("Say what text should be typed")
		}
		return []proto{{
			desc:     piece,
			path:     PathInjection,
			text:     payload,
			resource: DisplayResource,
		}}, nil
	}

	if guiVerbRe.MatchString(piece) {
		return []proto{{
			desc:     piece,
			path:     PathGUI,
			text:     piece,
			resource: DisplayResource,
		}}, nil
	}

	if screenContext != "" && demonstrativeRe.MatchString(piece) {
		return []proto{{
			desc:     piece,
			path:     PathGUI,
			text:     piece,
			resource: DisplayResource,
		}}, nil
	}

	for _, word := range strings.Fields(piece) {
		if shellLexicon[word] {
			return []proto{{
				desc: piece,
				path: PathGenerated,
				text: piece,
			}}, nil
		}
	}

	return nil, errors.NewAmbiguousIntentError(piece)
}
