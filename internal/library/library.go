// Package library provides the read-only command library: the phrase to
// action mapping consulted by the graph builder. The on-disk store is a
// YAML document owned by the user; the core only ever sees immutable
// snapshots of it.
package library

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxop/voxop/internal/errors"
)

// Alias maps a spoken phrase to a literal command sequence.
type Alias struct {
	Commands [][]string `yaml:"commands"`
	Resource string     `yaml:"resource,omitempty"`
}

// App maps an application name to its launch command.
type App struct {
	Launch   []string `yaml:"launch"`
	Resource string   `yaml:"resource,omitempty"`
}

// WorkflowStep is one named command inside a workflow.
type WorkflowStep struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
}

// Workflow maps a spoken phrase to an ordered sequence of steps. Steps
// execute as a dependency chain, not as a single block.
type Workflow struct {
	Steps    []WorkflowStep `yaml:"steps"`
	Resource string         `yaml:"resource,omitempty"`
}

// document is the on-disk YAML shape.
type document struct {
	Version   string              `yaml:"version"`
	Aliases   map[string]Alias    `yaml:"aliases"`
	Apps      map[string]App      `yaml:"apps"`
	Workflows map[string]Workflow `yaml:"workflows"`
	Shortcuts map[string][]string `yaml:"shortcuts"`
}

// Snapshot is an immutable view of the command library. A snapshot is
// taken once per utterance; reloads never mutate an existing snapshot.
type Snapshot struct {
	aliases   map[string]Alias
	apps      map[string]App
	workflows map[string]Workflow
	shortcuts map[string][]string
}

// Normalize lowercases a phrase, strips trailing punctuation, and
// collapses runs of whitespace. All lookups normalize both sides.
func Normalize(phrase string) string {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	phrase = strings.Trim(phrase, ".,!?")
	return strings.Join(strings.Fields(phrase), " ")
}

// MatchAlias returns the alias entry for an exactly matching phrase.
func (s *Snapshot) MatchAlias(phrase string) (Alias, bool) {
	a, ok := s.aliases[Normalize(phrase)]
	if !ok {
		return Alias{}, false
	}
	return Alias{Commands: copyCommands(a.Commands), Resource: a.Resource}, true
}

// MatchApp resolves phrases like "open spotify" or a bare app name to a
// launch command. Returns the app name, its launch argv, and its
// resource key (the app name when none is configured).
func (s *Snapshot) MatchApp(phrase string) (name string, launch []string, resource string, ok bool) {
	norm := Normalize(phrase)
	for _, prefix := range []string{"open ", "launch ", "start "} {
		if rest, found := strings.CutPrefix(norm, prefix); found {
			norm = rest
			break
		}
	}

	app, found := s.apps[norm]
	if !found {
		return "", nil, "", false
	}
	resource = app.Resource
	if resource == "" {
		resource = norm
	}
	return norm, append([]string(nil), app.Launch...), resource, true
}

// MatchWorkflow resolves a phrase to a workflow. An exact match wins;
// otherwise a workflow matches when at least half of its name's words
// appear in the phrase.
func (s *Snapshot) MatchWorkflow(phrase string) (string, Workflow, bool) {
	norm := Normalize(phrase)
	if wf, ok := s.workflows[norm]; ok {
		return norm, copyWorkflow(wf), true
	}

	phraseWords := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		phraseWords[w] = true
	}

	bestName := ""
	bestHits := 0
	for name := range s.workflows {
		words := strings.Fields(name)
		hits := 0
		for _, w := range words {
			if phraseWords[w] {
				hits++
			}
		}
		if hits*2 >= len(words) && hits > bestHits {
			bestName = name
			bestHits = hits
		}
	}
	if bestName == "" {
		return "", Workflow{}, false
	}
	return bestName, copyWorkflow(s.workflows[bestName]), true
}

// HasExact reports whether the phrase is an exact alias, workflow, or
// app entry. Used to protect multi-word library phrases from being
// split on conjunction cues.
func (s *Snapshot) HasExact(phrase string) bool {
	norm := Normalize(phrase)
	if _, ok := s.aliases[norm]; ok {
		return true
	}
	if _, ok := s.workflows[norm]; ok {
		return true
	}
	_, _, _, ok := s.MatchApp(phrase)
	return ok
}

// Shortcut returns the keyboard chord registered for a GUI target label,
// used as the deterministic fallback when visual verification fails.
func (s *Snapshot) Shortcut(label string) ([]string, bool) {
	chord, ok := s.shortcuts[Normalize(label)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), chord...), true
}

// Vocabulary returns every known phrase, sorted. Fed to the language
// model as context for transcript correction and command generation.
func (s *Snapshot) Vocabulary() []string {
	vocab := make([]string, 0, len(s.aliases)+len(s.apps)+len(s.workflows))
	for k := range s.aliases {
		vocab = append(vocab, k)
	}
	for k := range s.apps {
		vocab = append(vocab, k)
	}
	for k := range s.workflows {
		vocab = append(vocab, k)
	}
	sort.Strings(vocab)
	return vocab
}

// Size returns the total number of entries across all sections.
func (s *Snapshot) Size() int {
	return len(s.aliases) + len(s.apps) + len(s.workflows) + len(s.shortcuts)
}

// Entry is one listed library item, as shown by the CLI list view.
type Entry struct {
	Kind   string
	Phrase string
	Detail string
}

// Entries returns every library item sorted by kind then phrase.
func (s *Snapshot) Entries() []Entry {
	entries := make([]Entry, 0, s.Size())
	for phrase, a := range s.aliases {
		detail := ""
		if len(a.Commands) > 0 {
			detail = strings.Join(a.Commands[0], " ")
			if len(a.Commands) > 1 {
				detail = fmt.Sprintf("%s (+%d more)", detail, len(a.Commands)-1)
			}
		}
		entries = append(entries, Entry{Kind: "alias", Phrase: phrase, Detail: detail})
	}
	for name, app := range s.apps {
		entries = append(entries, Entry{Kind: "app", Phrase: name, Detail: strings.Join(app.Launch, " ")})
	}
	for phrase, wf := range s.workflows {
		entries = append(entries, Entry{Kind: "workflow", Phrase: phrase, Detail: fmt.Sprintf("%d steps", len(wf.Steps))})
	}
	for label, chord := range s.shortcuts {
		entries = append(entries, Entry{Kind: "shortcut", Phrase: label, Detail: strings.Join(chord, "+")})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Phrase < entries[j].Phrase
	})
	return entries
}

func copyCommands(cmds [][]string) [][]string {
	out := make([][]string, len(cmds))
	for i, c := range cmds {
		out[i] = append([]string(nil), c...)
	}
	return out
}

func copyWorkflow(wf Workflow) Workflow {
	steps := make([]WorkflowStep, len(wf.Steps))
	for i, st := range wf.Steps {
		steps[i] = WorkflowStep{Name: st.Name, Command: append([]string(nil), st.Command...)}
	}
	return Workflow{Steps: steps, Resource: wf.Resource}
}

// Parse builds a snapshot from raw YAML bytes, normalizing all keys.
func Parse(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeLibraryInvalid, "command library is not valid YAML", err).
			WithSuggestion("Run 'voxop library validate' to locate the syntax error")
	}

	snap := &Snapshot{
		aliases:   make(map[string]Alias, len(doc.Aliases)),
		apps:      make(map[string]App, len(doc.Apps)),
		workflows: make(map[string]Workflow, len(doc.Workflows)),
		shortcuts: make(map[string][]string, len(doc.Shortcuts)),
	}

	for phrase, a := range doc.Aliases {
		if len(a.Commands) == 0 {
			return nil, errors.New(errors.ErrCodeLibraryInvalid,
				"alias "+phrase+" has no commands")
		}
		snap.aliases[Normalize(phrase)] = a
	}
	for name, app := range doc.Apps {
		if len(app.Launch) == 0 {
			return nil, errors.New(errors.ErrCodeLibraryInvalid,
				"app "+name+" has no launch command")
		}
		snap.apps[Normalize(name)] = app
	}
	for phrase, wf := range doc.Workflows {
		if len(wf.Steps) == 0 {
			return nil, errors.New(errors.ErrCodeLibraryInvalid,
				"workflow "+phrase+" has no steps")
		}
		for _, st := range wf.Steps {
			if st.Name == "" || len(st.Command) == 0 {
				return nil, errors.New(errors.ErrCodeLibraryInvalid,
					"workflow "+phrase+" has a step without a name or command")
			}
		}
		snap.workflows[Normalize(phrase)] = wf
	}
	for label, chord := range doc.Shortcuts {
		if len(chord) == 0 {
			return nil, errors.New(errors.ErrCodeLibraryInvalid,
				"shortcut "+label+" has no keys")
		}
		snap.shortcuts[Normalize(label)] = chord
	}

	return snap, nil
}

// LoadFile reads and parses a command library file.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path).
				WithSuggestion("Run 'voxop library init' to create a starter library")
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read command library", err)
	}
	return Parse(data)
}
