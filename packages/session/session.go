package session

import (
	"errors"
	"fmt"
	"sync"

	"repochat/packages/aggregate"
	"repochat/packages/fetcher"
	"repochat/types"
)

// ErrNoRepository means no repository has been loaded into the session yet.
var ErrNoRepository = errors.New("no repository loaded")

// Session owns the state of one browser session: the loaded repository,
// the current file selection, the derived aggregated context, and the
// conversation transcript. The aggregated context is only ever written by
// SetRepository and Select, so it stays derivable from the file collection
// and the selection.
type Session struct {
	mu           sync.Mutex
	source       types.RepoSource
	contents     *fetcher.RepoContents
	selectedPath string
	contextText  string
	turns        []types.ChatTurn
}

// SetRepository replaces the loaded repository wholesale, clearing the file
// selection and the conversation, and derives the whole-repository context.
func (s *Session) SetRepository(source types.RepoSource, contents *fetcher.RepoContents) error {
	contextText, err := aggregate.Aggregate(contents.Files, "")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
	s.contents = contents
	s.selectedPath = ""
	s.contextText = contextText
	s.turns = nil
	return nil
}

// Select switches the context to a single file, or back to the whole
// repository when path is empty, and clears the conversation. The context
// is recomputed from the stored file collection.
func (s *Session) Select(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contents == nil {
		return ErrNoRepository
	}
	contextText, err := aggregate.Aggregate(s.contents.Files, path)
	if err != nil {
		return err
	}
	s.selectedPath = path
	s.contextText = contextText
	s.turns = nil
	return nil
}

// Context returns the aggregated context and a human-readable label for
// where it came from, for use in the LLM system instruction.
func (s *Session) Context() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contents == nil {
		return "", "", ErrNoRepository
	}
	repoURL := fmt.Sprintf("https://github.com/%s/%s", s.contents.Owner, s.contents.Repo)
	if s.selectedPath != "" {
		label := fmt.Sprintf("the file %s/blob/%s/%s", repoURL, s.contents.Branch, s.selectedPath)
		return s.contextText, label, nil
	}
	return s.contextText, fmt.Sprintf("the full codebase from %s", repoURL), nil
}

// AppendTurn appends one turn to the conversation transcript.
func (s *Session) AppendTurn(turn types.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

// History returns a copy of the conversation transcript in order.
func (s *Session) History() []types.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]types.ChatTurn, len(s.turns))
	copy(turns, s.turns)
	return turns
}

// ResetChat clears the conversation but keeps the loaded repository.
func (s *Session) ResetChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Clear discards everything the session holds.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = types.RepoSource{}
	s.contents = nil
	s.selectedPath = ""
	s.contextText = ""
	s.turns = nil
}

// Snapshot describes the loaded repository for UI rendering.
type Snapshot struct {
	Loaded       bool     `json:"loaded"`
	Owner        string   `json:"owner,omitempty"`
	Repo         string   `json:"repo,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	SelectedPath string   `json:"selected_path,omitempty"`
	ContextChars int      `json:"context_chars"`
	Files        []string `json:"files,omitempty"`
}

// Snapshot returns the current UI-facing state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contents == nil {
		return Snapshot{}
	}
	files := make([]string, 0, len(s.contents.Files))
	for _, file := range s.contents.Files {
		files = append(files, file.Path)
	}
	return Snapshot{
		Loaded:       true,
		Owner:        s.contents.Owner,
		Repo:         s.contents.Repo,
		Branch:       s.contents.Branch,
		SelectedPath: s.selectedPath,
		ContextChars: len(s.contextText),
		Files:        files,
	}
}
