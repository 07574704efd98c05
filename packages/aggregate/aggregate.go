package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"repochat/types"
)

// ErrFileNotFound means the selected path is not part of the loaded repository.
var ErrFileNotFound = errors.New("selected file not found in repository")

// Aggregate builds the LLM context blob from the loaded files.
//
// With an empty selectedPath every file is rendered as a
// "--- FILE: path (lang) ---" block in lexicographic path order so the
// output is deterministic for a given collection. With a selectedPath it
// returns exactly that file's block. An empty collection with no
// selection yields an empty string, not an error.
func Aggregate(files []types.FileEntry, selectedPath string) (string, error) {
	if selectedPath != "" {
		for _, file := range files {
			if file.Path == selectedPath {
				return renderFile(file), nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, selectedPath)
	}

	sorted := make([]types.FileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	var builder strings.Builder
	for _, file := range sorted {
		builder.WriteString(renderFile(file))
	}
	return builder.String(), nil
}

func renderFile(file types.FileEntry) string {
	return fmt.Sprintf("\n\n--- FILE: %s (%s) ---\n```%s\n%s\n```",
		file.Path, file.Language, file.Language, file.Content)
}
