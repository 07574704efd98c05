package types

// Role identifies the author of a chat turn. The values follow the
// Gemini API role names so history can be replayed without translation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatTurn is one entry in the conversation transcript.
type ChatTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// RepoSource identifies which repository to load and under what
// authorization. It is replaced wholesale on every new load.
type RepoSource struct {
	URL   string
	Token string
}

// FileEntry is one retrieved text file from a repository.
type FileEntry struct {
	Path     string
	Content  string
	Language string
	Size     int64
}
