package fetcher

import "strings"

// Default ignore patterns for directories that never carry reviewable
// source (dependency trees, build output, editor state).
var defaultIgnoreDirs = []string{
	"node_modules", ".git", ".svn", ".hg",
	"dist", "build", ".next", ".nuxt", "out",
	"coverage", ".nyc_output", ".coverage",
	"__pycache__", ".pytest_cache",
	".vscode", ".idea", ".venv", "venv", "env",
	"target", ".gradle", ".mvn",
	".turbo", ".vercel", ".netlify",
}

var defaultIgnoreFiles = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", "bun.lockb",
	"go.sum", "Pipfile.lock", "poetry.lock", "Gemfile.lock",
	"composer.lock", "mix.lock", "pubspec.lock",
	".env", ".env.local", ".env.production", ".env.development",
	".DS_Store", "Thumbs.db",
}

// File extensions to ignore (binary/media files)
var ignoreExtensions = []string{
	// Images
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp", ".tiff",
	// Videos
	".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm",
	// Audio
	".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma",
	// Documents
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	// Archives
	".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz",
	// Executables
	".exe", ".dll", ".so", ".dylib", ".app", ".deb", ".rpm",
	// Fonts
	".ttf", ".otf", ".woff", ".woff2", ".eot",
	// Other binary
	".bin", ".dat", ".db", ".sqlite", ".sqlite3",
}

var allowedHiddenFiles = []string{
	".gitignore", ".gitattributes", ".editorconfig",
	".eslintrc", ".prettierrc", ".babelrc",
	".dockerignore", ".env.example", ".nvmrc",
}

// shouldIgnoreFile reports whether a repository path should be excluded
// from fetching. The rules are a best-effort heuristic: lockfiles,
// binary/media extensions, vendored directories, and most hidden files.
func shouldIgnoreFile(path string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	name := normalized
	if idx := strings.LastIndex(normalized, "/"); idx >= 0 {
		name = normalized[idx+1:]
	}

	for _, dir := range defaultIgnoreDirs {
		lowered := strings.ToLower(dir)
		if strings.HasPrefix(normalized, lowered+"/") || strings.Contains(normalized, "/"+lowered+"/") {
			return true
		}
	}

	for _, pattern := range defaultIgnoreFiles {
		if name == strings.ToLower(pattern) {
			return true
		}
	}

	for _, ext := range ignoreExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}

	if strings.HasPrefix(name, ".") && len(name) > 1 {
		for _, allowed := range allowedHiddenFiles {
			if name == strings.ToLower(allowed) || strings.HasPrefix(name, strings.ToLower(allowed)) {
				return false
			}
		}
		return true
	}

	return false
}

// isBinary applies a NUL-byte and non-printable heuristic to the first
// 8192 bytes of content.
func isBinary(content []byte) bool {
	checkSize := 8192
	if len(content) < checkSize {
		checkSize = len(content)
	}
	if checkSize == 0 {
		return false
	}

	for i := 0; i < checkSize; i++ {
		if content[i] == 0 {
			return true
		}
	}

	// Additional heuristic: if more than 30% of characters are non-printable
	nonPrintable := 0
	for i := 0; i < checkSize; i++ {
		if content[i] < 32 && content[i] != '\n' && content[i] != '\r' && content[i] != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(checkSize) > 0.30
}

var languageMap = map[string]string{
	".go":         "go",
	".js":         "javascript",
	".jsx":        "jsx",
	".ts":         "typescript",
	".tsx":        "tsx",
	".py":         "python",
	".java":       "java",
	".cpp":        "cpp",
	".cc":         "cpp",
	".cxx":        "cpp",
	".c":          "c",
	".cs":         "csharp",
	".html":       "html",
	".htm":        "html",
	".css":        "css",
	".scss":       "scss",
	".sass":       "sass",
	".less":       "less",
	".json":       "json",
	".xml":        "xml",
	".yaml":       "yaml",
	".yml":        "yaml",
	".md":         "markdown",
	".markdown":   "markdown",
	".sh":         "bash",
	".bash":       "bash",
	".zsh":        "zsh",
	".fish":       "fish",
	".sql":        "sql",
	".rb":         "ruby",
	".php":        "php",
	".rs":         "rust",
	".kt":         "kotlin",
	".swift":      "swift",
	".dart":       "dart",
	".vue":        "vue",
	".svelte":     "svelte",
	".r":          "r",
	".scala":      "scala",
	".clj":        "clojure",
	".hs":         "haskell",
	".elm":        "elm",
	".ex":         "elixir",
	".exs":        "elixir",
	".pl":         "perl",
	".lua":        "lua",
	".vim":        "vim",
	".dockerfile": "dockerfile",
	".toml":       "toml",
	".ini":        "ini",
	".cfg":        "ini",
	".conf":       "conf",
}

// languageForExt maps a file extension to a fenced-code-block language tag.
func languageForExt(ext string) string {
	if lang, exists := languageMap[strings.ToLower(ext)]; exists {
		return lang
	}
	return ""
}
