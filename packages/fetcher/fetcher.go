package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"repochat/packages/config"
	"repochat/types"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidURL means the input could not be parsed as a GitHub repository URL.
	ErrInvalidURL = errors.New("invalid GitHub repository URL")
	// ErrNotFound means the repository does not exist or is not accessible
	// with the supplied credentials.
	ErrNotFound = errors.New("repository not found or inaccessible")
	// ErrRateLimited means the GitHub API quota is exhausted.
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")
)

var repoURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)`)

// ParseRepoURL extracts owner and repository name from a GitHub URL.
// Trailing path segments and a ".git" suffix are tolerated.
func ParseRepoURL(rawURL string) (string, string, error) {
	match := repoURLPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if match == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	owner := match[1]
	repo := strings.SplitN(match[2], ".git", 2)[0]
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return owner, repo, nil
}

// RepoContents is the result of one repository load.
type RepoContents struct {
	Owner  string
	Repo   string
	Branch string
	Files  []types.FileEntry
}

// Fetcher retrieves repository file contents through the GitHub REST API.
type Fetcher struct {
	cfg     config.GitHubConfig
	timeout time.Duration
}

// NewFetcher constructs a Fetcher from configuration.
func NewFetcher(cfg config.GitHubConfig) *Fetcher {
	return &Fetcher{
		cfg:     cfg,
		timeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}
}

// Fetch enumerates all text files in the default branch of the repository
// identified by source and returns their contents, sorted by path.
func (f *Fetcher) Fetch(ctx context.Context, source types.RepoSource) (*RepoContents, error) {
	owner, repo, err := ParseRepoURL(source.URL)
	if err != nil {
		return nil, err
	}

	client, err := f.newClient(ctx, source.Token)
	if err != nil {
		return nil, err
	}

	slog.Info("Fetching repository", "owner", owner, "repo", repo, "authenticated", source.Token != "")

	repository, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classifyGitHubError(err)
	}
	branch := repository.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	tree, _, err := client.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		return nil, classifyGitHubError(err)
	}

	contents := &RepoContents{Owner: owner, Repo: repo, Branch: branch}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		if shouldIgnoreFile(path) {
			continue
		}
		if int64(entry.GetSize()) > f.cfg.MaxFileSize {
			slog.Debug("Skipping oversized file", "path", path, "size", entry.GetSize())
			continue
		}

		content, err := f.fetchBlob(ctx, client, owner, repo, entry.GetSHA())
		if err != nil {
			// Best effort: unreadable files are skipped, not fatal.
			slog.Warn("Skipping unreadable file", "path", path, "error", err)
			continue
		}
		if isBinary(content) {
			continue
		}

		contents.Files = append(contents.Files, types.FileEntry{
			Path:     path,
			Content:  string(content),
			Language: languageForExt(filepath.Ext(path)),
			Size:     int64(len(content)),
		})
	}

	sort.Slice(contents.Files, func(i, j int) bool {
		return contents.Files[i].Path < contents.Files[j].Path
	})

	slog.Info("Repository fetched", "owner", owner, "repo", repo, "branch", branch, "files", len(contents.Files))
	return contents, nil
}

func (f *Fetcher) fetchBlob(ctx context.Context, client *github.Client, owner, repo, sha string) ([]byte, error) {
	blob, _, err := client.Git.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, classifyGitHubError(err)
	}
	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.GetContent(), "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode blob: %w", err)
		}
		return decoded, nil
	}
	return []byte(blob.GetContent()), nil
}

func (f *Fetcher) newClient(ctx context.Context, token string) (*github.Client, error) {
	httpClient := &http.Client{Timeout: f.timeout}
	if token != "" {
		// Keep the timeout on the underlying transport used by oauth2.
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, tokenSource)
	}
	client := github.NewClient(httpClient)
	if f.cfg.APIBaseURL != "" {
		baseURL, err := url.Parse(f.cfg.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GitHub API base URL: %w", err)
		}
		if !strings.HasSuffix(baseURL.Path, "/") {
			baseURL.Path += "/"
		}
		client.BaseURL = baseURL
	}
	return client, nil
}

func classifyGitHubError(err error) error {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return fmt.Errorf("%w (resets %s)", ErrRateLimited, rateLimitErr.Rate.Reset.Time.Format(time.RFC3339))
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: secondary limit", ErrRateLimited)
	}
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		switch apiErr.Response.StatusCode {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		}
		return fmt.Errorf("GitHub API error: %w", err)
	}
	return fmt.Errorf("network error talking to GitHub: %w", err)
}
