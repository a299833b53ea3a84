package backup

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultAPIBaseURL = "https://api.github.com"
	githubTimeout     = 15 * time.Second

	pushMaxRetries   = 2
	pushRetryInitial = time.Second

	commitMessage = "Update posted announcements"
)

type GitHubConfig struct {
	Token string
	// Repo is "owner/name".
	Repo   string
	Path   string
	Branch string
	// APIBaseURL overrides the GitHub API endpoint. Empty means the
	// public API.
	APIBaseURL string
}

// GitHubSyncer stores the snapshot as a single file in a repository via
// the contents API. A push is skipped when the remote blob already
// matches the snapshot, so no-op cycles do not pile up commits.
type GitHubSyncer struct {
	cfg    GitHubConfig
	client *http.Client
	log    *slog.Logger
}

func NewGitHubSyncer(cfg GitHubConfig, log *slog.Logger) (*GitHubSyncer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("token is empty")
	}

	owner, name, ok := strings.Cut(cfg.Repo, "/")
	if !ok || strings.TrimSpace(owner) == "" || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("repo %q is not an owner/name pair", cfg.Repo)
	}

	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("path is empty")
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return &GitHubSyncer{
		cfg:    cfg,
		client: &http.Client{Timeout: githubTimeout},
		log:    log,
	}, nil
}

// Sync pushes the snapshot, creating the remote file when absent and
// updating it otherwise. It returns false on any failure and never
// panics past its boundary.
func (s *GitHubSyncer) Sync(ctx context.Context, snapshot []byte) bool {
	backoff := retry.WithMaxRetries(pushMaxRetries, retry.NewFibonacci(pushRetryInitial))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return s.push(ctx, snapshot)
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to push store snapshot to remote repository",
			"error", err,
			"repo", s.cfg.Repo,
			"path", s.cfg.Path,
			"branch", s.cfg.Branch,
			"sizeBytes", len(snapshot))

		return false
	}

	return true
}

func (s *GitHubSyncer) push(ctx context.Context, snapshot []byte) error {
	remoteSHA, err := s.remoteSHA(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote sha: %w", err)
	}

	if remoteSHA == blobSHA(snapshot) {
		s.log.DebugContext(ctx, "Remote snapshot is up to date",
			"repo", s.cfg.Repo,
			"path", s.cfg.Path)

		return nil
	}

	body := map[string]string{
		"message": commitMessage,
		"content": base64.StdEncoding.EncodeToString(snapshot),
	}
	if s.cfg.Branch != "" {
		body["branch"] = s.cfg.Branch
	}
	if remoteSHA != "" {
		body["sha"] = remoteSHA
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPut, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("do request: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return retry.RetryableError(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// remoteSHA returns the blob sha of the remote file, or empty when the
// file does not exist yet.
func (s *GitHubSyncer) remoteSHA(ctx context.Context) (string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", retry.RetryableError(fmt.Errorf("do request: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", retry.RetryableError(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var content struct {
		SHA string `json:"sha"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return content.SHA, nil
}

func (s *GitHubSyncer) newRequest(
	ctx context.Context,
	method string,
	body io.Reader,
) (*http.Request, error) {
	u := fmt.Sprintf("%s/repos/%s/contents/%s", s.cfg.APIBaseURL, s.cfg.Repo, s.cfg.Path)
	if method == http.MethodGet && s.cfg.Branch != "" {
		u += "?ref=" + s.cfg.Branch
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github+json")

	return req, nil
}

// blobSHA computes the git blob hash of the content, matching the sha the
// contents API reports for an existing file.
func blobSHA(content []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content))))
	h.Write([]byte{0})
	h.Write(content)

	return hex.EncodeToString(h.Sum(nil))
}
