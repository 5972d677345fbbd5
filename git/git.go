// Package git reads commit and repository metadata from the local git checkout.
package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Tags describing the commit under test.
const (
	TagRepositoryURL        = "git.repository_url"
	TagCommitSHA            = "git.commit.sha"
	TagBranch               = "git.branch"
	TagCommitMessage        = "git.commit.message"
	TagCommitAuthorName     = "git.commit.author.name"
	TagCommitAuthorEmail    = "git.commit.author.email"
	TagCommitAuthorDate     = "git.commit.author.date"
	TagCommitCommitterName  = "git.commit.committer.name"
	TagCommitCommitterEmail = "git.commit.committer.email"
	TagCommitCommitterDate  = "git.commit.committer.date"
)

var ErrGitNotFound = errors.New("git command not found")

const userInfoSeparator = "|||"

// Git runs git commands in a working directory.
type Git struct {
	binary string
	dir    string
	log    log.Logger
}

// New locates the git binary. It fails only when git is not installed.
func New(dir string, log log.Logger) (*Git, error) {
	binary, err := exec.LookPath("git")
	if err != nil {
		return nil, ErrGitNotFound
	}
	return &Git{binary: binary, dir: dir, log: log}, nil
}

// output runs git and returns its trimmed stdout. Failures are logged and yield "".
func (g *Git) output(ctx context.Context, args ...string) string {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		g.log.Warn("Error calling git", "args", strings.Join(args, " "), "stderr", strings.TrimSpace(stderr.String()), "err", err)
		return ""
	}
	return strings.TrimSpace(stdout.String())
}

func (g *Git) RepositoryURL(ctx context.Context) string {
	return g.output(ctx, "ls-remote", "--get-url")
}

func (g *Git) CommitSHA(ctx context.Context) string {
	return g.output(ctx, "rev-parse", "HEAD")
}

func (g *Git) Branch(ctx context.Context) string {
	return g.output(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *Git) CommitMessage(ctx context.Context) string {
	return g.output(ctx, "show", "-s", "--format=%s")
}

// UserInfo returns author and committer tags for HEAD.
func (g *Git) UserInfo(ctx context.Context) map[string]string {
	out := g.output(ctx, "show", "-s",
		"--format=%an|||%ae|||%ad|||%cn|||%ce|||%cd",
		"--date=format:%Y-%m-%dT%H:%M:%S%z",
	)
	return parseUserInfo(out)
}

func parseUserInfo(out string) map[string]string {
	parts := strings.Split(out, userInfoSeparator)
	if len(parts) != 6 {
		return map[string]string{}
	}
	return map[string]string{
		TagCommitAuthorName:     parts[0],
		TagCommitAuthorEmail:    parts[1],
		TagCommitAuthorDate:     parts[2],
		TagCommitCommitterName:  parts[3],
		TagCommitCommitterEmail: parts[4],
		TagCommitCommitterDate:  parts[5],
	}
}

// Tags collects all git tags for the checkout in dir. When git is missing an
// empty map is returned; individual failing commands leave their tag out.
func Tags(ctx context.Context, dir string, log log.Logger) map[string]string {
	g, err := New(dir, log)
	if err != nil {
		log.Warn("Error getting git data", "err", err)
		return map[string]string{}
	}

	tags := make(map[string]string)
	set := func(key, value string) {
		if value != "" {
			tags[key] = value
		}
	}
	set(TagRepositoryURL, g.RepositoryURL(ctx))
	set(TagCommitSHA, g.CommitSHA(ctx))
	set(TagBranch, g.Branch(ctx))
	set(TagCommitMessage, g.CommitMessage(ctx))
	for k, v := range g.UserInfo(ctx) {
		set(k, v)
	}
	return tags
}

// ServiceNameFromRepoURL derives a service name from the last path element of
// a repository URL, e.g. "git@github.com:acme/widgets.git" -> "widgets".
func ServiceNameFromRepoURL(repoURL string) string {
	repoURL = strings.TrimSpace(repoURL)
	repoURL = strings.TrimRight(repoURL, "/")
	if repoURL == "" {
		return ""
	}
	if i := strings.LastIndex(repoURL, ":"); i >= 0 && !strings.Contains(repoURL[i:], "/") {
		repoURL = repoURL[i+1:]
	}
	name := path.Base(repoURL)
	name = strings.TrimSuffix(name, ".git")
	if name == "." || name == "/" {
		return ""
	}
	return strings.ToLower(name)
}
