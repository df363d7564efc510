package repo

import (
	"context"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/zeebo/errs"
)

var ErrRepo = errs.Class("repo")

type Config struct {
	Enabled bool `help:"resolve the branch head before dispatching a deploy" default:"true"`
}

type Resolver struct {
	conf *Config
}

func NewResolver(conf *Config) *Resolver {
	return &Resolver{conf: conf}
}

// HeadCommit asks the remote for the current head of branch, without
// cloning. Used to record the expected commit on an attempt before the
// remote script runs; best-effort, callers treat errors as advisory.
func (r *Resolver) HeadCommit(ctx context.Context, repoUrl, branch string) (string, error) {
	if !r.conf.Enabled {
		return "", nil
	}
	rem := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoUrl},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", ErrRepo.Wrap(err)
	}
	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	// tags are acceptable targets too
	if tag := plumbing.NewTagReferenceName(branch); branch != "" {
		for _, ref := range refs {
			if ref.Name() == tag {
				return ref.Hash().String(), nil
			}
		}
	}
	return "", ErrRepo.New("branch %s not found on %s", branch, redact(repoUrl))
}

// redact strips userinfo from a repo url before it reaches logs or errors.
func redact(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && at > scheme {
			return url[:scheme+3] + url[at+1:]
		}
	}
	return url
}
