// Package webhook turns git-host push deliveries into verified deploy
// triggers. Each supported host gets its own parser and verification rule;
// accepted pushes surface as webhook_received events, never as direct
// engine calls.
package webhook

import (
	"encoding/json"
	"strings"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Push is a normalised push notification from a git host.
type Push struct {
	RepoURL string // clone URL as the host reports it
	SSHURL  string // GitHub's SSH form, used as a lookup fallback
	Branch  string // decoded from refs/heads/*
	Commit  string // head commit of the push
}

// parseGitHub handles GitHub push payloads.
//
//	{
//	    "ref": "refs/heads/main",
//	    "after": "6113728f27ae82c7b1a177c8d03f9e96e0adf246",
//	    "repository": {
//	        "clone_url": "https://github.com/acme/shop.git",
//	        "ssh_url": "git@github.com:acme/shop.git"
//	    }
//	}
func parseGitHub(body []byte) (*Push, error) {
	var gh struct {
		Ref        string `json:"ref"`
		After      string `json:"after"`
		Repository struct {
			CloneURL string `json:"clone_url"`
			SSHURL   string `json:"ssh_url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &gh); err != nil {
		return nil, core.Wrap(core.KindInvalidInput, err, "parse github payload")
	}
	return &Push{
		RepoURL: gh.Repository.CloneURL,
		SSHURL:  gh.Repository.SSHURL,
		Branch:  branchFromRef(gh.Ref),
		Commit:  gh.After,
	}, nil
}

// parseGitLab handles GitLab push payloads.
//
//	{
//	    "ref": "refs/heads/main",
//	    "checkout_sha": "da1560886d...",
//	    "repository": {"git_http_url": "https://gitlab.com/acme/shop.git"}
//	}
func parseGitLab(body []byte) (*Push, error) {
	var gl struct {
		Ref         string `json:"ref"`
		CheckoutSHA string `json:"checkout_sha"`
		After       string `json:"after"`
		Repository  struct {
			GitHTTPURL string `json:"git_http_url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &gl); err != nil {
		return nil, core.Wrap(core.KindInvalidInput, err, "parse gitlab payload")
	}
	commit := gl.CheckoutSHA
	if commit == "" {
		commit = gl.After
	}
	return &Push{
		RepoURL: gl.Repository.GitHTTPURL,
		Branch:  branchFromRef(gl.Ref),
		Commit:  commit,
	}, nil
}

// parseGitea handles Gitea push payloads, which follow GitHub's shape.
func parseGitea(body []byte) (*Push, error) {
	var gt struct {
		Ref        string `json:"ref"`
		After      string `json:"after"`
		Repository struct {
			CloneURL string `json:"clone_url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &gt); err != nil {
		return nil, core.Wrap(core.KindInvalidInput, err, "parse gitea payload")
	}
	return &Push{
		RepoURL: gt.Repository.CloneURL,
		Branch:  branchFromRef(gt.Ref),
		Commit:  gt.After,
	}, nil
}

// branchFromRef decodes a push ref. Tag pushes and other non-branch refs
// yield "" and are ignored upstream.
func branchFromRef(ref string) string {
	if branch, ok := strings.CutPrefix(ref, "refs/heads/"); ok {
		return branch
	}
	return ""
}
