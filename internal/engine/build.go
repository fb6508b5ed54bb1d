package engine

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dockhand-io/dockhand/internal/core"
)

// buildSkipDirs never belong in a build context.
var buildSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// buildFromGit materializes the application's source and builds its image,
// tagged {namespace}/{app.id}:v{version}. A source URL that is already a
// local directory is used in place; anything else is shallow-cloned under
// the deploy path.
func (e *Engine) buildFromGit(ctx context.Context, app *core.Application, dep *core.Deployment) (string, error) {
	repoDir := app.SourceURL
	if info, err := os.Stat(repoDir); repoDir == "" || err != nil || !info.IsDir() {
		repoDir = filepath.Join(e.cfg.DeployPath, app.ID)
		if err := os.RemoveAll(repoDir); err != nil {
			return "", core.Wrap(core.KindBuildFailed, err, "clean clone dir")
		}
		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", app.SourceBranch, app.SourceURL, repoDir)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", core.Errorf(core.KindBuildFailed, "git clone %s: %v: %s", app.SourceURL, err, strings.TrimSpace(string(out)))
		}
		e.log.Info("source cloned", "url", app.SourceURL, "branch", app.SourceBranch)
	}

	tag := fmt.Sprintf("%s/%s:v%d", e.cfg.ImageNamespace, app.ID, dep.Version)
	buildDir := repoDir
	if app.BuildContext != "" && app.BuildContext != "." {
		buildDir = filepath.Join(repoDir, app.BuildContext)
	}
	dockerfile := app.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	content, err := os.ReadFile(filepath.Join(buildDir, dockerfile))
	if err != nil {
		return "", core.Errorf(core.KindBuildFailed, "read %s: %v", dockerfile, err)
	}

	tarball, err := buildTar(buildDir, dockerfile, content)
	if err != nil {
		return "", core.Wrap(core.KindBuildFailed, err, "pack build context")
	}
	out, err := e.docker.BuildImage(ctx, tarball, tag, dockerfile)
	if err != nil {
		// The daemon's stream is the only record of what went wrong.
		if tail := lastLines(out, 20); tail != "" {
			return "", core.Errorf(core.KindBuildFailed, "build %s: %v\n%s", tag, err, tail)
		}
		return "", core.Wrap(core.KindBuildFailed, err, "build "+tag)
	}
	e.log.Info("image built", "tag", tag)
	return tag, nil
}

// pullImage pulls the application's declared image, falling back to an
// already-present local copy when the registry is unreachable.
func (e *Engine) pullImage(ctx context.Context, app *core.Application) (string, error) {
	image := app.Image
	if image == "" {
		image = app.SourceURL
	}
	if image == "" {
		return "", core.Errorf(core.KindInvalidInput, "application %s declares no image", app.ID)
	}
	e.log.Info("pulling image", "image", image)
	if err := e.docker.PullImage(ctx, image); err != nil {
		if e.docker.ImageExists(ctx, image) {
			e.log.Warn("pull failed, using local image", "image", image, "error", err)
			return image, nil
		}
		return "", core.Wrap(core.KindPullFailed, err, "pull "+image)
	}
	return image, nil
}

// buildTar packs a directory into an in-memory gzipped tar stream, dropping
// VCS and dependency directories and adding the Dockerfile under its
// declared name with the given content. The daemon detects the compression
// on its own.
func buildTar(dir, dockerfile string, dockerfileContent []byte) (io.Reader, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && buildSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rel == dockerfile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := tw.WriteHeader(&tar.Header{
		Name: filepath.ToSlash(dockerfile),
		Mode: 0o644,
		Size: int64(len(dockerfileContent)),
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(dockerfileContent); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// lastLines returns the trailing n lines of s.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
