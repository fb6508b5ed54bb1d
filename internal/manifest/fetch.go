package manifest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Bundle is a cloned repository with both manifests parsed.
type Bundle struct {
	Deploy  *DeployConfig
	Compose *ComposeConfig
	Dir     string
}

// FetchRepo shallow-clones the repository into {deployPath}/repo-{id},
// replacing any previous checkout, and parses both manifests.
func FetchRepo(ctx context.Context, deployPath string, repo core.GitRepo) (*Bundle, error) {
	dir := filepath.Join(deployPath, "repo-"+repo.ID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear checkout %s: %w", dir, err)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", repo.Branch, repo.URL, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, core.Errorf(core.KindRuntimeError, "git clone %s: %v: %s", repo.URL, err, strings.TrimSpace(string(out)))
	}
	return Load(dir, repo.ConfigFile)
}

// LoadLocal parses a deployment directory submitted over the API. Unlike a
// repository checkout, a local directory may omit deploy.yaml: the project
// is then inferred from the directory name with no per-service metadata.
func LoadLocal(dir string) (*Bundle, error) {
	name := filepath.Base(dir)
	return loadDir(dir, projectIDFromName(name), name)
}

// LoadDirAs parses a deployment directory for a known project, keeping the
// given identity when the directory has no deploy manifest.
func LoadDirAs(dir, id, name string) (*Bundle, error) {
	return loadDir(dir, id, name)
}

func loadDir(dir, fallbackID, fallbackName string) (*Bundle, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, core.Errorf(core.KindInvalidInput, "path %s does not exist or is not a directory", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "deploy.yaml")); err == nil {
		return Load(dir, "")
	}
	composeData, err := readCompose(dir)
	if err != nil {
		return nil, err
	}
	compose, err := ParseCompose(composeData)
	if err != nil {
		return nil, err
	}
	deploy := &DeployConfig{ID: fallbackID, Name: fallbackName}
	return &Bundle{Deploy: deploy, Compose: compose, Dir: dir}, nil
}

// projectIDFromName normalizes a directory name into a usable project id.
func projectIDFromName(name string) string {
	id := strings.ToLower(name)
	id = strings.ReplaceAll(id, " ", "-")
	id = strings.ReplaceAll(id, "_", "-")
	return id
}

// Load parses the deploy manifest and docker-compose.yml from a checkout
// directory. Each missing file is its own error so callers can tell which
// manifest a repository lacks. An empty configFile means deploy.yaml.
func Load(dir, configFile string) (*Bundle, error) {
	if configFile == "" {
		configFile = "deploy.yaml"
	}
	deployData, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.Errorf(core.KindNotFound, "%s not found in %s", configFile, dir)
		}
		return nil, fmt.Errorf("read %s: %w", configFile, err)
	}
	composeData, err := readCompose(dir)
	if err != nil {
		return nil, err
	}
	deploy, err := ParseDeploy(deployData)
	if err != nil {
		return nil, err
	}
	compose, err := ParseCompose(composeData)
	if err != nil {
		return nil, err
	}
	return &Bundle{Deploy: deploy, Compose: compose, Dir: dir}, nil
}

// readCompose reads docker-compose.yml, accepting the .yaml spelling as a
// fallback.
func readCompose(dir string) ([]byte, error) {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return nil, core.Errorf(core.KindNotFound, "docker-compose.yml not found in %s", dir)
}
