// Package config handles loading warren.toml configuration files.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	internalstrings "github.com/acorte/warren/internal/strings"
)

// CloneMethod selects how new workspace directories are provisioned.
type CloneMethod string

const (
	// CloneGit provisions with "git clone" from the source repository.
	CloneGit CloneMethod = "git"
	// CloneJujutsuWorkspace provisions with "jj workspace add".
	CloneJujutsuWorkspace CloneMethod = "jj-workspace"
)

// Config represents the warren.toml configuration file.
type Config struct {
	Workspace Workspace `toml:"workspace"`
}

// Workspace contains workspace-related configuration.
type Workspace struct {
	// CloneMethod selects the provisioning strategy for new workspaces.
	// Defaults to "git".
	CloneMethod string `toml:"clone-method"`

	// PostCreate defines commands to run after a workspace is created.
	PostCreate []string `toml:"post-create"`

	// PostApply defines commands to run after an existing workspace is
	// repurposed for a new task.
	PostApply []string `toml:"post-apply"`

	// SkipBranchCreation disables creating a task branch during workspace
	// preparation.
	SkipBranchCreation bool `toml:"skip-branch-creation"`

	// CopyPatterns lists repo-relative globs to copy into a prepared
	// workspace alongside the plan file.
	CopyPatterns []string `toml:"copy-patterns"`
}

// Method returns the configured clone method, defaulting to git.
func (w Workspace) Method() CloneMethod {
	switch CloneMethod(strings.TrimSpace(w.CloneMethod)) {
	case CloneJujutsuWorkspace:
		return CloneJujutsuWorkspace
	default:
		return CloneGit
	}
}

// Load loads configuration from the repo root and the global config file.
// Returns an empty config if no config files exist.
func Load(repoPath string) (*Config, error) {
	globalPath, err := globalConfigPath()
	if err != nil {
		return nil, err
	}

	globalCfg, globalMeta, err := loadConfigFile(globalPath)
	if err != nil {
		return nil, err
	}

	projectCfg, projectMeta, err := loadConfigFile(filepath.Join(repoPath, "warren.toml"))
	if err != nil {
		return nil, err
	}

	return mergeConfigs(globalCfg, projectCfg, globalMeta, projectMeta), nil
}

func globalConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "warren", "config.toml"), nil
}

func loadConfigFile(path string) (*Config, toml.MetaData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, toml.MetaData{}, nil
	}
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return &cfg, meta, nil
}

func mergeConfigs(globalCfg, projectCfg *Config, globalMeta, projectMeta toml.MetaData) *Config {
	if globalCfg == nil {
		globalCfg = &Config{}
	}
	if projectCfg == nil {
		projectCfg = &Config{}
	}

	merged := Config{}
	merged.Workspace.CloneMethod = mergeString(projectMeta.IsDefined("workspace", "clone-method"), projectCfg.Workspace.CloneMethod, globalCfg.Workspace.CloneMethod)
	merged.Workspace.PostCreate = mergeList(projectMeta.IsDefined("workspace", "post-create"), projectCfg.Workspace.PostCreate, globalMeta.IsDefined("workspace", "post-create"), globalCfg.Workspace.PostCreate)
	merged.Workspace.PostApply = mergeList(projectMeta.IsDefined("workspace", "post-apply"), projectCfg.Workspace.PostApply, globalMeta.IsDefined("workspace", "post-apply"), globalCfg.Workspace.PostApply)
	merged.Workspace.CopyPatterns = mergeList(projectMeta.IsDefined("workspace", "copy-patterns"), projectCfg.Workspace.CopyPatterns, globalMeta.IsDefined("workspace", "copy-patterns"), globalCfg.Workspace.CopyPatterns)

	merged.Workspace.SkipBranchCreation = globalCfg.Workspace.SkipBranchCreation
	if projectMeta.IsDefined("workspace", "skip-branch-creation") {
		merged.Workspace.SkipBranchCreation = projectCfg.Workspace.SkipBranchCreation
	}

	return &merged
}

func mergeString(projectDefined bool, projectValue, globalValue string) string {
	value := globalValue
	if projectDefined {
		value = projectValue
	}
	return strings.TrimSpace(value)
}

func mergeList(projectDefined bool, projectValue []string, globalDefined bool, globalValue []string) []string {
	if projectDefined {
		return append([]string(nil), projectValue...)
	}
	if globalDefined {
		return append([]string(nil), globalValue...)
	}
	return nil
}

// RunCommands executes each command in the given directory via bash,
// stopping at the first failure.
func RunCommands(dir string, commands []string) error {
	for _, command := range commands {
		if internalstrings.IsBlank(command) {
			continue
		}
		cmd := exec.Command("/bin/bash", "-c", command)
		cmd.Dir = dir
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("run %q: %w", command, err)
		}
	}
	return nil
}
