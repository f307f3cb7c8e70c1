package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/pkg/types"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file from an explicit path.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}

	return &lj, nil
}

// PathInFolder returns <folder>/.vscode/launch.json.
func PathInFolder(folder string) string {
	return filepath.Join(folder, VSCodeDirName, LaunchJSONFileName)
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// If startPath is a file, start from its directory
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		launchPath := PathInFolder(current)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover combines discovery and loading: finds a launch.json from the start path
// and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}

	return lj, path, nil
}

// FindConfiguration finds a configuration by name. The error lists the
// available names.
func FindConfiguration(lj *LaunchJSON, name string) (types.DebugConfiguration, error) {
	for _, cfg := range lj.Configurations {
		if cfg.Name() == name {
			return cfg, nil
		}
	}
	return nil, errors.ConfigNotFound(name, ListConfigurationNames(lj))
}

// FindCompound finds a compound configuration by name.
func FindCompound(lj *LaunchJSON, name string) (*CompoundConfig, error) {
	for i := range lj.Compounds {
		if lj.Compounds[i].Name == name {
			return &lj.Compounds[i], nil
		}
	}
	return nil, fmt.Errorf("compound configuration %q not found", name)
}

// ListConfigurationNames returns a list of all configuration names.
func ListConfigurationNames(lj *LaunchJSON) []string {
	names := make([]string, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		names[i] = cfg.Name()
	}
	return names
}

// ListConfigurations returns summary information about all configurations.
func ListConfigurations(lj *LaunchJSON) []ConfigurationInfo {
	infos := make([]ConfigurationInfo, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		infos[i] = ConfigurationInfo{
			Name:    cfg.Name(),
			Type:    cfg.Type(),
			Request: cfg.Request(),
		}
	}
	return infos
}

// ListCompounds returns summary information about all compound configurations.
func ListCompounds(lj *LaunchJSON) []CompoundInfo {
	infos := make([]CompoundInfo, len(lj.Compounds))
	for i, compound := range lj.Compounds {
		infos[i] = CompoundInfo{
			Name:           compound.Name,
			Configurations: compound.Configurations,
			StopAll:        compound.StopAll,
		}
	}
	return infos
}

// FindInput finds an input configuration by ID.
func FindInput(lj *LaunchJSON, id string) (*InputConfig, error) {
	for i := range lj.Inputs {
		if lj.Inputs[i].ID == id {
			return &lj.Inputs[i], nil
		}
	}
	return nil, fmt.Errorf("input %q not found", id)
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path.
// The workspace folder is the parent of the .vscode directory.
// Returns POSIX-style paths (forward slashes) for cross-platform consistency.
func GetWorkspaceFolder(launchJSONPath string) string {
	vscodeDir := filepath.Dir(launchJSONPath)
	workspace := filepath.Dir(vscodeDir)
	return filepath.ToSlash(workspace)
}

// ValidateConfiguration performs basic validation on a configuration.
func ValidateConfiguration(cfg types.DebugConfiguration) error {
	if cfg.Name() == "" {
		return fmt.Errorf("configuration name is required")
	}
	if cfg.Type() == "" {
		return fmt.Errorf("configuration type is required")
	}
	switch cfg.Request() {
	case "":
		return fmt.Errorf("configuration request is required")
	case "launch", "attach":
		return nil
	default:
		return fmt.Errorf("configuration request must be 'launch' or 'attach', got %q", cfg.Request())
	}
}

// ValidateLaunchJSON performs validation on the entire launch.json.
func ValidateLaunchJSON(lj *LaunchJSON) []error {
	var errs []error

	for i, cfg := range lj.Configurations {
		if err := ValidateConfiguration(cfg); err != nil {
			errs = append(errs, fmt.Errorf("configuration[%d]: %w", i, err))
		}
	}

	// Validate compounds reference existing configurations
	configNames := make(map[string]bool)
	for _, cfg := range lj.Configurations {
		configNames[cfg.Name()] = true
	}

	for i, compound := range lj.Compounds {
		if compound.Name == "" {
			errs = append(errs, fmt.Errorf("compound[%d]: name is required", i))
		}
		for _, cfgName := range compound.Configurations {
			if !configNames[cfgName] {
				errs = append(errs, fmt.Errorf("compound %q references unknown configuration %q", compound.Name, cfgName))
			}
		}
	}

	return errs
}
