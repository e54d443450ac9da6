package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/branchpnl/pnl-dashboard/internal/types"
)

//go:embed default_directory.yaml
var defaultDirectoryYAML []byte

// DefaultDirectory returns the built-in company map and branch ids.
func DefaultDirectory() (types.Directory, error) {
	return ParseDirectory(defaultDirectoryYAML)
}

// ParseDirectory decodes a directory document. JSON input is accepted too.
func ParseDirectory(data []byte) (types.Directory, error) {
	var dir types.Directory
	if err := yaml.Unmarshal(data, &dir); err != nil {
		return types.Directory{}, fmt.Errorf("failed to parse directory: %w", err)
	}
	if dir.Companies == nil {
		dir.Companies = map[string]string{}
	}
	if dir.BranchIDs == nil {
		dir.BranchIDs = map[string]string{}
	}
	return dir, nil
}

// LoadDirectoryFile reads a directory document from disk.
func LoadDirectoryFile(path string) (types.Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Directory{}, fmt.Errorf("failed to read directory file: %w", err)
	}
	return ParseDirectory(data)
}

// MarshalDirectory encodes a directory as YAML.
func MarshalDirectory(dir types.Directory) ([]byte, error) {
	data, err := yaml.Marshal(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to encode directory: %w", err)
	}
	return data, nil
}

// SeedDirectory is the directory used when the store holds none: the file
// named by DirectoryFile if set, otherwise the built-in copy.
func (c *MainConfig) SeedDirectory() (types.Directory, error) {
	if c.DirectoryFile != "" {
		return LoadDirectoryFile(c.DirectoryFile)
	}
	return DefaultDirectory()
}
