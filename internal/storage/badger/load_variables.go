package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// VariableFile is one secret in a variables file:
//
//	[smtp_password]
//	value = "app-password"
type VariableFile struct {
	Value string `toml:"value"`
}

// LoadVariablesFromFiles loads secrets (API keys, SMTP password) into the KV
// store from dirPath/variables.toml and every .toml file in dirPath/variables/.
// It returns the number of keys stored.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) (int, error) {
	files := []string{filepath.Join(dirPath, "variables.toml")}
	if entries, err := os.ReadDir(filepath.Join(dirPath, "variables")); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
				files = append(files, filepath.Join(dirPath, "variables", entry.Name()))
			}
		}
	}

	loaded, failed := 0, 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		n, err := m.loadVariablesFromFile(file)
		loaded += n
		if err != nil {
			m.logger.Warn().Err(err).Str("file", file).Msg("Failed to load variables file")
			failed++
		}
	}

	m.logger.Debug().
		Str("dir", dirPath).
		Int("loaded", loaded).
		Int("failed_files", failed).
		Msg("Finished loading variables from files")

	return loaded, nil
}

func (m *Manager) loadVariablesFromFile(filePath string) (int, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read variables file: %w", err)
	}

	var variables map[string]VariableFile
	if err := toml.Unmarshal(content, &variables); err != nil {
		return 0, fmt.Errorf("failed to parse variables file: %w", err)
	}

	keys := make([]string, 0, len(variables))
	for key := range variables {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fileName := filepath.Base(filePath)
	loaded := 0
	for _, key := range keys {
		variable := variables[key]
		if variable.Value == "" {
			m.logger.Warn().Str("file", fileName).Str("key", key).Msg("Skipping variable with empty value")
			continue
		}

		if _, err := m.secrets.put(key, variable.Value, "file:"+fileName); err != nil {
			return loaded, fmt.Errorf("failed to store variable %s: %w", key, err)
		}
		loaded++
	}

	return loaded, nil
}
