package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ScriptFileName is the fixed slot the executor runs.
	ScriptFileName = "analysis_script.py"
	// RequirementsFileName is the fixed slot pip installs from.
	RequirementsFileName = "script_requirements.txt"
)

// Artifacts persists generated scripts into a single fixed slot: each run
// overwrites the previous script and requirements pair.
type Artifacts struct {
	dir string
}

// NewArtifacts builds an artifact writer rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir}
}

// Write stores the script and its requirements, creating the directory on
// first use, and returns both paths.
func (a *Artifacts) Write(g Generated) (scriptPath, requirementsPath string, err error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create script directory: %w", err)
	}

	scriptPath = filepath.Join(a.dir, ScriptFileName)
	if err := os.WriteFile(scriptPath, []byte(g.Script), 0o644); err != nil {
		return "", "", fmt.Errorf("write script: %w", err)
	}

	requirementsPath = filepath.Join(a.dir, RequirementsFileName)
	body := strings.Join(g.Packages, "\n") + "\n"
	if err := os.WriteFile(requirementsPath, []byte(body), 0o644); err != nil {
		return "", "", fmt.Errorf("write requirements: %w", err)
	}
	return scriptPath, requirementsPath, nil
}
