package installer

import (
	"os"
	"path/filepath"
	"strings"
)

// requiredFramework is the literal substring whose presence in
// requirements.txt is taken as sufficient evidence that the project
// depends on the load-testing framework. Deliberately not a real
// requirements-file parser: presence is enough.
const requiredFramework = "locust"

// Check validates the uploaded project layout without spawning any
// process: requirements.txt exists and mentions the framework, and
// locust/ exists, is non-empty, and contains at least one *.py file.
func (i *Installer) Check() error {
	if err := checkProjectDir(i.uploadedDir); err != nil {
		return err
	}
	if err := checkRequirements(i.uploadedDir); err != nil {
		return err
	}
	return checkLocustDir(i.uploadedDir)
}

func checkProjectDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &CheckError{Kind: ProjectDirDoesNotExist}
		}
		return &CheckError{Kind: ProjectDirIOError, Err: err}
	}
	if len(entries) == 0 {
		return &CheckError{Kind: ProjectDirIsEmpty}
	}
	return nil
}

func checkRequirements(uploadedDir string) error {
	path := filepath.Join(uploadedDir, "requirements.txt")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CheckError{Kind: RequirementsTxtDoesNotExist}
		}
		return &CheckError{Kind: RequirementsIOError, Err: err}
	}

	if !strings.Contains(string(data), requiredFramework) {
		return &CheckError{Kind: LocustIsNotInRequirementsTxt}
	}
	return nil
}

func checkLocustDir(uploadedDir string) error {
	dir := filepath.Join(uploadedDir, "locust")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &CheckError{Kind: LocustDirDoesNotExist}
		}
		return &CheckError{Kind: LocustDirIOError, Err: err}
	}
	if len(entries) == 0 {
		return &CheckError{Kind: LocustDirIsEmpty}
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".py") {
			return nil
		}
	}
	return &CheckError{Kind: LocustDirHasNoPythonFiles}
}
