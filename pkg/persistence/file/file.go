// Package file provides file-based persistence for runs, instances,
// workflows and pipelines. Documents are stored as one JSON file per entity
// under the root directory, guarded by a single lock. It is meant for local
// development and tests, not for concurrent multi-process deployments.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/runwayci/runway/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex

	executionRepo *ExecutionRepository
	instanceRepo  *InstanceRepository
	workflowRepo  *WorkflowRepository
	pipelineRepo  *PipelineRepository
	interruptRepo *InterruptRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.executionRepo = &ExecutionRepository{persistence: p}
	p.instanceRepo = &InstanceRepository{persistence: p}
	p.workflowRepo = &WorkflowRepository{persistence: p}
	p.pipelineRepo = &PipelineRepository{persistence: p}
	p.interruptRepo = &InterruptRepository{persistence: p}

	return p
}

func (fp *Persistence) Executions() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) Instances() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) Workflows() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) Pipelines() persistence.PipelineRepository {
	return fp.pipelineRepo
}

func (fp *Persistence) Interrupts() persistence.InterruptRepository {
	return fp.interruptRepo
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// writeDocument persists one entity as a JSON file, creating the directory
// as needed. Callers hold the write lock.
func (fp *Persistence) writeDocument(path string, document any) error {
	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	return nil
}

// readDocument loads one entity from its JSON file. A missing file is
// reported through notFound. Callers hold at least the read lock.
func (fp *Persistence) readDocument(path string, document any, notFound error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound
		}

		return fmt.Errorf("failed to read document: %w", err)
	}

	err = json.Unmarshal(data, document)
	if err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return nil
}

// listSubdirectories returns the names of the directories directly under
// dir. A missing directory means no entries exist yet.
func listSubdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list directories: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// listDocumentFiles returns the JSON files directly under dir. A missing
// directory means no documents exist yet.
func (fp *Persistence) listDocumentFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, filepath.Join(dir, file))
	}

	return paths, nil
}
