package secondary

import (
	"context"

	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// ContainerRuntime creates and drives isolated execution units.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Exec must stop waiting and return domain.ErrExecDeadline once ctx is done.
type ContainerRuntime interface {
	CreateUnit(ctx context.Context, spec domain.UnitSpec) (containerID string, err error)
	RemoveUnit(ctx context.Context, containerID string) error
	CopyFiles(ctx context.Context, containerID, dir string, files []domain.FileEntry) error
	Exec(ctx context.Context, containerID string, cmd []string, workDir string) (*domain.ExecOutput, error)
}
