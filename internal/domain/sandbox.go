package domain

import "time"

// UnitState is the lifecycle state of a pooled execution unit
type UnitState string

const (
	UnitIdle UnitState = "IDLE"
	UnitBusy UnitState = "BUSY"
)

// UnitSpec is the constraint set applied to every pooled unit at creation
type UnitSpec struct {
	Image       string
	MemoryBytes int64
	CPUShare    float64
	PidsLimit   int64
	User        string
	TmpfsPath   string
	TmpfsBytes  int64
	WorkRoot    string
	Labels      map[string]string
}

// PooledUnit is a reusable execution environment owned by the container pool
type PooledUnit struct {
	ID          string
	ContainerID string
	State       UnitState
	CreatedAt   time.Time
	Uses        int
}

// FileEntry is one file materialized inside a unit
type FileEntry struct {
	Name    string
	Content []byte
	Mode    int64
}

// ExecOutput is the captured outcome of one command inside a unit
type ExecOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}
