package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ExecMode string

const (
	ExecInProcess ExecMode = "inprocess"
	ExecContainer ExecMode = "container"
)

var defaultAllowedPackages = []string{
	"bytes",
	"container/heap",
	"container/list",
	"errors",
	"fmt",
	"maps",
	"math",
	"math/bits",
	"regexp",
	"slices",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// PoolCfg is the fixed constraint set applied to every sandbox unit
type PoolCfg struct {
	Image          string        `yaml:"image"`
	MemoryMB       int64         `yaml:"memory_mb"`
	CPUShare       float64       `yaml:"cpu_share"`
	MaxSize        int           `yaml:"max_size"`
	WarmSize       int           `yaml:"warm_size"`
	ExecUser       string        `yaml:"exec_user"`
	TmpfsMB        int64         `yaml:"tmpfs_mb"`
	PidsLimit      int64         `yaml:"pids_limit"`
	WorkRoot       string        `yaml:"work_root"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// ExecCfg configures both execution paths
type ExecCfg struct {
	Mode            ExecMode      `yaml:"mode"`
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	BuildTimeout    time.Duration `yaml:"build_timeout"`
	Fused           bool          `yaml:"fused"`
	MaxParallel     int           `yaml:"max_parallel"`
	AllowedPackages []string      `yaml:"allowed_packages"`
	// WorkerMaxStackMB caps goroutine stacks inside in-process workers
	WorkerMaxStackMB int           `yaml:"worker_max_stack_mb"`
	WorkerGrace      time.Duration `yaml:"worker_grace"`
}

type SandboxConfig struct {
	Pool *PoolCfg `yaml:"pool"`
	Exec *ExecCfg `yaml:"exec"`
}

func NewSandboxConfig() *SandboxConfig {
	maxSize := getIntEnv("POOL_MAX_SIZE", 4)
	if maxSize <= 0 {
		maxSize = 1
	}
	maxParallel := getIntEnv("EXEC_MAX_PARALLEL", 8)
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &SandboxConfig{
		Pool: &PoolCfg{
			Image:          getEnv("POOL_IMAGE", "golang:1.23-alpine"),
			MemoryMB:       int64(getIntEnv("POOL_MEMORY_MB", 256)),
			CPUShare:       getFloatEnv("POOL_CPU_SHARE", 0.5),
			MaxSize:        maxSize,
			WarmSize:       getIntEnv("POOL_WARM_SIZE", 0),
			ExecUser:       getEnv("POOL_EXEC_USER", "65534:65534"),
			TmpfsMB:        int64(getIntEnv("POOL_TMPFS_MB", 64)),
			PidsLimit:      int64(getIntEnv("POOL_PIDS_LIMIT", 64)),
			WorkRoot:       getEnv("POOL_WORK_ROOT", "/sandbox"),
			AcquireTimeout: getMillisEnv("POOL_ACQUIRE_TIMEOUT_MS", 0),
		},
		Exec: &ExecCfg{
			Mode:             ExecMode(getEnv("EXEC_MODE", string(ExecInProcess))),
			DefaultTimeout:   getMillisEnv("EXEC_DEFAULT_TIMEOUT_MS", 2*time.Second),
			BuildTimeout:     getMillisEnv("EXEC_BUILD_TIMEOUT_MS", 30*time.Second),
			Fused:            getBoolEnv("EXEC_FUSED", false),
			MaxParallel:      maxParallel,
			AllowedPackages:  getListEnv("EXEC_ALLOWED_PACKAGES", defaultAllowedPackages),
			WorkerMaxStackMB: getIntEnv("EXEC_WORKER_MAX_STACK_MB", 256),
			WorkerGrace:      getMillisEnv("EXEC_WORKER_GRACE_MS", 5*time.Second),
		},
	}
}

// ApplyProfile overlays the non-zero fields of a YAML sandbox profile
func (c *SandboxConfig) ApplyProfile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sandbox profile: %w", err)
	}
	var profile SandboxConfig
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return fmt.Errorf("failed to parse sandbox profile: %w", err)
	}
	if p := profile.Pool; p != nil {
		overlayString(&c.Pool.Image, p.Image)
		overlayString(&c.Pool.ExecUser, p.ExecUser)
		overlayString(&c.Pool.WorkRoot, p.WorkRoot)
		overlayPositive(&c.Pool.MemoryMB, p.MemoryMB)
		overlayPositive(&c.Pool.TmpfsMB, p.TmpfsMB)
		overlayPositive(&c.Pool.PidsLimit, p.PidsLimit)
		overlayPositive(&c.Pool.MaxSize, p.MaxSize)
		overlayPositive(&c.Pool.WarmSize, p.WarmSize)
		overlayPositive(&c.Pool.CPUShare, p.CPUShare)
		overlayPositive(&c.Pool.AcquireTimeout, p.AcquireTimeout)
	}
	if e := profile.Exec; e != nil {
		overlayString(&c.Exec.Mode, e.Mode)
		overlayPositive(&c.Exec.DefaultTimeout, e.DefaultTimeout)
		overlayPositive(&c.Exec.BuildTimeout, e.BuildTimeout)
		overlayPositive(&c.Exec.MaxParallel, e.MaxParallel)
		overlayPositive(&c.Exec.WorkerMaxStackMB, e.WorkerMaxStackMB)
		overlayPositive(&c.Exec.WorkerGrace, e.WorkerGrace)
		if e.Fused {
			c.Exec.Fused = true
		}
		if len(e.AllowedPackages) > 0 {
			c.Exec.AllowedPackages = e.AllowedPackages
		}
	}
	return nil
}

func overlayString[T ~string](dst *T, v T) {
	if v != "" {
		*dst = v
	}
}

func overlayPositive[T ~int | ~int64 | ~float64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
