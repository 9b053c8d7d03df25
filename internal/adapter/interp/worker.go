package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"gitlab.com/fcv-2025.net/codegrader/internal/core/ports/primary"
	"gitlab.com/fcv-2025.net/codegrader/internal/domain"
)

// WorkerCommand is the first argument that turns the service binary into a
// one-shot execution worker.
const WorkerCommand = "interp-worker"

// replyFD is the descriptor the supervisor passes for results. Stdout stays
// free for logs.
const replyFD = 3

// WorkerOptions configure the interpreter inside a worker process
type WorkerOptions struct {
	AllowedPackages []string      `json:"allowedPackages"`
	MaxParallel     int           `json:"maxParallel"`
	DefaultTimeout  time.Duration `json:"defaultTimeout"`
	MaxStackBytes   int           `json:"maxStackBytes"`
}

type workerJob struct {
	Options  WorkerOptions              `json:"options"`
	Requests []*domain.ExecutionRequest `json:"requests"`
}

type workerReply struct {
	Index  int                     `json:"index"`
	Result *domain.ExecutionResult `json:"result"`
}

// RunWorker serves one job from stdin and writes replies to the result
// descriptor inherited from the supervisor.
func RunWorker(logger primary.Logger) error {
	replies := os.NewFile(replyFD, "replies")
	if replies == nil {
		return fmt.Errorf("result descriptor %d is not open", replyFD)
	}
	defer replies.Close()
	return ServeWorker(os.Stdin, replies, logger)
}

// ServeWorker decodes one job, runs it and streams one reply per request.
// Replies are written in completion order.
func ServeWorker(in io.Reader, out io.Writer, logger primary.Logger) error {
	var job workerJob
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("failed to decode worker job: %w", err)
	}
	if job.Options.MaxStackBytes > 0 {
		debug.SetMaxStack(job.Options.MaxStackBytes)
	}

	compiler := NewCompiler(job.Options.AllowedPackages, logger)
	executor := NewExecutor(compiler, job.Options.MaxParallel, job.Options.DefaultTimeout, logger)

	var (
		mu       sync.Mutex
		enc      = json.NewEncoder(out)
		writeErr error
	)
	err := executor.ExecuteEach(context.Background(), job.Requests, func(idx int, res *domain.ExecutionResult) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil {
			return
		}
		writeErr = enc.Encode(workerReply{Index: idx, Result: res})
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write worker reply: %w", writeErr)
	}
	return nil
}
