package config

import (
	"time"
)

// PipelineCfg configures the background evaluation pipeline
type PipelineCfg struct {
	Workers           int
	QueueSize         int
	EvaluationTimeout time.Duration
	Cooldown          time.Duration
	DispatchMode      DispatchMode
	// pending submissions older than RecoveryStaleAfter are dispatched again
	RecoveryInterval   time.Duration
	RecoveryStaleAfter time.Duration
	RecoveryBatch      int
}

func NewPipelineCfg() *PipelineCfg {
	workers := getIntEnv("PIPELINE_WORKERS", 4)
	if workers <= 0 {
		workers = 1
	}
	queueSize := getIntEnv("PIPELINE_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 1
	}
	evalTimeoutSec := getIntEnv("PIPELINE_EVAL_TIMEOUT_SEC", 300)
	if evalTimeoutSec <= 0 {
		evalTimeoutSec = 300
	}
	cooldownSec := getIntEnv("SUBMISSION_COOLDOWN_SEC", 0)
	if cooldownSec < 0 {
		cooldownSec = 0
	}
	evalTimeout := time.Duration(evalTimeoutSec) * time.Second
	recoveryBatch := getIntEnv("PIPELINE_RECOVERY_BATCH", 100)
	if recoveryBatch <= 0 {
		recoveryBatch = 100
	}
	return &PipelineCfg{
		Workers:            workers,
		QueueSize:          queueSize,
		EvaluationTimeout:  evalTimeout,
		Cooldown:           time.Duration(cooldownSec) * time.Second,
		DispatchMode:       DispatchMode(getEnv("DISPATCH_MODE", string(DispatchLocal))),
		RecoveryInterval:   getMillisEnv("PIPELINE_RECOVERY_INTERVAL_MS", time.Minute),
		RecoveryStaleAfter: getMillisEnv("PIPELINE_RECOVERY_STALE_MS", 2*evalTimeout),
		RecoveryBatch:      recoveryBatch,
	}
}
