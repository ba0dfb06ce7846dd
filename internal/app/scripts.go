package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jx-codes/lootbox/internal/duplex"
	"github.com/jx-codes/lootbox/internal/runlog"
	"github.com/jx-codes/lootbox/internal/sandboxexec"
)

// ClientModuleURLFunc returns the currently importable client module URL,
// already versioned so a sandbox's import resolves to the artifact that
// matched the index at submission time.
type ClientModuleURLFunc func() string

// ScriptService adapts sandboxexec.Executor and runlog.Store to the
// duplex.ScriptRunner contract: run the script, record the outcome, return
// just what the duplex endpoint needs to build a response frame.
type ScriptService struct {
	executor  *sandboxexec.Executor
	clientURL ClientModuleURLFunc
	log       runlog.Store
}

// NewScriptService creates a ScriptService over executor, resolving the
// client module URL via clientURL for every run and recording each
// completed run to log.
func NewScriptService(executor *sandboxexec.Executor, clientURL ClientModuleURLFunc, log runlog.Store) *ScriptService {
	return &ScriptService{executor: executor, clientURL: clientURL, log: log}
}

var _ duplex.ScriptRunner = (*ScriptService)(nil)

// RunScript executes script in a fresh sandbox and appends a ScriptRunRecord
// to the run log, fire-and-forget, before returning.
func (s *ScriptService) RunScript(ctx context.Context, script, sessionID string) duplex.ScriptResult {
	start := time.Now()
	result := s.executor.Execute(ctx, sandboxexec.Request{
		ClientModuleURL: s.clientURL(),
		Script:          script,
	})

	status := runlog.StatusSucceeded
	switch {
	case result.TimedOut:
		status = runlog.StatusTimedOut
	case !result.Success:
		status = runlog.StatusFailed
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if s.log != nil {
		s.log.Append(runlog.Entry{
			SessionID: sessionID,
			StartedAt: start,
			Duration:  result.Duration,
			Status:    status,
			Script:    script,
			Stdout:    result.Output,
			Stderr:    result.Warnings,
			Error:     result.Error,
		})
	}

	return duplex.ScriptResult{
		Success:  result.Success,
		Output:   result.Output,
		Warnings: result.Warnings,
		Error:    result.Error,
	}
}
