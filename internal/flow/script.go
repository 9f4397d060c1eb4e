package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/FC4b/cli-agent-orchestrator/internal/apperr"
	"github.com/FC4b/cli-agent-orchestrator/internal/domain"
	"github.com/FC4b/cli-agent-orchestrator/internal/provider/process"
)

// DefaultScriptTimeout bounds how long a gating script may run before it is
// killed and the firing is recorded as a script-failure.
const DefaultScriptTimeout = 30 * time.Second

// RunScript executes a flow's gating script and parses its stdout as the
// {execute, output} contract from spec section 6. The script receives no
// stdin (closed immediately) and is killed if it outlives timeout.
func RunScript(ctx context.Context, scriptPath string, timeout time.Duration) (domain.ScriptResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mgr, err := process.Start(runCtx, process.Config{Command: scriptPath})
	if err != nil {
		return domain.ScriptResult{}, apperr.Wrap(apperr.KindScriptFailure, "failed to start gating script", err)
	}
	_ = mgr.Stdin().Close()

	out, readErr := io.ReadAll(mgr.Stdout())
	waitErr := mgr.Wait()
	if waitErr != nil {
		return domain.ScriptResult{}, apperr.Wrap(apperr.KindScriptFailure, "gating script exited with an error", waitErr)
	}
	if readErr != nil {
		return domain.ScriptResult{}, apperr.Wrap(apperr.KindScriptFailure, "failed to read gating script output", readErr)
	}

	var result domain.ScriptResult
	if err := json.Unmarshal(out, &result); err != nil {
		return domain.ScriptResult{}, apperr.Wrap(apperr.KindScriptFailure, fmt.Sprintf("failed to parse gating script output: %s", string(out)), err)
	}
	return result, nil
}
