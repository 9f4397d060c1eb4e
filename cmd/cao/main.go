// Command cao is the CLI front-end (C11): a thin HTTP client against
// cao-server. It contains no orchestration logic of its own.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		code := caoclient.ExitGenericFailure
		var cerr *caoclient.Error
		if errors.As(err, &cerr) {
			code = cerr.Code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(int(code))
	}
}
