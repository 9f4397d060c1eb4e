package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FC4b/cli-agent-orchestrator/internal/caoclient"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Manage scheduled flows",
}

var flowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every loaded flow",
	RunE:  runFlowList,
}

var flowAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a flow file (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowAdd,
}

var flowRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Fire a flow immediately, bypassing its schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowRun,
}

var flowEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a flow",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setFlowEnabled(cmd, args[0], true) },
}

var flowDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a flow",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setFlowEnabled(cmd, args[0], false) },
}

var flowRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a flow",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowRemove,
}

func init() {
	flowCmd.AddCommand(flowListCmd, flowAddCmd, flowRunCmd, flowEnableCmd, flowDisableCmd, flowRemoveCmd)
	rootCmd.AddCommand(flowCmd)
}

func runFlowList(cmd *cobra.Command, args []string) error {
	var flows []caoclient.FlowSummary
	if err := client().Do(cmd.Context(), "GET", "/flows", nil, &flows); err != nil {
		return err
	}
	if len(flows) == 0 {
		fmt.Println("No flows configured.")
		return nil
	}
	for _, f := range flows {
		state := "enabled"
		if !f.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-20s %-20s %-8s next: %s\n", f.Name, f.Schedule, state, f.NextFireAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runFlowAdd(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	out, err := client().DoRaw(cmd.Context(), "POST", "/flows", "text/plain", data)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runFlowRun(cmd *cobra.Command, args []string) error {
	var resp caoclient.RunFlowResponse
	if err := client().Do(cmd.Context(), "POST", "/flows/"+args[0]+"/run", nil, &resp); err != nil {
		return err
	}
	if resp.TerminalID == "" {
		fmt.Println("Gating script declined this firing.")
		return nil
	}
	fmt.Printf("Fired: terminal %s\n", resp.TerminalID)
	return nil
}

func setFlowEnabled(cmd *cobra.Command, name string, enabled bool) error {
	var ok caoclient.OkResponse
	req := caoclient.PatchFlowRequest{Enabled: &enabled}
	if err := client().Do(cmd.Context(), "PATCH", "/flows/"+name, req, &ok); err != nil {
		return err
	}
	fmt.Printf("Flow %s %s\n", name, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}

func runFlowRemove(cmd *cobra.Command, args []string) error {
	var ok caoclient.OkResponse
	if err := client().Do(cmd.Context(), "DELETE", "/flows/"+args[0], nil, &ok); err != nil {
		return err
	}
	fmt.Printf("Removed flow %s\n", args[0])
	return nil
}
