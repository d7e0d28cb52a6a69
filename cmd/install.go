package cmd

import (
	"github.com/spf13/cobra"

	"devstack/internal/orchestrator"
)

func newInstallCmd() *cobra.Command {
	cmd, _ := newRunCmd("install",
		"Create data directories, pull images and start every unit",
		`Resolve the configuration, probe the host, validate the stack and then
create the data directories, pull images and start units stage by stage.

Units whose requirements are not met (for example "gpu" on a host without
one) are skipped. Without --strict a failed unit only skips its dependents;
with --strict the run stops after the first failing stage and exits 5.

Examples:
  devstack install
  devstack install --strict --max-attempts 60
  devstack install --stack ./stack.hcl --env-file ./prod.env -o json`,
		(*orchestrator.Orchestrator).Install)
	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd, _ := newRunCmd("update",
		"Pull newer images and recreate units",
		`Pull images for every runnable unit, then start the stack again in stage
order so containers with new images are recreated and re-probed.`,
		(*orchestrator.Orchestrator).Update)
	return cmd
}
