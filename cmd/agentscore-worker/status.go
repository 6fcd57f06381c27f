package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentscore/internal/config"
	"agentscore/internal/filestore"
	"agentscore/internal/jsonx"
	"agentscore/internal/state"
	"agentscore/internal/worker"
)

func newStatusCommand(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the progress recorded in the state file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			statePath := filestore.ResolvePath(cfg.StatePath, config.DefaultStatePath)
			snap, found, err := readSnapshot(statePath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "no state at %s, the worker has not run yet\n", statePath)
				return nil
			}
			printStats(out, fmt.Sprintf("Agent %s", snap.Identity), worker.Stats{
				Identity:       snap.Identity,
				Reputation:     snap.Reputation,
				TasksCompleted: snap.TasksCompleted,
				TotalRepGained: snap.TotalRepGained,
				TotalPayout:    snap.TotalPayout,
				LastBroadcast:  snap.LastBroadcast,
				LastComment:    snap.LastComment,
				StartedAt:      snap.StartedAt,
				NextTaskID:     snap.NextTaskID,
			})
			return nil
		},
	}
}

// readSnapshot decodes the state file without the recovery side effects of
// state.FileStore, so it is safe to run next to a live worker.
func readSnapshot(path string) (state.Snapshot, bool, error) {
	data, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		return state.Snapshot{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return state.Snapshot{}, false, nil
	}
	var snap state.Snapshot
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		return state.Snapshot{}, false, fmt.Errorf("decode %s: %w", path, err)
	}
	return snap, true, nil
}
