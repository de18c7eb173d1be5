package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/remote"
)

// settingsRowID is the id of the single ranch settings row.
const settingsRowID = 1

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change ranch-wide settings",
	RunE:  runSettingsShow,
}

var setStallsCmd = &cobra.Command{
	Use:   "set-stalls <count>",
	Short: "Set the number of available stalls",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetStalls,
}

func init() {
	settingsCmd.AddCommand(setStallsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	raw, err := e.tables.Select(commandContext(cmd), remote.TableSettings, remote.Query{Limit: 1})
	if err != nil {
		return err
	}
	var rows []model.SettingsRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "  No settings row.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Available stalls: %d\n", rows[0].AvailableStalls)
	return nil
}

func runSetStalls(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("stall count must be a non-negative integer, got %q", args[0])
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	err = e.tables.Update(commandContext(cmd), remote.TableSettings,
		remote.Eq{Column: "id", Value: settingsRowID},
		remote.Row{"available_stalls": n},
	)
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Available stalls set to %d.\n", n)
	return nil
}
