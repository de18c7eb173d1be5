package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/roster"
	"github.com/sakif/jacobs-ranch/internal/service"
)

var stallsCmd = &cobra.Command{
	Use:   "stalls",
	Short: "Print a boarder's stall map",
	RunE:  runStalls,
}

func init() {
	stallsCmd.Flags().StringVarP(&flagUser, "user", "u", "", "Boarder user ID")
	_ = stallsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(stallsCmd)
}

func runStalls(cmd *cobra.Command, _ []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	sessions := service.NewSessions(e.tables, nil, service.SystemClock, e.logger, nil)
	s, err := sessions.Get(commandContext(cmd), flagUser)
	if err != nil {
		return err
	}
	defer sessions.Close(flagUser)

	printStalls(cmd.OutOrStdout(), s.Horses.Horses(), s.Profile.Preferences().AvailableStalls)
	return nil
}

func printStalls(w io.Writer, horses []model.Horse, available int) {
	fmt.Fprintln(w)
	for _, row := range roster.StallRows() {
		for _, n := range row {
			name := "-"
			if h, ok := roster.StallOccupant(horses, n); ok {
				name = h.Name
				if name == "" {
					name = "(unnamed)"
				}
			}
			fmt.Fprintf(w, "  %2d  %s\n", n, name)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "  Available stalls: %d\n", available)
}
