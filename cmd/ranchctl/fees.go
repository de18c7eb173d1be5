package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/jacobs-ranch/internal/fees"
	"github.com/sakif/jacobs-ranch/internal/service"
)

var (
	flagUser        string
	flagHorses      int
	flagTrailer     bool
	flagWifi        bool
	flagSubscribers int
)

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Show a boarder's monthly fees, or preview fees from flags",
	Long: `With --user, loads the boarder's roster and preferences and prints their
current fee snapshot. Without it, computes a preview from --horses,
--trailer, --wifi and --subscribers.`,
	RunE: runFees,
}

func init() {
	feesCmd.Flags().StringVarP(&flagUser, "user", "u", "", "Boarder user ID")
	feesCmd.Flags().IntVar(&flagHorses, "horses", 1, "Horses boarded (preview)")
	feesCmd.Flags().BoolVar(&flagTrailer, "trailer", false, "Uses trailer parking (preview)")
	feesCmd.Flags().BoolVar(&flagWifi, "wifi", false, "Uses Wi-Fi (preview)")
	feesCmd.Flags().IntVar(&flagSubscribers, "subscribers", 1, "Wi-Fi subscribers (preview)")
	rootCmd.AddCommand(feesCmd)
}

func runFees(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if flagUser == "" {
		snap := fees.Compute(fees.Input{
			HorseCount:      flagHorses,
			UsesTrailer:     flagTrailer,
			UsesWifi:        flagWifi,
			WifiSubscribers: flagSubscribers,
		}, time.Now())
		printFees(out, "Preview", snap)
		return nil
	}

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

	if s.Profile.Preferences().UserID == "" {
		return fmt.Errorf("no profile for user %q", flagUser)
	}
	printFees(out, s.Profile.Preferences().Email, s.Fees())
	return nil
}

func printFees(w io.Writer, title string, snap fees.Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "  Rent         $%8.2f\n", float64(snap.Rent))
	fmt.Fprintf(w, "  Trailer      $%8.2f\n", float64(snap.TrailerFee))
	fmt.Fprintf(w, "  Wi-Fi share  $%8.2f\n", snap.WifiShare)
	fmt.Fprintf(w, "  Subtotal     $%8.2f\n", snap.Subtotal)
	fmt.Fprintf(w, "  Due          %s\n", snap.DueDate.Format("January 2, 2006"))
}
