package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/jacobs-ranch/internal/config"
	"github.com/sakif/jacobs-ranch/internal/server"
	"github.com/sakif/jacobs-ranch/internal/service"
	"github.com/sakif/jacobs-ranch/pkg/logging"
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Manage boarding contracts",
}

var contractUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a boarder's signed contract",
	Args:  cobra.ExactArgs(1),
	RunE:  runContractUpload,
}

func init() {
	contractUploadCmd.Flags().StringVarP(&flagUser, "user", "u", "", "Boarder user ID")
	_ = contractUploadCmd.MarkFlagRequired("user")
	contractCmd.AddCommand(contractUploadCmd)
	rootCmd.AddCommand(contractCmd)
}

func runContractUpload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening contract: %w", err)
	}
	defer f.Close()

	ctx := commandContext(cmd)
	blobs, err := server.OpenBlobs(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	contracts := service.NewContractService(blobs, logging.Discard())
	info, err := contracts.Upload(ctx, flagUser, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  Uploaded %s (%d bytes) to %s.\n", info.Key, info.Size, blobs.Driver())
	return nil
}
