package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/qcrpc"
)

var processCmd = &cobra.Command{
	Use:   "process FRAME_ID...",
	Short: "Process the sensors of frames",
	Long: `Run sensor processing for each frame through the backend gRPC API and
print the outcome. Frames that were already processed are reported, not
treated as failures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().String("backend-addr", "localhost:9090", "Backend gRPC server address")
	processCmd.Flags().Duration("timeout", 30*time.Second, "timeout per frame")
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, map[string]string{
		"process.backend_addr": "backend-addr",
		"process.timeout":      "timeout",
	}); err != nil {
		return err
	}

	ids := make([]uint, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 0)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid frame ID %q", arg)
		}
		ids = append(ids, uint(id))
	}

	logger := GetLogger("process")

	client, err := qcrpc.Dial(viper.GetString("process.backend_addr"))
	if err != nil {
		return fmt.Errorf("failed to connect to backend: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close backend connection", "error", err)
		}
	}()

	out := cmd.OutOrStdout()
	var errs []error
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("process.timeout"))
		result, err := client.ProcessFrameSensors(ctx, id)
		cancel()

		switch {
		case err == nil:
			fmt.Fprintf(out, "frame %d: %s\n", id, result.Message())
		case errors.Is(err, backend.ErrPrecondition):
			fmt.Fprintf(out, "frame %d: %s\n", id, err)
		default:
			logger.Error("processing failed", "frame_id", id, "error", err)
			errs = append(errs, fmt.Errorf("frame %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
