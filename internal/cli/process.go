package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tiktorch/internal/adapters/httptransport"
	"tiktorch/internal/adapters/localsource"
	"tiktorch/internal/adapters/localstorage"
	"tiktorch/internal/adapters/pebblestore"
	"tiktorch/internal/adapters/ticker"
	"tiktorch/internal/adapters/videoapi"
	"tiktorch/internal/core/domain"
	"tiktorch/internal/service"
)

func ProcessCmd(opts *rootOptions) *cobra.Command {
	var (
		removeSource bool
		output       string
	)

	cmd := &cobra.Command{
		Use:   "process <video>",
		Short: "Upload a recording, wait for processing and save the result",
		Long: `Upload a recorded video to the processing service, poll until the
service reports it finished, then download the processed video into the
data directory. Interrupting the command cancels the job.`,
		Example: `  tiktorch-cli process ./recording.mp4
  tiktorch-cli process ./recording.mp4 --output ./edited.mp4 --remove-source`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			transport := httptransport.NewHTTPTransport(a.cfg.RequestTimeout)
			api, err := videoapi.NewClient(a.cfg.ServiceRoot, a.cfg.UserID, transport)
			if err != nil {
				return err
			}

			journal, err := pebblestore.Open(a.cfg.DataDir, a.logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			source := localsource.NewFileSource()
			proc := service.NewProcessor(
				api,
				source,
				ticker.NewScheduler(),
				localstorage.NewLocalStorage(a.cfg.DataDir),
				journal,
				a.logger,
				a.clientConfig(),
			)

			result, runErr := proc.RunJob(ctx, args[0])
			printSummary(cmd.OutOrStdout(), result)
			if runErr != nil {
				return fmt.Errorf("job failed: %w", runErr)
			}

			if output != "" {
				if err := copyFile(result.VideoPath, output); err != nil {
					return err
				}
				a.logger.Info("Copied result", zap.String("path", output))
			}
			if removeSource {
				if err := source.Remove(args[0]); err != nil {
					a.logger.Warn("Failed to remove source video", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeSource, "remove-source", false, "delete the local recording after a successful run")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also copy the processed video to this path")

	return cmd
}

func printSummary(w io.Writer, result *domain.JobResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(w, "\n=== Job Summary ===")
	fmt.Fprintf(w, "Job ID:       %s\n", result.Job.ID)
	fmt.Fprintf(w, "State:        %s\n", result.Job.State)
	fmt.Fprintf(w, "Success:      %t\n", result.Success)
	if !result.Success {
		fmt.Fprintf(w, "Error:        %s\n", result.ErrorMessage)
	} else {
		fmt.Fprintf(w, "Result URL:   %s\n", result.Job.ResultLocation)
		fmt.Fprintf(w, "Video:        %s\n", result.VideoPath)
	}
	if !result.CompletedAt.IsZero() {
		fmt.Fprintf(w, "Completed At: %s\n", result.CompletedAt.Format(time.RFC3339))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy result to %s: %w", dst, err)
	}
	return out.Close()
}
