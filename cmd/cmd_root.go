package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/awsweep/awsweep/cmd/costs"
	"github.com/awsweep/awsweep/cmd/efs"
	"github.com/awsweep/awsweep/cmd/eks"
	"github.com/awsweep/awsweep/cmd/kms"
	"github.com/awsweep/awsweep/cmd/lambda"
	"github.com/awsweep/awsweep/cmd/loadbalancers"
	"github.com/awsweep/awsweep/cmd/rds"
	"github.com/awsweep/awsweep/cmd/s3"
	"github.com/awsweep/awsweep/cmd/secrets"
	"github.com/awsweep/awsweep/cmd/snapshots"
	"github.com/awsweep/awsweep/cmd/update"
	"github.com/awsweep/awsweep/cmd/version"
	"github.com/awsweep/awsweep/cmd/volumes"
	"github.com/awsweep/awsweep/internal/build_info"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var RootCmd = &cobra.Command{
	Use:   "awsweep",
	Short: "A CLI tool for finding and deleting unused AWS resources",
	Long:  "A CLI tool that inventories AWS resources across regions, estimates what they cost per month, flags the ones that look important, and deletes the rest interactively.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if build_info.Version == build_info.DefaultDevVersion {
			fmt.Printf("\n%s\n%s\n%s\n\n",
				color.RedString("┌─────────────────────────────────────────────────────────────┐"),
				color.RedString("│ ⚠️  WARNING: This is a development build                    │"),
				color.RedString("└─────────────────────────────────────────────────────────────┘"))
		}

		fmt.Printf("%s %s %s %s\n",
			color.CyanString("Executing awsweep with build"),
			color.GreenString("version=%s", build_info.Version),
			color.YellowString("commit=%s", build_info.Commit),
			color.BlueString("date=%s", build_info.Date))

		if err := checkWritePermissions(); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", color.RedString("Error: %v", err))
			os.Exit(1)
		}
	},
}

func init() {
	cobra.EnableTraverseRunHooks = true

	lumberjackLogger := &lumberjack.Logger{
		Filename: "awsweep.log",
		MaxSize:  25,
		Compress: true,
	}
	opts := PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}
	handler := NewPrettyHandler(io.MultiWriter(lumberjackLogger, os.Stdout), opts)
	logger := slog.New(handler)

	slog.SetDefault(logger)

	RootCmd.AddCommand(
		loadbalancers.NewLoadBalancersCmd(),
		efs.NewEFSCmd(),
		eks.NewEKSCmd(),
		kms.NewKMSCmd(),
		lambda.NewLambdaCmd(),
		rds.NewRDSCmd(),
		secrets.NewSecretsCmd(),
		snapshots.NewSnapshotsCmd(),
		s3.NewS3Cmd(),
		volumes.NewVolumesCmd(),
		costs.NewCostsCmd(),
		version.NewVersionCmd(),
		update.NewUpdateCmd(),
	)
}

type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

type PrettyHandler struct {
	slog.Handler
	l *log.Logger
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	time := r.Time.Format("2006/01/02 15:04:05")
	level := r.Level.String()
	message := r.Message

	values := []string{}
	r.Attrs(func(a slog.Attr) bool {
		values = append(values, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
		return true
	})

	h.l.Printf("%s %s %s %s", time, level, message, strings.Join(values, " "))

	return nil
}

func NewPrettyHandler(
	out io.Writer,
	opts PrettyHandlerOptions,
) *PrettyHandler {
	h := &PrettyHandler{
		Handler: slog.NewTextHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}

	return h
}

func checkWritePermissions() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	testFile, err := os.CreateTemp(cwd, ".awsweep-write-test-*")
	if err != nil {
		return fmt.Errorf("current working directory '%s' does not have write permissions for the current user", cwd)
	}

	// Defer works on a LIFO execution order.
	defer os.Remove(testFile.Name())
	defer testFile.Close()

	return nil
}
