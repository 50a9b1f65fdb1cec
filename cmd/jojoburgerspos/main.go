// Package main is the order server and terminal client entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chefdemo-gingerale533/jojoburgerspos/internal"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/app/apps"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/app/cfg"
	"github.com/chefdemo-gingerale533/jojoburgerspos/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use:           "jojoburgerspos",
		Short:         "Keeps POS, kiosk and kitchen display terminals in sync with one order list.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	clientCmd = &cobra.Command{
		Use:   "client <list | new <item>... | update <id> <status> | remove <id> | watch>",
		Short: "Sends a single request to the order server, or watches the order list.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return apps.ErrUsage
			}
			return cobra.OnlyValidArgs(cmd, args[:1])
		},
		ValidArgs: []string{apps.CmdList, apps.CmdNew, apps.CmdUpdate, apps.CmdRemove, apps.CmdWatch},
		RunE:      runCmd,
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts the order server.",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	}
)

func newApp(_ context.Context, cmd *cobra.Command, args []string) (apps.App, error) {
	switch cmd.Name() {
	case "client":
		app, err := apps.NewClientApp(cfg.PortFromEnv(), cfg.ClientFromEnv())
		if err != nil {
			return nil, errors.Wrap(err, "new client app failed")
		}
		return app, nil
	case "server":
		app, err := apps.NewServerApp(
			cfg.PortFromEnv(),
			cfg.ServerFromEnv(),
			cfg.HealthFromEnv(),
			cfg.KafkaFromEnv(),
			cfg.PrometheusMetricsCfg(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "new server app failed")
		}
		return app, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := chainedCheck(
		ctx,
		envCheck,
	); err != nil {
		return errors.Wrap(err, "chained check failed")
	}
	app, err := newApp(ctx, cmd, args)
	if err != nil {
		return errors.Wrapf(err, "new %s app failed", cmd.Name())
	}
	return errors.Wrap(app.Run(ctx, args), "run app failed")
}

func envCheck(ctx context.Context) error {
	err := internal.ValidateEnv()
	if err != nil {
		return errors.Wrap(err, "validate env failed")
	}
	log.SetLogger(internal.LogLevel)
	return nil
}

func chainedCheck(ctx context.Context, checks ...func(context.Context) error) error {
	for _, check := range checks {
		err := check(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := internal.RegisterCommandFlags(rootCmd, []*internal.Flag{
		&internal.EnvFlag,
		&internal.LogLevelFlag,

		&internal.PortFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(clientCmd, []*internal.Flag{
		&internal.ServerHostFlag,
		&internal.ClientTimeoutMSFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(serverCmd, []*internal.Flag{
		&internal.HealthPortFlag,
		&internal.MaxSessionsFlag,
		&internal.MaxFrameBytesFlag,
		&internal.QueueCapFlag,
		&internal.ShutdownGraceMSFlag,
		&internal.KafkaBrokersFlag,
		&internal.KafkaTopicFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	rootCmd.AddCommand(
		clientCmd,
		serverCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
