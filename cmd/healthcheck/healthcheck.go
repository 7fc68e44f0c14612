package main

import (
	"context"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpc2 "imucap/internal/controller/grpc"
	"os"
	"os/signal"
	"time"
)

func _main(cmd *cobra.Command) error {
	address, _ := cmd.Flags().GetString("address")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	watch, _ := cmd.Flags().GetBool("watch")

	if watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return grpc2.Watch(ctx, address, func(st healthpb.HealthCheckResponse_ServingStatus) {
			log.Infoln(grpc2.ServiceName, st)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	st, err := grpc2.Check(ctx, address)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), st)
	if st != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", grpc2.ServiceName, st)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "healthcheck queries the grpc health service of a running imucap",
		Long:  "healthcheck exits 0 while the acquisition is sampling, 1 otherwise. With --watch it logs every status change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return _main(cmd)
		},
		SilenceUsage: true,
	}
	cmd.Flags().String("address", "127.0.0.1:18890", "default dial address")
	cmd.Flags().Duration("timeout", 2*time.Second, "check timeout")
	cmd.Flags().Bool("watch", false, "stream status changes until interrupted")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
}
