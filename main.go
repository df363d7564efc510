package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wuzfei/cfgstruct/cfgstruct"
	"golang.org/x/sync/errgroup"

	"go-shipper/app/api"
	"go-shipper/app/global"
	"go-shipper/app/migration"
	"go-shipper/app/service/schedule"
)

var conf global.Config

func main() {
	root := &cobra.Command{
		Use:   "go-shipper",
		Short: "deployment orchestration server",
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start the api server and the trigger worker",
		RunE:  runServer,
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "create tables and seed the admin account",
		RunE:  runMigrate,
	}
	cfgstruct.Bind(runCmd.Flags(), &conf)
	cfgstruct.Bind(migrateCmd.Flags(), &conf)
	root.AddCommand(runCmd, migrateCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	conf.Init()
	defer func() { _ = global.Log.Sync() }()

	server := api.NewServer(&conf)
	worker := schedule.NewWorker(&conf.Worker, global.DB, global.Log, server.Deployer())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(ctx)
	})
	group.Go(func() error {
		return worker.Run(ctx)
	})
	return group.Wait()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	conf.Init()
	defer func() { _ = global.Log.Sync() }()
	return migration.NewMigration(global.Log, global.DB).Setup()
}
