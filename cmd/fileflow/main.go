// Package main is the fileflow relay daemon.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fileflow/fileflow/cmn/cos"
	"github.com/fileflow/fileflow/cmn/nlog"
	"github.com/fileflow/fileflow/relay"
	"github.com/urfave/cli"
)

var (
	build     string
	buildtime string
)

func main() {
	app := cli.NewApp()
	app.Name = "fileflow"
	app.Usage = "relay server brokering file transfers between browser peers"
	app.Version = build + " (" + buildtime + ")"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "address, a",
			Value:  relay.DfltAddr,
			Usage:  "network address and port to run this server on",
			EnvVar: "FILEFLOW_ADDRESS",
		},
		cli.StringFlag{
			Name:  "client-files",
			Usage: "serve these files instead of the embedded client files",
		},
		cli.StringFlag{
			Name:  "log-dir",
			Usage: "write logs to this directory instead of stderr",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		cos.ExitLogf("%v", err)
	}
}

func run(c *cli.Context) error {
	nlog.SetTitle("fileflow")
	if dir := c.String("log-dir"); dir != "" {
		if err := nlog.SetLogDir(dir); err != nil {
			cos.ExitLogf("Failed to set up logger: %v", err)
		}
	}
	installSignalHandler()
	go logFlush()

	srv := relay.New(relay.Opts{
		Addr:      c.String("address"),
		ClientDir: c.String("client-files"),
	})
	return srv.Run()
}

func logFlush() {
	for {
		time.Sleep(time.Minute)
		nlog.Flush()
	}
}

func installSignalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-ch
		nlog.Infof("Terminating on signal %v", s)
		nlog.Flush(true)
		os.Exit(0)
	}()
}
