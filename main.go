// Copyright The Kernwatch Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kernwatch/kernwatch/internal/controller"
	"github.com/kernwatch/kernwatch/vc"
)

// Short copyright / license text
var copyright = `Copyright The Kernwatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
`

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	args, err := parseArgs()
	if err != nil {
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.Copyright {
		fmt.Print(copyright)
		return exitSuccess
	}

	if args.Version {
		fmt.Printf("%s (revision %s, build timestamp %s)\n",
			vc.Version(), vc.Revision(), vc.BuildTimestamp())
		return exitSuccess
	}

	if args.VerboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		args.Dump()
	}

	if err := args.Validate(); err != nil {
		return parseError("Invalid arguments: %v", err)
	}

	// Context to drive the main goroutine and all monitors.
	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer mainCancel()

	log.Infof("Starting kernwatch %s (revision %s, build timestamp %s)",
		vc.Version(), vc.Revision(), vc.BuildTimestamp())

	ctlr := controller.New(args)
	if err := ctlr.Start(mainCtx); err != nil {
		return failure("Failed to start agent: %v", err)
	}
	defer ctlr.Shutdown()

	// Block waiting for a termination signal.
	<-mainCtx.Done()

	log.Info("Exiting ...")
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
