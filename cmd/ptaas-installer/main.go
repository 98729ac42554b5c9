package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JadKHaddad/ptaas-installer/internal/installer"
)

func main() {
	projectDir := flag.String("project-dir", "", "directory containing the uploaded project (requirements.txt, locust/)")
	installedDir := flag.String("installed-dir", "", "directory reserved for the installed project's final layout")
	envDir := flag.String("env-dir", "", "directory to create the virtual environment in")
	checkOnly := flag.Bool("check-only", false, "only validate the project layout, don't install")
	flag.Parse()

	if *projectDir == "" || *envDir == "" {
		fmt.Println("Usage: ./ptaas-installer -project-dir=<dir> -env-dir=<dir> [-installed-dir=<dir>] [-check-only]")
		os.Exit(1)
	}
	if *installedDir == "" {
		*installedDir = *projectDir
	}

	log := buildLogger().Named("main")
	id := uuid.NewString()

	stdout := make(chan string, 100)
	stderr := make(chan string, 100)
	inst, ctl := installer.New(id, *projectDir, *installedDir, *envDir, stdout, stderr, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("interrupt received, cancelling installation")
		if _, err := ctl.Cancel(); err != nil {
			log.Warn("cancel failed", zap.Error(err))
		}
	}()

	// Printed lines race the install's own return: the installer's relay
	// goroutines have all finished by the time CheckAndInstall returns, so
	// main closes the sinks then, which tells the loop below to stop once
	// it has printed what is left.
	printDone := make(chan struct{})
	go func() {
		defer close(printDone)
		out, errc := stdout, stderr
		for out != nil || errc != nil {
			select {
			case line, ok := <-out:
				if !ok {
					out = nil
					continue
				}
				fmt.Println(line)
			case line, ok := <-errc:
				if !ok {
					errc = nil
					continue
				}
				fmt.Fprintln(os.Stderr, line)
			}
		}
	}()

	var err error
	if *checkOnly {
		close(stdout)
		close(stderr)
		err = inst.Check()
	} else {
		err = inst.CheckAndInstall()
		close(stdout)
		close(stderr)
	}
	<-printDone

	if err != nil {
		log.Fatal("installation failed", zap.Error(err))
	}
	log.Info("installation finished", zap.String("id", id))
}

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
