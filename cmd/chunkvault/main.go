package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/chunkvault/internal/buildinfo"
	"github.com/dmitrijs2005/chunkvault/internal/cli"
	"github.com/dmitrijs2005/chunkvault/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	// optional .env in the working directory
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
