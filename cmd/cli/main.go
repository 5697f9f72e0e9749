package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/emissionkeeper/internal/app"
	"github.com/dmitrijs2005/emissionkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/emissionkeeper/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	a, err := app.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	a.Run(ctx)

}
