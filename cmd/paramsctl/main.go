package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/andresuchdata/autopo-params/pkg/logger"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn().Err(err).Msg("could not load .env file")
	}

	if err := newApp().Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("paramsctl failed")
	}
}
