package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/zegl/eligo/syncservice"
)

func main() {
	if err := syncservice.Run(); err != nil {
		log.Error().Err(err).Msg("sync-service exited with error")
		os.Exit(1)
	}
}
