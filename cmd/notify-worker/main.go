package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/zegl/eligo/notifyworker"
)

func main() {
	if err := notifyworker.Run(); err != nil {
		log.Error().Err(err).Msg("notify-worker exited with error")
		os.Exit(1)
	}
}
