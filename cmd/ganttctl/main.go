package main

import (
	"fmt"
	"os"

	"wbs-gantt/pkg/config"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("GANTT_ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, "load env file:", err)
	}
	if err := newRoot(&app{cfg: config.ClientFromEnv()}).Execute(); err != nil {
		os.Exit(1)
	}
}
