package main

import (
	"os"

	"github.com/Swapica/order-filler-svc/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	// secrets such as the wallet key may come from a local .env, KV_VIPER_FILE still points to the config
	_ = godotenv.Load()

	if !cli.Run(os.Args) {
		os.Exit(1)
	}
}
