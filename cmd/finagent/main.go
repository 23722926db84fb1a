package main

import (
	"github.com/joho/godotenv"

	"github.com/R2i2Labs/fin-agent-ui/internal/cli"
)

func main() {
	_ = godotenv.Load()

	cli.Execute()
}
