package main

import (
	"context"
	"os"

	"github.com/MrSnakeDoc/linkup/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
