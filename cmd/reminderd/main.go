package main

import (
	"context"
	"fmt"
	"os"

	"reminderd/internal/commands"
)

func main() {
	if err := commands.New().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "reminderd:", err)
		os.Exit(1)
	}
}
