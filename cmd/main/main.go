package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-errors/errors"
	"github.com/joho/godotenv"

	"github.com/BartekS5/ledgerbridge/internal/cli"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var withStack *errors.Error
		if errors.As(err, &withStack) && os.Getenv("LOG_LEVEL") == "debug" {
			fmt.Fprintln(os.Stderr, withStack.ErrorStack())
		}
		stop()
		os.Exit(1)
	}
}
