package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"fieldstock/internal/adapters/cli"
	"fieldstock/internal/adapters/repl"
	webAdapter "fieldstock/internal/adapters/web"
	"fieldstock/internal/bootstrap"
	"fieldstock/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FIELDSTOCK_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	actor := os.Getenv("FIELDSTOCK_ACTOR")
	if actor == "" {
		actor = "cli"
	}

	// token needs no container.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if len(os.Args) < 3 {
			log.Fatal("Usage: app token <subject> [role]")
		}
		role := ""
		if len(os.Args) > 3 {
			role = os.Args[3]
		}
		token, err := webAdapter.SignToken(cfg.Server.JWTSecret, os.Args[2], role, 24*time.Hour)
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()
	// Keep logs out of the way of command output.
	c, err := bootstrap.New(ctx, cfg, io.Discard)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer c.Close()

	if len(os.Args) > 1 {
		if err := cli.Run(ctx, c.App, os.Args[1:], os.Stdout, actor); err != nil {
			if errors.Is(err, cli.ErrUsage) {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(2)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := repl.Run(ctx, c.App, bufio.NewReader(os.Stdin), os.Stdout, actor); err != nil {
		log.Fatalf("repl: %v", err)
	}
}
