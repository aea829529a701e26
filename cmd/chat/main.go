package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sentinel.app/relay/common/logger"
	"sentinel.app/relay/core/config"
	"sentinel.app/relay/internal/app"
	"sentinel.app/relay/internal/brain"
)

const prompt = "you> "

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeChat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so they do not mix with the conversation.
	slog.SetDefault(slog.New(logger.NewHandler(cfg, os.Stderr)))

	application, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	fmt.Println("Sentinel log triage. Ask about a service's logs, or type /new to start over and /quit to leave.")

	var threadID string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/new":
			threadID = ""
			fmt.Println("Started a new conversation.")
			continue
		}

		state, err := application.Engine.SubmitTurn(ctx, brain.TurnInput{Text: line, ThreadID: threadID})
		switch {
		case errors.Is(err, brain.ErrTurnTimeout):
			fmt.Println("bot> That took too long. Nothing was saved, please try again.")
			if ctx.Err() != nil {
				return
			}
			continue
		case err != nil:
			fmt.Printf("bot> Something went wrong: %v\n", err)
			continue
		}

		threadID = state.ThreadID
		fmt.Printf("bot> %s\n", state.LastReply())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
	}
}
