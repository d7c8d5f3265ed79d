// syncprobe connects to the realtime backend and streams decoded events
// to the console.
// Usage: go run ./cmd/syncprobe --config configs/syncprobe.local.yaml --room room-1
//
// Required environment variables:
//
//	HOBBYVERSE_TOKEN - JWT or opaque session token for the handshake
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aboyz1/HobbyVerse-sub001/internal/client"
	"github.com/aboyz1/HobbyVerse-sub001/internal/config"
	"github.com/aboyz1/HobbyVerse-sub001/internal/event"
	"github.com/aboyz1/HobbyVerse-sub001/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncprobe.example.yaml", "path to config file")
	room := flag.String("room", "", "chat room to join")
	projects := flag.String("projects", "", "comma-separated project ids to follow")
	challenges := flag.String("challenges", "", "comma-separated challenge ids to follow")
	say := flag.String("say", "", "send one message to the joined room after connecting")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	// .env is optional; the config file expands ${HOBBYVERSE_TOKEN}
	godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	logger.Info("syncprobe", "version", version.String())

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	c, err := client.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}

	registerPrinters(c)

	if err := c.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}
	defer c.Stop()

	for _, id := range splitIDs(*projects) {
		c.FollowProject(id)
	}
	for _, id := range splitIDs(*challenges) {
		c.FollowChallenge(id)
	}
	if *room != "" {
		c.JoinRoom(*room)
	}

	if *say != "" && *room != "" {
		go func() {
			// Give the join a moment to be acknowledged.
			time.Sleep(time.Second)
			corr, err := c.SendMessage(*room, *say)
			if err != nil {
				logger.Error("send failed", "error", err)
				return
			}
			logger.Info("message sent", "correlation_id", corr)
		}()
	}

	// Periodic status line.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				attrs := []any{
					"state", c.State().String(),
					"subscriptions", len(c.Subscriptions()),
				}
				if *room != "" {
					attrs = append(attrs,
						"messages", len(c.History(*room)),
						"typing", c.TypingUsers(*room),
					)
				}
				logger.Info("status", attrs...)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info("shutting down...")
}

// registerPrinters dumps every interesting event to stdout.
func registerPrinters(c *client.Client) {
	c.On(event.NewMessageName, func(data json.RawMessage) {
		var msg event.NewMessage
		if json.Unmarshal(data, &msg) != nil {
			return
		}
		fmt.Printf("[MESSAGE] room=%s author=%s id=%s %q\n", msg.RoomID, msg.AuthorID, msg.ID, msg.Content)
	})

	for _, name := range []string{
		event.ProjectUpdateName,
		event.ChallengeUpdateName,
		event.SquadUpdateName,
		event.GeneralPostUpdateName,
	} {
		c.On(name, func(data json.RawMessage) {
			var u event.CounterUpdate
			if json.Unmarshal(data, &u) != nil {
				return
			}
			fmt.Printf("[COUNTER] entity=%s %s=%d actor=%s\n", u.EntityID, u.CounterName(), u.Value, u.ActorID)
		})
	}

	c.On(event.ConnectedName, func(data json.RawMessage) {
		var st event.ConnectionStatus
		json.Unmarshal(data, &st)
		fmt.Printf("[CONNECTED] attempts_used=%d\n", st.Attempts)
	})
	c.On(event.DisconnectedName, func(data json.RawMessage) {
		var st event.ConnectionStatus
		json.Unmarshal(data, &st)
		fmt.Printf("[DISCONNECTED] reason=%s\n", st.Reason)
	})
	c.On(event.ConnectionFailedName, func(data json.RawMessage) {
		var st event.ConnectionStatus
		json.Unmarshal(data, &st)
		fmt.Printf("[FAILED] attempts=%d reason=%s\n", st.Attempts, st.Reason)
	})
	c.On(event.AuthRejectedName, func(data json.RawMessage) {
		var f event.AuthFailure
		json.Unmarshal(data, &f)
		fmt.Printf("[AUTH REJECTED] %s\n", f.Reason)
	})
	c.On(event.SendFailedName, func(data json.RawMessage) {
		var f event.SendFailure
		json.Unmarshal(data, &f)
		fmt.Printf("[SEND FAILED] room=%s correlation_id=%s\n", f.RoomID, f.CorrelationID)
	})
}

func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
