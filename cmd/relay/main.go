package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"watchparty/internal/config"
	"watchparty/internal/logger"
	"watchparty/internal/player"
	"watchparty/internal/protocol"
	"watchparty/internal/relay"
)

const usage = `commands:
  video <url>    load a video for everyone
  play | pause   control playback
  seek <seconds> jump to a position
  chat <text>    send a chat message
  sync           ask the host for the current position
  force          push the local position to everyone
  host on|off    claim or release host authority
  quit`

// console prints what the participant would see in a GUI.
type console struct {
	out io.Writer
	log *slog.Logger
}

func (c console) OnMessage(msg protocol.Message) {
	c.log.Debug("message received", "type", msg.Type())
}

func (c console) OnChatMessage(username, content string) {
	fmt.Fprintf(c.out, "[%s] %s\n", username, content)
}

func (c console) OnSystemMessage(text string) {
	fmt.Fprintf(c.out, "* %s\n", text)
}

func (c console) OnConnectionStateChanged(connected bool) {
	if connected {
		fmt.Fprintln(c.out, "* online")
		return
	}
	fmt.Fprintln(c.out, "* offline")
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	server := flag.String("server", "", "coordinator address (host:port or ws:// URL)")
	username := flag.String("username", "", "chat username")
	host := flag.Bool("host", false, "claim host authority")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Relay.Server = *server
	}
	if *username != "" {
		cfg.Relay.Username = *username
	}
	if *host {
		cfg.Relay.Host = true
	}

	log := logger.NewWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg.Relay, log); err != nil {
		log.Error("relay exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.RelayConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent := relay.New(cfg, player.NewVirtual(log), console{out: os.Stdout, log: log}, log)
	defer agent.Close()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	err := agent.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	go agent.Run(ctx)

	fmt.Println(usage)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(agent, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(agent *relay.Agent, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return false, nil
	case "video":
		return false, agent.SetVideo(arg)
	case "play":
		return false, agent.Play()
	case "pause":
		return false, agent.Pause()
	case "seek":
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return false, fmt.Errorf("%w: %q", relay.ErrInvalidSeek, arg)
		}
		return false, agent.Seek(seconds)
	case "chat":
		return false, agent.SendChat(arg)
	case "sync":
		if !agent.SyncWithServer() {
			fmt.Println("* sync skipped, try again shortly")
		}
		return false, nil
	case "force":
		return false, agent.ForceSync()
	case "host":
		agent.SetHost(arg == "on")
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		fmt.Println(usage)
		return false, nil
	}
}
