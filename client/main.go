package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wfunc/storyserver/network"
)

func main() {
	var (
		addr   string
		name   string
		ticker bool
	)
	cmd := &cobra.Command{
		Use:   "storyclient",
		Short: "Terminal client for a storyserver session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, name, ticker)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "server host:port")
	cmd.Flags().StringVar(&name, "name", os.Getenv("USER"), "display name")
	cmd.Flags().BoolVar(&ticker, "ticker", false, "print every stock tick")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(addr, name string, ticker bool) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	view := newView(os.Stdout, ticker)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid frame: %v", err)
				continue
			}
			view.Render(packet)
		}
	}()

	if err := sendCommand(c, command{event: network.EventJoin, payload: network.JoinPayload{Name: name}}); err != nil {
		return err
	}
	view.Help()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
		close(lines)
	}()

	// The server also pings at the protocol level; this keeps proxies that
	// only count data frames from timing the socket out.
	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()

	// Write loop
	for {
		select {
		case <-done:
			return nil
		case <-keepalive.C:
			if err := sendCommand(c, command{event: network.EventPing}); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseLine(line)
			if err != nil {
				view.Error(err)
				continue
			}
			switch cmd.event {
			case "":
				continue
			case cmdQuit:
				return nil
			case cmdPrice:
				view.Price()
				continue
			case cmdHelp:
				view.Help()
				continue
			}
			if err := sendCommand(c, cmd); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func sendCommand(c *websocket.Conn, cmd command) error {
	frame, err := cmd.frame()
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

const pingInterval = 20 * time.Second

// Local commands that never reach the server.
const (
	cmdQuit  = "quit"
	cmdPrice = "price"
	cmdHelp  = "help"
)

type command struct {
	event   string
	payload any
}

func (c command) frame() ([]byte, error) {
	var data []byte
	if c.payload != nil {
		var err error
		if data, err = json.Marshal(c.payload); err != nil {
			return nil, err
		}
	}
	return network.Encode(c.event, data)
}

// parseLine turns one line of input into a command. Lines starting with a
// slash are commands; anything else is a story action.
func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{event: network.EventAction, payload: network.ActionPayload{Text: line}}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	switch strings.ToLower(fields[0]) {
	case "start":
		return command{event: network.EventStartGame}, nil
	case "buy", "sell":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: /%s <qty>", fields[0])
		}
		var qty int64
		if _, err := fmt.Sscan(fields[1], &qty); err != nil || qty <= 0 {
			return command{}, fmt.Errorf("quantity must be a positive integer")
		}
		event := network.EventBuyStock
		if strings.EqualFold(fields[0], "sell") {
			event = network.EventSellStock
		}
		return command{event: event, payload: network.TradePayload{Qty: qty}}, nil
	case "name":
		if len(fields) < 2 {
			return command{}, fmt.Errorf("usage: /name <display name>")
		}
		return command{event: network.EventJoin, payload: network.JoinPayload{Name: strings.Join(fields[1:], " ")}}, nil
	case "price":
		return command{event: cmdPrice}, nil
	case "help":
		return command{event: cmdHelp}, nil
	case "quit", "exit":
		return command{event: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s", fields[0])
	}
}
