// Command wsclient is an interactive test client for the tvlink relay.
//
//	go run ./cmd/wsclient -register tv:tv-1 ws://127.0.0.1:5500/ws
//
// Each stdin line is "<type> [json payload]", for example:
//
//	requestPairing {"tvId":"tv-1"}
//	ping
//
// With no URL the client browses mDNS for a relay.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tvlink/relay/internal/logx"
	"github.com/tvlink/relay/internal/mdns"
)

type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	registerAs := flag.String("register", "", "Register on connect as kind:id (e.g. tv:tv-1)")
	insecure := flag.Bool("insecure", true, "Skip certificate verification for wss://")
	discoverFor := flag.Duration("discover", 3*time.Second, "mDNS browse time when no URL is given")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logx.New(*logLevel, logx.FormatConsole, os.Stderr)

	url := flag.Arg(0)
	if url == "" {
		found, err := discover(*discoverFor)
		if err != nil {
			log.Fatal().Err(err).Msg("discovery failed")
		}
		url = found
	}

	dialer := *websocket.DefaultDialer
	if *insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	log.Info().Str("url", url).Msg("connecting")
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer conn.Close()

	if *registerAs != "" {
		kind, id, ok := strings.Cut(*registerAs, ":")
		if !ok {
			log.Fatal().Str("register", *registerAs).Msg("expected kind:id")
		}
		payload, _ := json.Marshal(map[string]string{"type": kind, "id": id})
		if err := conn.WriteJSON(envelope{Type: "register", Payload: payload}); err != nil {
			log.Fatal().Err(err).Msg("register failed")
		}
	}

	done := make(chan struct{})
	count := 0
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Msg("read error")
				}
				return
			}
			count++
			printMessage(os.Stdout, count, data)
		}
	}()

	go readCommands(os.Stdin, conn, log)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	fmt.Printf("Total messages received: %d\n", count)
}

// readCommands turns stdin lines into events. Request ids are line numbers
// so replies can be matched by eye.
func readCommands(r io.Reader, conn *websocket.Conn, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		line++
		typ, rest, _ := strings.Cut(text, " ")
		msg := envelope{Type: typ, ID: fmt.Sprintf("%d", line)}
		if rest = strings.TrimSpace(rest); rest != "" {
			if !json.Valid([]byte(rest)) {
				log.Warn().Str("payload", rest).Msg("payload is not valid JSON, skipped")
				continue
			}
			msg.Payload = json.RawMessage(rest)
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Error().Err(err).Msg("write failed")
			return
		}
	}
}

func printMessage(w io.Writer, n int, data []byte) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Fprintf(w, "[%d] raw: %s\n", n, data)
		return
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "[%d] %s (re %s) %s\n", n, msg.Type, msg.ID, msg.Payload)
		return
	}
	fmt.Fprintf(w, "[%d] %s %s\n", n, msg.Type, msg.Payload)
}

func discover(wait time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	relays, err := mdns.Discover(ctx)
	if err != nil {
		return "", err
	}
	if len(relays) == 0 {
		return "", fmt.Errorf("no relay found on the local network; pass a ws:// URL")
	}
	r := relays[0]
	fmt.Printf("Found %s at %s\n", r.Name, r.URL())
	return r.URL(), nil
}
