// Command streamclient is a development client for the gateway. It opens a
// WebSocket connection, starts a stream for a commercial and sends each
// stdin line as a final transcript fragment. EOF stops the stream.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coder/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "gateway WebSocket URL")
	commercialID := flag.String("commercial", "dev-commercial", "commercial id to stream as")
	building := flag.String("building", "", "building id for the session")
	flag.Parse()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal %s: %v\n", event, err)
			return
		}
		frame, _ := json.Marshal(envelope{Event: event, Data: data})
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", event, err)
			os.Exit(1)
		}
	}

	// Echo everything the server sends.
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			fmt.Printf("<- %s\n", data)
		}
	}()

	send("start_streaming", map[string]any{
		"commercialId": *commercialID,
		"buildingId":   *building,
	})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		send("transcription_update", map[string]any{
			"commercial_id": *commercialID,
			"transcript":    line,
			"is_final":      true,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	}

	send("stop_streaming", map[string]any{"commercialId": *commercialID})

	// Give the server a moment to answer before closing.
	time.Sleep(500 * time.Millisecond)
}
