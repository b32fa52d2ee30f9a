package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// serverEvent is one parsed SSE event.
type serverEvent struct {
	name string
	data string
}

// parseEventStream reads text/event-stream frames from r and invokes
// handle for each complete event. It returns when the stream ends.
func parseEventStream(r io.Reader, handle func(serverEvent) error) error {
	scanner := bufio.NewScanner(r)

	var event serverEvent

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if event.name != "" || event.data != "" {
				if err := handle(event); err != nil {
					return err
				}
			}

			event = serverEvent{}

		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			event.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	return scanner.Err()
}

func printEventStream(w io.Writer, r io.Reader) error {
	return parseEventStream(r, func(event serverEvent) error {
		switch event.name {
		case "log":
			var line struct {
				Level   string    `json:"level"`
				Message string    `json:"message"`
				Time    time.Time `json:"time"`
			}

			if err := json.Unmarshal([]byte(event.data), &line); err != nil {
				return fmt.Errorf("malformed log event: %w", err)
			}

			printLogLine(w, line.Time, line.Level, line.Message)

		case "status":
			var status struct {
				Status string `json:"status"`
			}

			if err := json.Unmarshal([]byte(event.data), &status); err != nil {
				return fmt.Errorf("malformed status event: %w", err)
			}

			fmt.Fprintf(w, "job %s\n", status.Status)
		}

		return nil
	})
}

func printLogLine(w io.Writer, ts time.Time, level, message string) {
	fmt.Fprintf(
		w,
		"%s %-5s %s\n",
		ts.Format(time.TimeOnly),
		strings.ToUpper(level),
		message,
	)
}
