package main

import (
	"errors"
	"strings"
	"testing"
)

func TestParseEventStream(t *testing.T) {
	t.Run("delivers complete events in order", func(t *testing.T) {
		stream := "event: log\n" +
			"data: {\"message\":\"first\"}\n" +
			"\n" +
			"event: log\n" +
			"data: {\"message\":\"second\"}\n" +
			"\n" +
			"event: status\n" +
			"data: {\"status\":\"completed\"}\n" +
			"\n"

		var got []serverEvent

		err := parseEventStream(strings.NewReader(stream), func(e serverEvent) error {
			got = append(got, e)
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []serverEvent{
			{name: "log", data: `{"message":"first"}`},
			{name: "log", data: `{"message":"second"}`},
			{name: "status", data: `{"status":"completed"}`},
		}

		if len(got) != len(want) {
			t.Fatalf("got %d events, want %d", len(got), len(want))
		}

		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("ignores blank frames", func(t *testing.T) {
		stream := "\n\n\nevent: status\ndata: {\"status\":\"failed\"}\n\n"

		count := 0

		err := parseEventStream(strings.NewReader(stream), func(e serverEvent) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if count != 1 {
			t.Errorf("got %d events, want 1", count)
		}
	})

	t.Run("stops when the handler fails", func(t *testing.T) {
		stream := "event: log\ndata: {}\n\nevent: log\ndata: {}\n\n"

		wantErr := errors.New("stop here")
		count := 0

		err := parseEventStream(strings.NewReader(stream), func(e serverEvent) error {
			count++
			return wantErr
		})

		if !errors.Is(err, wantErr) {
			t.Errorf("got error %v, want %v", err, wantErr)
		}

		if count != 1 {
			t.Errorf("handler called %d times, want 1", count)
		}
	})
}

func TestPrintEventStream(t *testing.T) {
	t.Run("renders log and status events", func(t *testing.T) {
		stream := "event: log\n" +
			"data: {\"level\":\"info\",\"message\":\"application submitted\",\"time\":\"2026-08-26T10:30:00Z\"}\n" +
			"\n" +
			"event: status\n" +
			"data: {\"status\":\"completed\"}\n" +
			"\n"

		var out strings.Builder

		if err := printEventStream(&out, strings.NewReader(stream)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := out.String()

		if !strings.Contains(got, "INFO  application submitted") {
			t.Errorf("missing log line in output: %q", got)
		}

		if !strings.Contains(got, "job completed\n") {
			t.Errorf("missing status line in output: %q", got)
		}
	})

	t.Run("rejects malformed log data", func(t *testing.T) {
		stream := "event: log\ndata: {bad\n\n"

		err := printEventStream(&strings.Builder{}, strings.NewReader(stream))
		if err == nil {
			t.Fatal("expected an error for malformed event data")
		}
	})
}
