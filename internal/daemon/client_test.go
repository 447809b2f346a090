package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"
)

// startMockDaemon serves every connection with handle, which receives each
// decoded command and an encoder for replies and events.
func startMockDaemon(t *testing.T, handle func(cmd Command, enc *json.Encoder)) string {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				enc := json.NewEncoder(conn)
				sc := bufio.NewScanner(conn)
				for sc.Scan() {
					var cmd Command
					if err := json.Unmarshal(sc.Bytes(), &cmd); err != nil {
						return
					}
					handle(cmd, enc)
				}
			}(conn)
		}
	}()

	return sockPath
}

func TestClientSendCommand(t *testing.T) {
	received := make(chan Command, 1)
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {
		received <- cmd
		enc.Encode(Response{OK: true, SessionID: "sess-1", Recording: BoolPtr(true)})
	})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(Command{Cmd: CmdStart, Locale: "en_US", SystemAudio: BoolPtr(false)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want %q", resp.SessionID, "sess-1")
	}
	if resp.Recording == nil || !*resp.Recording {
		t.Errorf("recording = %v, want true", resp.Recording)
	}
	got := <-received
	if got.Cmd != CmdStart || got.Locale != "en_US" {
		t.Errorf("daemon received %+v", got)
	}
	if got.SystemAudio == nil || *got.SystemAudio {
		t.Errorf("systemAudio = %v, want false", got.SystemAudio)
	}
}

func TestClientSendCommandNotOK(t *testing.T) {
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {
		enc.Encode(Response{OK: false, Error: "Microphone permission denied"})
	})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(Command{Cmd: CmdStart})
	if err == nil {
		t.Fatal("expected error for ok=false")
	}
	if resp.Error != "Microphone permission denied" {
		t.Errorf("error = %q", resp.Error)
	}
	if want := "start: Microphone permission denied"; err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
}

func TestClientConnectFailure(t *testing.T) {
	_, err := Connect(context.Background(), "/nonexistent/path/steno.sock")
	if err == nil {
		t.Error("expected error connecting to nonexistent socket")
	}
}

func TestClientSubscribeAndReadEvents(t *testing.T) {
	subscribed := make(chan []string, 1)
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {
		if cmd.Cmd != CmdSubscribe {
			return
		}
		subscribed <- cmd.Events
		enc.Encode(Response{OK: true})
		seq := 3
		enc.Encode(Event{Event: EventPartial, Text: "hello", Source: SourceMicrophone})
		enc.Encode(Event{Event: EventSegment, Text: "hello there", SequenceNumber: &seq})
	})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Subscribe(EventPartial, EventSegment); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if events := <-subscribed; len(events) != 2 {
		t.Errorf("subscribed = %v", events)
	}

	ev1, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 1: %v", err)
	}
	if ev1.Event != EventPartial || ev1.Text != "hello" {
		t.Errorf("event1 = %+v", ev1)
	}

	ev2, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 2: %v", err)
	}
	if ev2.SequenceNumber == nil || *ev2.SequenceNumber != 3 {
		t.Errorf("event2 = %+v", ev2)
	}
}

func TestClientReadDeadline(t *testing.T) {
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {
		enc.Encode(Response{OK: true})
	})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err = client.ReadEvent()
	if !IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestClientCommandDeadline(t *testing.T) {
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {
		if cmd.Cmd != CmdStop {
			enc.Encode(Response{OK: true})
		}
	})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	client.SetDeadline(time.Now().Add(50 * time.Millisecond))
	start := time.Now()
	_, err = client.SendCommand(Command{Cmd: CmdStop})
	if !IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("SendCommand took %v despite deadline", elapsed)
	}
}

func TestClientReadAfterClose(t *testing.T) {
	sockPath := startMockDaemon(t, func(cmd Command, enc *json.Encoder) {})

	client, err := Connect(context.Background(), sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// The mock closes once it stops reading; closing our side ends the scan.
	client.conn.(*net.UnixConn).CloseWrite()
	_, err = client.ReadEvent()
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
