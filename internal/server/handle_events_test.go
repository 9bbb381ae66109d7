package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/hiddencatch/internal/game"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// readSSE reads one event block and returns its event name and data.
func readSSE(t *testing.T, rd *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" || data != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStream(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 2)

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/games/%d/events", srv.URL, id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content-type = %q, want text/event-stream", got)
	}

	rd := bufio.NewReader(resp.Body)
	event, data := readSSE(t, rd)
	if event != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", event)
	}
	var snapshot game.UploadStatusResponse
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot.GameID != id || len(snapshot.SlotStatuses) != 2 {
		t.Errorf("snapshot = %+v", snapshot)
	}

	api.broker.Publish(id, hiddencatch.Event{Type: hiddencatch.EventSlot, SlotNumber: 2, Status: "processing"})

	event, data = readSSE(t, rd)
	if event != "state" {
		t.Fatalf("event = %q, want state", event)
	}
	var ev hiddencatch.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != hiddencatch.EventSlot || ev.SlotNumber != 2 || ev.Status != "processing" {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventsUnknownGame(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/games/404/events", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if n := api.broker.Subscribers(404); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestLiveWebSocket(t *testing.T) {
	api := newTestAPI(t)
	id := api.createGame(t, 1)

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):] + fmt.Sprintf("/api/games/%d/ws", id)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() wsMessage {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != "snapshot" {
		t.Fatalf("first message = %q, want snapshot", msg.Type)
	}

	want := []hiddencatch.Event{
		{Type: hiddencatch.EventHit, StageNumber: 1, FoundDifferenceCount: 1, CurrentScore: 100},
		{Type: hiddencatch.EventGame, Status: string(hiddencatch.GameStatusFinished)},
	}
	for _, ev := range want {
		api.broker.Publish(id, ev)
	}
	for _, w := range want {
		msg := read()
		if msg.Type != "state" {
			t.Fatalf("message type = %q, want state", msg.Type)
		}
		var got hiddencatch.Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got != w {
			t.Errorf("event = %+v, want %+v", got, w)
		}
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}
