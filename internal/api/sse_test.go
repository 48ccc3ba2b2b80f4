package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gwlsn/rawray/internal/batch"
)

func TestRunStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/api/runs/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readFrame := func() map[string]interface{} {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read frame: %v", err)
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var frame map[string]interface{}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			return frame
		}
	}

	// First frame carries the full current state.
	init := readFrame()
	if init["type"] != "init" {
		t.Fatalf("expected init frame, got %v", init["type"])
	}

	run, err := batch.NewRun([]string{"/photos/a.orf"}, batch.SourceRelative(), "jpeg", 95, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.queue.Add(run); err != nil {
		t.Fatal(err)
	}

	queued := readFrame()
	if queued["type"] != string(batch.EventRunQueued) {
		t.Errorf("expected run_queued frame, got %v", queued["type"])
	}
	if queued["run_id"] != run.ID {
		t.Errorf("frame carries wrong run: %v", queued["run_id"])
	}
}
