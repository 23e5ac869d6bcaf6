package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/viper"

	"fleet-tracking-system/config"
	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/fleet"
	"fleet-tracking-system/logging"
)

func newFleetServer(t *testing.T, extra int) (*Server, *fleet.Store) {
	t.Helper()
	cfg, err := config.Load(viper.New(), "")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	fx := fixtures.Default(testNow)
	fx.Generate(extra, 1, testNow)
	store := fleet.NewStore(fx.Vehicles, fleet.FixedSource{DLat: 0.0001},
		fleet.WithClock(func() time.Time { return testNow }), fleet.WithLogger(logging.Discard()))

	srv, err := NewServer(Deps{Config: cfg, Logger: logging.Discard(), Fixture: fx, Store: store})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv, store
}

func TestStalledMapClientDoesNotBlockTicks(t *testing.T) {
	srv, store := newFleetServer(t, 3000)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	// This client never reads.
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/map", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var worst time.Duration
	for i := 0; i < 200; i++ {
		start := time.Now()
		store.Tick()
		if d := time.Since(start); d > worst {
			worst = d
		}
	}
	if worst > time.Second {
		t.Errorf("slowest tick took %v", worst)
	}
	if n := srv.Hub().Clients(); n != 0 {
		t.Errorf("clients = %d, want the stalled client dropped", n)
	}
}

func TestMapClientEnqueueAfterClose(t *testing.T) {
	srv, _ := newFleetServer(t, 0)
	ts := httptest.NewServer(srv.Handler(nil))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/map", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	c := newMapClient(conn, nil, nil)
	for i := 0; i < sendBuffer; i++ {
		if !c.enqueue(serverMessage{Type: "frame"}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if c.enqueue(serverMessage{Type: "frame"}) {
		t.Error("enqueue beyond the buffer accepted")
	}
	c.close()
	c.close()
	if c.enqueue(serverMessage{Type: "frame"}) {
		t.Error("enqueue after close accepted")
	}
}
