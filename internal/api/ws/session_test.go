package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zegl/eligo/internal/fanout"
	"github.com/zegl/eligo/internal/model"
)

// pair returns a server-side session with the given queue size and the
// client end of its connection. WritePump is not started.
func pair(t *testing.T, buffer int) (*Session, *websocket.Conn) {
	t.Helper()
	sessions := make(chan *Session, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions <- NewSession(conn, "A", buffer, zerolog.Nop())
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = client.Close() })

	select {
	case s := <-sessions:
		t.Cleanup(s.Close)
		return s, client
	case <-time.After(5 * time.Second):
		t.Fatal("no server session")
		return nil, nil
	}
}

func item(id string) fanout.Event {
	return fanout.NewEvent(fanout.EventUpdated, &model.Item{ID: id, ListID: "L1", UserID: "A"})
}

func readIDs(t *testing.T, c *websocket.Conn, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for len(ids) < n {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev struct {
			Type    string `json:"type"`
			Payload struct {
				ID string `json:"id"`
			} `json:"payload"`
		}
		_, data, err := c.ReadMessage()
		require.NoError(t, err, "after %d frames", len(ids))
		require.NoError(t, json.Unmarshal(data, &ev))
		ids = append(ids, ev.Payload.ID)
	}
	return ids
}

func TestStreamWaitsForRoomAndHoldsLiveEvents(t *testing.T) {
	s, client := pair(t, 4)
	go s.WritePump()

	const n = 50
	errs := make(chan error, 1)
	go func() {
		ctx := context.Background()
		s.BeginCatchUp()
		for i := 0; i < n; i++ {
			if i == 10 {
				if !s.Send(item("live-1")) {
					errs <- ErrClosed
					return
				}
			}
			if err := s.Stream(ctx, item("c"+strconv.Itoa(i))); err != nil {
				errs <- err
				return
			}
		}
		if err := s.EndCatchUp(ctx); err != nil {
			errs <- err
			return
		}
		if !s.Send(item("live-2")) {
			errs <- ErrClosed
			return
		}
		errs <- nil
	}()

	ids := readIDs(t, client, n+2)
	require.NoError(t, <-errs)
	for i := 0; i < n; i++ {
		assert.Equal(t, "c"+strconv.Itoa(i), ids[i])
	}
	assert.Equal(t, []string{"live-1", "live-2"}, ids[n:])
}

func TestNestedStreamsFlushOnLastEnd(t *testing.T) {
	s, client := pair(t, 8)
	ctx := context.Background()

	s.BeginCatchUp()
	s.BeginCatchUp()
	require.True(t, s.Send(item("live")))
	require.NoError(t, s.Stream(ctx, item("c1")))
	require.NoError(t, s.EndCatchUp(ctx))
	require.NoError(t, s.Stream(ctx, item("c2")))
	require.NoError(t, s.EndCatchUp(ctx))

	go s.WritePump()
	assert.Equal(t, []string{"c1", "c2", "live"}, readIDs(t, client, 3))
}

func TestLiveOverflowClosesSession(t *testing.T) {
	s, _ := pair(t, 2)
	require.True(t, s.Send(item("1")))
	require.True(t, s.Send(item("2")))
	assert.False(t, s.Send(item("3")))

	select {
	case <-s.Done():
	default:
		t.Fatal("session still open after overflow")
	}
	assert.ErrorIs(t, s.Stream(context.Background(), item("4")), ErrClosed)
}

func TestHeldOverflowClosesSession(t *testing.T) {
	s, _ := pair(t, 2)
	s.BeginCatchUp()
	require.True(t, s.Send(item("1")))
	require.True(t, s.Send(item("2")))
	assert.False(t, s.Send(item("3")))
	<-s.Done()
}

func TestCancelledStreamClosesSession(t *testing.T) {
	s, _ := pair(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s.BeginCatchUp()
	require.NoError(t, s.Stream(ctx, item("1")))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.ErrorIs(t, s.Stream(ctx, item("2")), context.Canceled)
	<-s.Done()
}
