package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSConn_LinePerFrame(t *testing.T) {
	t.Parallel()

	peers := make(chan *Peer, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		peers <- NewPeer(NewWSConn(conn))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	var p *Peer
	select {
	case p = <-peers:
	case <-time.After(time.Second):
		t.Fatal("no peer accepted")
	}
	defer p.Close()
	assert.NotEmpty(t, p.RemoteAddr())

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("ignored")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ID bob\n")))

	line, err := p.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ID bob", line)

	require.NoError(t, p.Send("2|00000000|SEND-ID"))
	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "2|00000000|SEND-ID", string(data))

	_ = client.Close()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("peer should notice the closed socket")
	}
	assert.Equal(t, KindClosed, Classify(p.Err()))
}
