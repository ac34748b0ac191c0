package ws

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/session"
)

func TestDecodeInboundAudio(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	raw := []byte(`{"type":"audio","data":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`)

	msg, ok := decodeInbound(raw)

	require.True(t, ok)
	assert.Equal(t, session.InboundAudio, msg.Kind)
	assert.Equal(t, pcm, msg.Audio)
}

func TestDecodeInboundClose(t *testing.T) {
	msg, ok := decodeInbound([]byte(`{"type":"close"}`))

	require.True(t, ok)
	assert.Equal(t, session.InboundClose, msg.Kind)
}

// A client may keep streaming audio after its session has already ended. The
// reader must not stay parked in a send on the full inbound buffer once the
// session signals done.
func TestReaderExitsWhenSessionEnds(t *testing.T) {
	inbound := make(chan session.Inbound, 8)
	done := make(chan struct{})
	readerExited := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readMessages(conn, "test-session", inbound, done)
		close(readerExited)
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	frame := []byte(`{"type":"audio","data":"` + base64.StdEncoding.EncodeToString([]byte{1, 2}) + `"}`)
	for range 32 {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, frame))
	}

	// Nothing drains inbound, so the reader ends up blocked on the send.
	// Signalling done must release it.
	close(done)

	select {
	case <-readerExited:
	case <-time.After(2 * time.Second):
		t.Fatal("reader still running after session end")
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `audio bytes`},
		{name: "unknown type", raw: `{"type":"video","data":"AAAA"}`},
		{name: "audio with bad base64", raw: `{"type":"audio","data":"%%%"}`},
		{name: "audio with empty payload", raw: `{"type":"audio","data":""}`},
		{name: "missing type", raw: `{"data":"AAAA"}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, ok := decodeInbound([]byte(testCase.raw))
			assert.False(t, ok)
		})
	}
}
