package relay

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"immersia-backend/internal/channel"
	"immersia-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The listener binds to loopback; the browser extension is the only
	// expected peer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Listener accepts tab connections over a local WebSocket. One connection is
// one tab: the connection supplies tab identity to every message, and a
// closed connection is the tab-removal notification.
type Listener struct {
	channel *channel.EventChannel
	relay   *Relay
}

func NewListener(ch *channel.EventChannel, r *Relay) *Listener {
	return &Listener{channel: ch, relay: r}
}

func (l *Listener) HandleTab(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("listener: upgrade failed: %v", err)
		return
	}

	tabID := uuid.New().String()
	sink := l.channel.ForTab(tabID)
	log.Printf("listener: tab %s connected", tabID)

	go func() {
		defer func() {
			conn.Close()
			l.relay.RemoveTab(tabID)
			log.Printf("listener: tab %s closed", tabID)
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg models.ChannelMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("listener: tab %s sent malformed message: %v", tabID, err)
				continue
			}
			if msg.Type != models.MessagePlaybackEvent {
				continue
			}

			sink.Send(msg.Payload)
		}
	}()
}
