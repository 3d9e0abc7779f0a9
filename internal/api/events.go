package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetops/internal/metrics"
)

var heartbeatInterval = 15 * time.Second

func streamTopic(r *http.Request) (string, bool) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = TopicPlans
	}
	return topic, topics[topic]
}

// EventStreamHandler handles GET /api/events/stream?topic= as Server-Sent
// Events with a heartbeat every 15s.
func (s *Server) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	topic, ok := streamTopic(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Unknown topic", topic, r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.Broker.Subscribe(topic)
	defer s.Broker.Unsubscribe(topic, ch)
	metrics.StreamClients.WithLabelValues("sse").Inc()
	defer metrics.StreamClients.WithLabelValues("sse").Dec()

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"topic\":%q,\"ts\":%q}\n\n", topic, stamp())
		flusher.Flush()
	}
	heartbeat()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(evt.Data)
			if err != nil {
				s.Log.Error("encode stream event", "type", evt.Type, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		case <-ticker.C:
			heartbeat()
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the frame exchanged on /api/events/ws. Clients send
// connection_init, subscribe {id, topic}, complete {id} and ping; the server
// answers connection_ack, next {id, topic, event, payload}, error, complete
// and pong.
type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventWSHandler handles GET /api/events/ws.
func (s *Server) EventWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	metrics.StreamClients.WithLabelValues("ws").Inc()
	defer metrics.StreamClients.WithLabelValues("ws").Dec()

	type sub struct {
		topic string
		ch    chan Event
	}
	subs := map[string]sub{}
	var wg sync.WaitGroup
	defer func() {
		for id, s0 := range subs {
			s.Broker.Unsubscribe(s0.topic, s0.ch)
			delete(subs, id)
		}
		wg.Wait()
	}()

	// gorilla allows one concurrent writer
	var wmu sync.Mutex
	write := func(v wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		payload, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: payload})
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if msg.ID == "" {
				msg.ID = msg.Topic
			}
			if !topics[msg.Topic] {
				fail(msg.ID, "unknown topic: "+msg.Topic)
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			if _, dup := subs[msg.ID]; dup {
				fail(msg.ID, "subscription id already in use")
				continue
			}
			ch := s.Broker.Subscribe(msg.Topic)
			subs[msg.ID] = sub{topic: msg.Topic, ch: ch}
			wg.Add(1)
			go func(id, topic string, c chan Event) {
				defer wg.Done()
				for evt := range c {
					payload, err := json.Marshal(evt.Data)
					if err != nil {
						continue
					}
					_ = write(wsMessage{Type: "next", ID: id, Topic: topic, Event: evt.Type, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, msg.Topic, ch)
		case "complete":
			if s0, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(s0.topic, s0.ch)
				delete(subs, msg.ID)
			}
		default:
			fail(msg.ID, "unsupported message type: "+msg.Type)
		}
	}
}
