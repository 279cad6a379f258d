package notify

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/gofiber/websocket/v2"
)

// Conn lo que el hub necesita de una conexión websocket
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type subscription struct {
	conn     Conn
	channels map[string]bool
}

type message struct {
	channel string
	data    []byte
}

// Hub maneja las conexiones WebSocket suscritas a canales de notificación
type Hub struct {
	clients    map[Conn]*subscription
	broadcast  chan message
	register   chan *subscription
	unregister chan Conn
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

var _ Dispatcher = (*Hub)(nil)

func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[Conn]*subscription),
		broadcast:  make(chan message, 256),
		register:   make(chan *subscription),
		unregister: make(chan Conn),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.clients[sub.conn] = sub
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("🔌 Cliente conectado. Total clientes: %d", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("🔌 Cliente desconectado. Total clientes: %d", total)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[Conn]*subscription)
			h.mu.Unlock()
			return
		}
	}
}

// deliver escribe fuera del lock; Emit y Clients no esperan a clientes lentos
func (h *Hub) deliver(msg message) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.clients))
	for conn, sub := range h.clients {
		if sub.channels[msg.channel] {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []Conn
	)
	for _, conn := range targets {
		wg.Add(1)
		go func(conn Conn) {
			defer wg.Done()
			if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				log.Printf("Error enviando mensaje a %s: %v", msg.channel, err)
				failMu.Lock()
				failed = append(failed, conn)
				failMu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	if len(failed) == 0 {
		return
	}
	h.mu.Lock()
	for _, conn := range failed {
		if _, ok := h.clients[conn]; ok {
			delete(h.clients, conn)
			conn.Close()
		}
	}
	h.mu.Unlock()
}

// Subscribe registra una conexión para los canales dados
func (h *Hub) Subscribe(conn Conn, channels []string) {
	sub := &subscription{conn: conn, channels: make(map[string]bool, len(channels))}
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			sub.channels[ch] = true
		}
	}
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

func (h *Hub) Unsubscribe(conn Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Emit serializa el evento y lo encola; si el buffer está lleno se descarta
func (h *Hub) Emit(channel string, payload any) {
	h.mu.RLock()
	idle := len(h.clients) == 0
	h.mu.RUnlock()
	if idle {
		return // No hay clientes conectados
	}

	data, err := json.Marshal(NewEnvelope(channel, payload))
	if err != nil {
		log.Printf("Error al serializar evento %s: %v", channel, err)
		return
	}

	select {
	case h.broadcast <- message{channel: channel, data: data}:
	default:
		log.Printf("⚠️ [HUB] buffer lleno, evento %s descartado", channel)
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Serve atiende una conexión Fiber hasta que el cliente se desconecta
func (h *Hub) Serve(conn *websocket.Conn, channels []string) {
	h.Subscribe(conn, channels)
	defer h.Unsubscribe(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
