package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tankarena/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	joinWait   = 5 * time.Second
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func NewClientConn(ws *websocket.Conn, queue int) *ClientConn {
	if queue <= 0 {
		queue = 256
	}
	return &ClientConn{
		ws:        ws,
		send:      make(chan []byte, queue),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性丢弃，防止阻塞房间协程
		return false
	}
}

// Close 通知写协程发完队列后关闭连接
func (c *ClientConn) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *ClientConn) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText), time.Now().Add(writeWait))
			return
		}
	}
}

// flush 关闭前尽量写完已入队的消息
func (c *ClientConn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *ClientConn) write(msg []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// readPump 读取客户端消息并投递到房间；退出时请求房间移除该玩家
func (c *ClientConn) readPump(room *Room, id PlayerID) {
	defer room.RequestLeave(id, c)
	c.ws.SetReadLimit(1 << 20) // 1MB
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				Log.Debugf("read: room=%s player=%s err=%v", room.ID, id, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		env, err := protocol.DecodeEnvelope(payload)
		if err != nil {
			Log.Debugf("bad frame from %s: %v", id, err)
			continue
		}
		switch env.Type {
		case protocol.TypeUpdate:
			up, err := protocol.DecodePayload[protocol.Update](env)
			if err != nil {
				Log.Debugf("bad update from %s: %v", id, err)
				continue
			}
			room.OnUpdate(id, up)
		case protocol.TypeShoot:
			s, err := protocol.DecodePayload[protocol.Shoot](env)
			if err != nil {
				Log.Debugf("bad shoot from %s: %v", id, err)
				continue
			}
			room.OnShoot(id, s)
		default:
			// 未知类型直接忽略
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=arena&player=alice；缺省 player 时服务端生成 UUID
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = s.rooms.DefaultRoom()
	}
	playerID := PlayerID(r.URL.Query().Get("player"))
	if playerID == "" {
		playerID = PlayerID(uuid.NewString())
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}
	client := NewClientConn(ws, s.sendQueue)
	go client.writePump()

	room, err := s.join(roomID, playerID, client)
	if err != nil {
		Log.Infof("join refused: room=%s player=%s err=%v", roomID, playerID, err)
		if errors.Is(err, ErrDuplicateIdentity) {
			client.closeWith(websocket.ClosePolicyViolation, "identity in use")
		} else {
			client.closeWith(websocket.CloseTryAgainLater, "room unavailable")
		}
		return
	}
	go client.readPump(room, playerID)
}

// join 房间在最后一人离开时可能已被回收，此时重新获取一次
func (s *Server) join(roomID string, id PlayerID, c *ClientConn) (*Room, error) {
	ctx, cancel := context.WithTimeout(context.Background(), joinWait)
	defer cancel()
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		room := s.rooms.GetOrCreateRoom(roomID)
		err = room.Join(ctx, id, c)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, ErrRoomClosed) {
			return nil, err
		}
	}
	return nil, err
}
