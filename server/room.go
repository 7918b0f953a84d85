package server

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"tankarena/protocol"
)

// ErrRoomClosed 房间协程已退出
var ErrRoomClosed = errors.New("server: room closed")

// Conn 房间对连接的最小依赖：非阻塞入队 + 关闭
type Conn interface {
	Enqueue(b []byte) bool
	Close()
}

// RoomConfig 房间的时间参数
type RoomConfig struct {
	TickInterval    time.Duration // 快照广播周期
	StaleAfter      time.Duration // 超过该时间未 update 的玩家被清理
	BulletBufferTTL time.Duration // 子弹回放缓冲保留时长
	BulletReplayAge time.Duration // 新连接回放多近的子弹
	PongInterval    time.Duration
	InboxSize       int
}

// DefaultRoomConfig 10Hz 广播、15s 超时、20s 缓冲、2s pong
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TickInterval:    100 * time.Millisecond,
		StaleAfter:      15 * time.Second,
		BulletBufferTTL: 20 * time.Second,
		BulletReplayAge: 12 * time.Second,
		PongInterval:    2 * time.Second,
		InboxSize:       256,
	}
}

// RoomStatus 房间状态的只读副本（供管理接口使用）
type RoomStatus struct {
	ID      string                 `json:"room"`
	Tick    int64                  `json:"tick"`
	Players []protocol.PlayerState `json:"players"`
	Bullets int                    `json:"bufferedBullets"`
	Metrics map[string]any         `json:"metrics"`
}

// Room 房间：玩家存储 + 子弹转发 + 广播循环，全部由单个协程驱动
type Room struct {
	ID string

	cfg     RoomConfig
	store   *Store
	relay   *Relay
	clients map[PlayerID]Conn
	inbox   chan any
	done    chan struct{}
	metrics *RoomMetrics
	tickSeq int64

	now   func() time.Time
	spawn func(id PlayerID) Player

	// onEmpty 最后一个连接离开时在房间协程中调用
	onEmpty func(id string)
	closing bool
}

// NewRoom 创建房间，初始化数据结构；需要调用 Run 才开始广播
func NewRoom(id string, cfg RoomConfig) *Room {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	return &Room{
		ID:      id,
		cfg:     cfg,
		store:   NewStore(),
		relay:   NewRelay(cfg.BulletBufferTTL),
		clients: make(map[PlayerID]Conn),
		inbox:   make(chan any, cfg.InboxSize),
		done:    make(chan struct{}),
		metrics: &RoomMetrics{},
		now:     time.Now,
		spawn:   randomSpawn,
	}
}

// randomSpawn 出生点：x/z 在 [-15,15) 内随机，满血
func randomSpawn(id PlayerID) Player {
	return Player{
		ID: id,
		X:  (rand.Float64() - 0.5) * 30,
		Z:  (rand.Float64() - 0.5) * 30,
		HP: 100,
	}
}

// Metrics 房间指标（原子计数，可并发读取）
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Done 房间协程退出后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

// Join 将连接加入房间；成功后连接会依次收到 welcome、全量快照、回放子弹
func (r *Room) Join(ctx context.Context, id PlayerID, conn Conn) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- joinCmd{id: id, conn: conn, reply: reply}:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnUpdate 入站状态（非阻塞）：收件箱满时丢弃，保证广播准时
func (r *Room) OnUpdate(from PlayerID, msg protocol.Update) {
	r.post(updateCmd{from: from, msg: msg})
}

// OnShoot 入站开火事件（非阻塞）
func (r *Room) OnShoot(from PlayerID, msg protocol.Shoot) {
	r.post(shootCmd{from: from, msg: msg})
}

func (r *Room) post(cmd any) {
	select {
	case r.inbox <- cmd:
	default:
		r.metrics.IncInboxDropped()
	}
}

// RequestLeave 请求在房间协程中移除玩家。离开必须生效，因此阻塞写入，房间退出时放弃。
func (r *Room) RequestLeave(id PlayerID, conn Conn) {
	select {
	case r.inbox <- leaveCmd{id: id, conn: conn}:
	case <-r.done:
	}
}

// Status 通过收件箱取得一致的状态副本
func (r *Room) Status(ctx context.Context) (RoomStatus, error) {
	reply := make(chan RoomStatus, 1)
	select {
	case r.inbox <- statusCmd{reply: reply}:
	case <-r.done:
		return RoomStatus{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomStatus{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-r.done:
		return RoomStatus{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomStatus{}, ctx.Err()
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.id, c.conn)
	case updateCmd:
		r.applyUpdate(c.from, c.msg)
	case shootCmd:
		r.fire(c.from, c.msg)
	case leaveCmd:
		r.leave(c.id, c.conn)
	case statusCmd:
		c.reply <- r.status()
	}
}

func (r *Room) join(id PlayerID, conn Conn) error {
	if r.closing {
		return ErrRoomClosed
	}
	if _, ok := r.clients[id]; ok {
		return ErrDuplicateIdentity
	}
	now := r.now()
	p := r.spawn(id)
	p.LastUpdate = now
	if err := r.store.Register(p); err != nil {
		return err
	}
	r.clients[id] = conn
	r.metrics.SetPlayers(len(r.clients))

	r.send(conn, protocol.MustEncode(protocol.TypeWelcome, protocol.Welcome{
		ID:         string(id),
		Room:       r.ID,
		TickMs:     r.cfg.TickInterval.Milliseconds(),
		ServerTime: now.UnixMilli(),
	}))
	r.send(conn, r.encodeState())
	for _, b := range r.relay.Recent(now, r.cfg.BulletReplayAge) {
		r.send(conn, protocol.MustEncode(protocol.TypeBullet, b))
	}
	Log.Infof("join: room=%s player=%s players=%d", r.ID, id, len(r.clients))
	return nil
}

// applyUpdate 只写发送连接自己的条目，消息中的 id 字段忽略；数值本身不校验
func (r *Room) applyUpdate(from PlayerID, msg protocol.Update) {
	if r.store.Upsert(from, msg, r.now()) {
		r.metrics.IncUpdatesAccepted()
		return
	}
	r.metrics.IncUpdatesIgnored()
}

func (r *Room) fire(from PlayerID, msg protocol.Shoot) {
	b := r.relay.Fire(from, msg, r.now())
	r.metrics.IncBulletsRelayed()
	r.broadcast(protocol.MustEncode(protocol.TypeBullet, b))
}

func (r *Room) leave(id PlayerID, conn Conn) {
	cur, ok := r.clients[id]
	if !ok || cur != conn {
		return
	}
	delete(r.clients, id)
	r.store.Remove(id)
	cur.Close()
	r.metrics.SetPlayers(len(r.clients))
	Log.Infof("leave: room=%s player=%s players=%d", r.ID, id, len(r.clients))
	r.checkEmpty()
}

func (r *Room) checkEmpty() {
	if len(r.clients) == 0 && r.onEmpty != nil && !r.closing {
		r.closing = true
		r.onEmpty(r.ID)
	}
}

func (r *Room) status() RoomStatus {
	return RoomStatus{
		ID:      r.ID,
		Tick:    r.tickSeq,
		Players: r.store.Snapshot(),
		Bullets: r.relay.Len(),
		Metrics: r.metrics.Snapshot(),
	}
}

func (r *Room) encodeState() []byte {
	return protocol.MustEncode(protocol.TypeState, protocol.State{Players: r.store.Snapshot()})
}

// broadcast 同一份字节发给所有连接；慢连接只会丢自己的消息
func (r *Room) broadcast(b []byte) {
	for _, c := range r.clients {
		r.send(c, b)
	}
}

func (r *Room) send(c Conn, b []byte) {
	if !c.Enqueue(b) {
		r.metrics.IncSendsDropped()
	}
}

// closeAll 房间退出时关闭所有连接
func (r *Room) closeAll() {
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
	r.metrics.SetPlayers(0)
}
