package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tankarena/protocol"
)

// DefaultPublishInterval 略快于服务端 100ms 广播，避免两者相位锁定
const DefaultPublishInterval = 90 * time.Millisecond

const writeWait = 5 * time.Second

// ErrClosed 连接已关闭
var ErrClosed = errors.New("client: connection closed")

// Options 客户端参数
type Options struct {
	URL             string // ws://host:port/ws
	Room            string
	ID              string // 为空时生成新的 UUID；不复用旧身份
	Spawn           mgl64.Vec3
	PublishInterval time.Duration
	Hooks           Hooks
	Logger          *zap.SugaredLogger
	Dialer          *websocket.Dialer
}

// Client 一个玩家连接：接收快照驱动镜像，本地预测并定期上行
type Client struct {
	id        string
	ws        *websocket.Conn
	writeMu   sync.Mutex
	log       *zap.SugaredLogger
	interval  time.Duration
	mirror    *Mirror
	predictor *Predictor
	bullets   *BulletField

	serverTime  atomic.Int64 // 最近一次 pong/welcome 的服务端时间（unix ms）
	clockOffset atomic.Int64 // 服务端时间 - 本地时间（ms），含单程延迟

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial 建立连接并启动读协程
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = DefaultPublishInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("player", opts.ID)
	if opts.Room != "" {
		q.Set("room", opts.Room)
	}
	u.RawQuery = q.Encode()

	ws, resp, err := opts.Dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Client{
		id:        opts.ID,
		ws:        ws,
		log:       opts.Logger.With("player", opts.ID),
		interval:  opts.PublishInterval,
		mirror:    NewMirror(opts.ID, opts.Hooks),
		predictor: NewPredictor(opts.ID, opts.Spawn),
		bullets:   &BulletField{},
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) ID() string { return c.id }
func (c *Client) Mirror() *Mirror { return c.mirror }
func (c *Client) Predictor() *Predictor { return c.predictor }
func (c *Client) Bullets() *BulletField { return c.bullets }
func (c *Client) Done() <-chan struct{} { return c.done }
func (c *Client) ServerTime() int64 { return c.serverTime.Load() }
func (c *Client) ClockOffset() time.Duration {
	return time.Duration(c.clockOffset.Load()) * time.Millisecond
}

// Err 连接关闭原因；未关闭时为 nil
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	var err error
	defer func() { c.shutdown(err) }()
	for {
		var payload []byte
		_, payload, err = c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, derr := protocol.DecodeEnvelope(payload)
		if derr != nil {
			c.log.Debugw("bad frame", "err", derr)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeState:
		st, err := protocol.DecodePayload[protocol.State](env)
		if err != nil {
			c.log.Debugw("bad state", "err", err)
			return
		}
		c.mirror.Apply(st.Players)
	case protocol.TypeBullet:
		b, err := protocol.DecodePayload[protocol.Bullet](env)
		if err != nil {
			c.log.Debugw("bad bullet", "err", err)
			return
		}
		// 自己的子弹在开火时已本地生成，忽略回显
		if b.Owner == c.id {
			return
		}
		now := time.Now()
		born := time.UnixMilli(b.T).Add(-c.ClockOffset())
		if !c.bullets.AddRemote(b, now, born) {
			c.log.Debugw("expired bullet dropped", "bullet", b.ID, "owner", b.Owner)
		}
	case protocol.TypePong:
		ms, err := protocol.DecodePayload[int64](env)
		if err != nil {
			return
		}
		c.syncClock(ms)
	case protocol.TypeWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			c.log.Debugw("bad welcome", "err", err)
			return
		}
		// 回放子弹紧随 welcome 到达，需要先有时钟偏移
		if w.ServerTime > 0 {
			c.syncClock(w.ServerTime)
		}
		c.log.Debugw("welcome", "room", w.Room, "tickMs", w.TickMs)
	}
}

func (c *Client) syncClock(serverMs int64) {
	c.serverTime.Store(serverMs)
	c.clockOffset.Store(serverMs - time.Now().UnixMilli())
}

// Run 按 PublishInterval 上行本地状态，直到 ctx 取消或连接关闭
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return c.err
		case <-ticker.C:
			if err := c.Publish(); err != nil {
				return err
			}
		}
	}
}

// Publish 立即上行一次完整本地状态
func (c *Client) Publish() error {
	return c.send(protocol.TypeUpdate, protocol.FullUpdate(c.predictor.State()))
}

// Frame 一帧：先本地预测，再推进子弹并判定命中
func (c *Client) Frame(in Input, dt float64, now time.Time) []Hit {
	c.predictor.Step(in, dt)
	if dt > MaxFrameDt {
		dt = MaxFrameDt
	}
	return c.bullets.Step(dt, now, c.predictor, c.mirror)
}

// Shoot 从炮口开火：本地立即生成子弹，并通知服务端转发
func (c *Client) Shoot() (protocol.Shoot, error) {
	origin, dir := c.predictor.Muzzle()
	vel := dir.Mul(BulletSpeed)
	c.bullets.Add(Bullet{Owner: c.id, Pos: origin, Vel: vel, Born: time.Now()})
	s := protocol.Shoot{
		X: origin.X(), Y: origin.Y(), Z: origin.Z(),
		VX: vel.X(), VY: vel.Y(), VZ: vel.Z(),
		Owner: c.id,
	}
	return s, c.send(protocol.TypeShoot, s)
}

func (c *Client) send(t string, payload any) error {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

// Close 发送关闭帧并断开
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		if err == nil {
			err = ErrClosed
		}
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}
