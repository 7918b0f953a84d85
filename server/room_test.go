package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankarena/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	sendCh chan []byte
	closed bool
	full   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sendCh: make(chan []byte, 512)}
}

func (f *fakeConn) Enqueue(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.full {
		return false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.msgs = append(f.msgs, cp)
	select {
	case f.sendCh <- cp:
	default:
	}
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// drain 取出并清空已收到的消息
func (f *fakeConn) drain(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	msgs := f.msgs
	f.msgs = nil
	f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(msgs))
	for _, b := range msgs {
		env, err := protocol.DecodeEnvelope(b)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func lastState(t *testing.T, envs []protocol.Envelope) protocol.State {
	t.Helper()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == protocol.TypeState {
			st, err := protocol.DecodePayload[protocol.State](envs[i])
			require.NoError(t, err)
			return st
		}
	}
	t.Fatalf("no state message among %d envelopes", len(envs))
	return protocol.State{}
}

func ofType(envs []protocol.Envelope, typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, e := range envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// testRoom 不启动协程，测试直接在当前协程中驱动 handle/Tick
type testRoom struct {
	*Room
	clock time.Time
}

func newTestRoom() *testRoom {
	tr := &testRoom{Room: NewRoom("test", DefaultRoomConfig()), clock: time.Unix(1_700_000_000, 0)}
	tr.now = func() time.Time { return tr.clock }
	tr.spawn = func(id PlayerID) Player { return Player{ID: id, HP: 100} }
	return tr
}

func (tr *testRoom) advance(d time.Duration) { tr.clock = tr.clock.Add(d) }

func (tr *testRoom) join(t *testing.T, id PlayerID, c Conn) {
	t.Helper()
	reply := make(chan error, 1)
	tr.handle(joinCmd{id: id, conn: c, reply: reply})
	require.NoError(t, <-reply)
}

func TestRoomJoinSendsWelcomeThenState(t *testing.T) {
	tr := newTestRoom()
	c := newFakeConn()
	tr.join(t, "p1", c)

	envs := c.drain(t)
	require.Len(t, envs, 2)
	assert.Equal(t, protocol.TypeWelcome, envs[0].Type)
	w, err := protocol.DecodePayload[protocol.Welcome](envs[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.Welcome{ID: "p1", Room: "test", TickMs: 100, ServerTime: tr.clock.UnixMilli()}, w)

	st := lastState(t, envs)
	assert.Equal(t, []protocol.PlayerState{{ID: "p1", HP: 100}}, st.Players)
}

func TestRoomRejectsDuplicateIdentity(t *testing.T) {
	tr := newTestRoom()
	tr.join(t, "p1", newFakeConn())

	reply := make(chan error, 1)
	tr.handle(joinCmd{id: "p1", conn: newFakeConn(), reply: reply})
	assert.ErrorIs(t, <-reply, ErrDuplicateIdentity)
	assert.Equal(t, 1, tr.store.Len())
}

func TestRoomUpdateAppearsInNextTick(t *testing.T) {
	tr := newTestRoom()
	a, b := newFakeConn(), newFakeConn()
	tr.join(t, "p1", a)
	tr.join(t, "p2", b)
	b.drain(t)

	tr.handle(updateCmd{from: "p1", msg: protocol.FullUpdate(protocol.PlayerState{ID: "p1", X: 5, Z: 5, HP: 100})})
	tr.Tick()

	st := lastState(t, b.drain(t))
	assert.Contains(t, st.Players, protocol.PlayerState{ID: "p1", X: 5, Y: 0, Z: 5, RotY: 0, HP: 100})
	assert.EqualValues(t, 1, tr.metrics.UpdatesAccepted)
}

func TestRoomUpdateOnlyMovesSender(t *testing.T) {
	tr := newTestRoom()
	tr.join(t, "p1", newFakeConn())
	tr.join(t, "p2", newFakeConn())

	// 消息里的 id 不能改写别人的条目
	tr.handle(updateCmd{from: "p2", msg: protocol.Update{ID: "p1", X: f64(7), HP: intp(1)}})
	p1, _ := tr.store.Get("p1")
	assert.Equal(t, Player{ID: "p1", HP: 100, LastUpdate: tr.clock}, p1)
	p2, _ := tr.store.Get("p2")
	assert.Equal(t, 7.0, p2.X)
	assert.Equal(t, 1, p2.HP, "values are relayed unvalidated")

	// 已离开的连接迟到的 update 被忽略
	tr.handle(updateCmd{from: "gone", msg: protocol.Update{X: f64(7)}})
	assert.Equal(t, 2, tr.store.Len())
	assert.EqualValues(t, 1, tr.metrics.UpdatesAccepted)
	assert.EqualValues(t, 1, tr.metrics.UpdatesIgnored)
}

func TestRoomShootFansOutToEveryone(t *testing.T) {
	tr := newTestRoom()
	a, b := newFakeConn(), newFakeConn()
	tr.join(t, "p1", a)
	tr.join(t, "p2", b)
	a.drain(t)
	b.drain(t)

	tr.handle(shootCmd{from: "p1", msg: protocol.Shoot{X: 1, VZ: 45, Owner: "p1"}})

	for _, c := range []*fakeConn{a, b} {
		bullets := ofType(c.drain(t), protocol.TypeBullet)
		require.Len(t, bullets, 1)
		got, err := protocol.DecodePayload[protocol.Bullet](bullets[0])
		require.NoError(t, err)
		assert.Equal(t, "p1", got.Owner)
		assert.Equal(t, 45.0, got.VZ)
		assert.Equal(t, tr.clock.UnixMilli(), got.T)
		assert.NotEmpty(t, got.ID)
	}
}

func TestRoomReplaysInFlightBulletsOnJoin(t *testing.T) {
	tr := newTestRoom()
	tr.join(t, "p1", newFakeConn())

	tr.handle(shootCmd{from: "p1", msg: protocol.Shoot{Owner: "p1"}})
	tr.advance(13 * time.Second)
	tr.handle(shootCmd{from: "p1", msg: protocol.Shoot{Owner: "p1", X: 2}})
	tr.advance(time.Second)

	late := newFakeConn()
	tr.join(t, "p3", late)
	bullets := ofType(late.drain(t), protocol.TypeBullet)
	require.Len(t, bullets, 1, "only bullets younger than the client lifetime are replayed")
	got, err := protocol.DecodePayload[protocol.Bullet](bullets[0])
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.X)
}

func TestRoomTickPrunesBulletBuffer(t *testing.T) {
	tr := newTestRoom()
	tr.join(t, "p1", newFakeConn())
	tr.handle(shootCmd{from: "p1", msg: protocol.Shoot{}})
	tr.handle(updateCmd{from: "p1", msg: protocol.Update{}})

	tr.advance(19 * time.Second)
	tr.handle(updateCmd{from: "p1", msg: protocol.Update{}})
	tr.Tick()
	assert.Equal(t, 1, tr.relay.Len())

	tr.advance(2 * time.Second)
	tr.Tick()
	assert.Equal(t, 0, tr.relay.Len())
}

func TestRoomLeaveRemovesFromSnapshot(t *testing.T) {
	tr := newTestRoom()
	a, b := newFakeConn(), newFakeConn()
	tr.join(t, "p1", a)
	tr.join(t, "p2", b)

	tr.handle(leaveCmd{id: "p1", conn: a})
	assert.True(t, a.isClosed())
	tr.Tick()

	st := lastState(t, b.drain(t))
	assert.Equal(t, []string{"p2"}, ids(st.Players))
}

func TestRoomLeaveFromReplacedConnIsIgnored(t *testing.T) {
	tr := newTestRoom()
	old, cur := newFakeConn(), newFakeConn()
	tr.join(t, "p1", old)
	tr.handle(leaveCmd{id: "p1", conn: old})
	tr.join(t, "p1", cur)

	// 旧连接的读协程迟到的 leave
	tr.handle(leaveCmd{id: "p1", conn: old})
	assert.Equal(t, 1, tr.store.Len())
	assert.False(t, cur.isClosed())
}

func TestRoomTickReapsSilentPlayers(t *testing.T) {
	tr := newTestRoom()
	quiet, chatty := newFakeConn(), newFakeConn()
	tr.join(t, "quiet", quiet)
	tr.join(t, "chatty", chatty)

	for i := 0; i < 16; i++ {
		tr.advance(time.Second)
		tr.handle(updateCmd{from: "chatty", msg: protocol.Update{}})
		tr.Tick()
	}

	assert.True(t, quiet.isClosed())
	assert.False(t, chatty.isClosed())
	st := lastState(t, chatty.drain(t))
	assert.Equal(t, []string{"chatty"}, ids(st.Players))
	assert.EqualValues(t, 1, tr.metrics.StaleReaped)
}

func TestRoomBroadcastSkipsFullQueues(t *testing.T) {
	tr := newTestRoom()
	slow, ok := newFakeConn(), newFakeConn()
	tr.join(t, "slow", slow)
	tr.join(t, "ok", ok)
	ok.drain(t)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	tr.Tick()
	assert.Len(t, ofType(ok.drain(t), protocol.TypeState), 1)
	assert.EqualValues(t, 1, tr.metrics.SendsDropped)
}

func TestRoomEmptyCallbackFiresOnce(t *testing.T) {
	tr := newTestRoom()
	var emptied []string
	tr.onEmpty = func(id string) { emptied = append(emptied, id) }

	c := newFakeConn()
	tr.join(t, "p1", c)
	tr.handle(leaveCmd{id: "p1", conn: c})
	tr.Tick()

	assert.Equal(t, []string{"test"}, emptied)

	reply := make(chan error, 1)
	tr.handle(joinCmd{id: "p2", conn: newFakeConn(), reply: reply})
	assert.ErrorIs(t, <-reply, ErrRoomClosed)
}

func TestRoomRunBroadcastsAndAnswersStatus(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.PongInterval = 20 * time.Millisecond
	r := NewRoom("live", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	c := newFakeConn()
	require.NoError(t, r.Join(ctx, "p1", c))
	r.OnUpdate("p1", protocol.Update{X: f64(3)})

	timeout := time.After(2 * time.Second)
	sawPong, sawMoved := false, false
	for !sawPong || !sawMoved {
		select {
		case b := <-c.sendCh:
			env, err := protocol.DecodeEnvelope(b)
			require.NoError(t, err)
			switch env.Type {
			case protocol.TypePong:
				ms, err := protocol.DecodePayload[int64](env)
				require.NoError(t, err)
				assert.Positive(t, ms)
				sawPong = true
			case protocol.TypeState:
				st, err := protocol.DecodePayload[protocol.State](env)
				require.NoError(t, err)
				if len(st.Players) == 1 && st.Players[0].X == 3 {
					sawMoved = true
				}
			}
		case <-timeout:
			t.Fatalf("timed out: pong=%v moved=%v", sawPong, sawMoved)
		}
	}

	st, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live", st.ID)
	assert.Positive(t, st.Tick)
	require.Len(t, st.Players, 1)

	cancel()
	<-r.Done()
	assert.True(t, c.isClosed())
	assert.ErrorIs(t, r.Join(context.Background(), "p2", newFakeConn()), ErrRoomClosed)
}
