package server

import (
	"context"
	"time"

	"tankarena/protocol"
)

// Run 房间主循环（单协程）：处理收件箱命令、定时广播快照、定时 pong。
// ctx 取消后关闭所有连接并返回。
func (r *Room) Run(ctx context.Context) {
	defer close(r.done)
	defer r.closeAll()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	pong := time.NewTicker(r.cfg.PongInterval)
	defer pong.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.inbox:
			r.handle(cmd)
		case <-ticker.C:
			r.Tick()
		case <-pong.C:
			r.broadcast(protocol.MustEncode(protocol.TypePong, r.now().UnixMilli()))
		}
	}
}

// Tick 一次广播周期：清理超时玩家 → 清理子弹缓冲 → 广播全量快照。
// 只能在房间协程中调用。
func (r *Room) Tick() {
	start := time.Now()
	now := r.now()
	r.tickSeq++

	reaped := r.store.Reap(now, r.cfg.StaleAfter)
	for _, id := range reaped {
		r.metrics.IncStaleReaped()
		if c, ok := r.clients[id]; ok {
			delete(r.clients, id)
			c.Close()
		}
		Log.Infof("reap: room=%s player=%s idle>%s", r.ID, id, r.cfg.StaleAfter)
	}
	if len(reaped) > 0 {
		r.metrics.SetPlayers(len(r.clients))
	}

	if n := r.relay.Prune(now); n > 0 {
		Log.Debugf("prune: room=%s bullets=%d", r.ID, n)
	}

	r.broadcast(r.encodeState())
	r.metrics.AddTick(time.Since(start).Nanoseconds())

	if len(reaped) > 0 {
		r.checkEmpty()
	}
}
