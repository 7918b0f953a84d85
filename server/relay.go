package server

import (
	"time"

	"github.com/google/uuid"

	"tankarena/protocol"
)

// Relay 子弹转发：盖章后立即广播，不参与碰撞。
// buffer 仅用于给新加入的连接回放仍在飞行中的子弹。
type Relay struct {
	buffer []protocol.Bullet
	ttl    time.Duration
	newID  func() string
}

func NewRelay(ttl time.Duration) *Relay {
	return &Relay{ttl: ttl, newID: uuid.NewString}
}

// Fire 为开火事件分配新 id 和时间戳，并写入回放缓冲。
// owner 优先取消息里声明的值（不校验），缺省用发送方身份。
func (r *Relay) Fire(from PlayerID, s protocol.Shoot, now time.Time) protocol.Bullet {
	owner := s.Owner
	if owner == "" {
		owner = string(from)
	}
	b := protocol.Bullet{
		ID:    r.newID(),
		X:     s.X,
		Y:     s.Y,
		Z:     s.Z,
		VX:    s.VX,
		VY:    s.VY,
		VZ:    s.VZ,
		Owner: owner,
		T:     now.UnixMilli(),
	}
	r.buffer = append(r.buffer, b)
	return b
}

// Prune 按年龄清理缓冲，返回清理数量
func (r *Relay) Prune(now time.Time) int {
	cutoff := now.Add(-r.ttl).UnixMilli()
	kept := r.buffer[:0]
	for _, b := range r.buffer {
		if b.T > cutoff {
			kept = append(kept, b)
		}
	}
	n := len(r.buffer) - len(kept)
	// 清掉尾部引用
	for i := len(kept); i < len(r.buffer); i++ {
		r.buffer[i] = protocol.Bullet{}
	}
	r.buffer = kept
	return n
}

// Recent 返回 maxAge 内创建的子弹（按创建顺序）
func (r *Relay) Recent(now time.Time, maxAge time.Duration) []protocol.Bullet {
	cutoff := now.Add(-maxAge).UnixMilli()
	var out []protocol.Bullet
	for _, b := range r.buffer {
		if b.T > cutoff {
			out = append(out, b)
		}
	}
	return out
}

func (r *Relay) Len() int { return len(r.buffer) }
