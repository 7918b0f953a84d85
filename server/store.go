package server

import (
	"errors"
	"sort"
	"time"

	"tankarena/protocol"
)

// ErrDuplicateIdentity 同一房间内身份已被占用
var ErrDuplicateIdentity = errors.New("server: identity already registered")

// Store 连接身份 → 玩家状态。只由房间协程访问，不加锁。
type Store struct {
	players map[PlayerID]*Player
}

func NewStore() *Store {
	return &Store{players: make(map[PlayerID]*Player)}
}

// Register 连接建立时登记玩家；这是唯一的创建入口
func (s *Store) Register(p Player) error {
	if _, ok := s.players[p.ID]; ok {
		return ErrDuplicateIdentity
	}
	cp := p
	s.players[p.ID] = &cp
	return nil
}

// Upsert 覆盖已登记玩家的非空字段并刷新时间戳；未登记则什么都不做。
// 不校验、不裁剪：任何声称该身份的调用方都可以修改它。
func (s *Store) Upsert(id PlayerID, up protocol.Update, now time.Time) bool {
	p, ok := s.players[id]
	if !ok {
		return false
	}
	p.apply(up)
	p.LastUpdate = now
	return true
}

// Remove 无条件删除
func (s *Store) Remove(id PlayerID) bool {
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	return true
}

// Reap 删除超过 maxAge 未更新的玩家，返回被删除的身份（有序）
func (s *Store) Reap(now time.Time, maxAge time.Duration) []PlayerID {
	var stale []PlayerID
	for id, p := range s.players {
		if now.Sub(p.LastUpdate) > maxAge {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	for _, id := range stale {
		delete(s.players, id)
	}
	return stale
}

// Snapshot 返回按身份排序的值拷贝，之后的修改不会反映到返回值上
func (s *Store) Snapshot() []protocol.PlayerState {
	out := make([]protocol.PlayerState, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get 返回玩家的值拷贝
func (s *Store) Get(id PlayerID) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (s *Store) Len() int { return len(s.players) }
