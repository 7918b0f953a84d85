package server

import (
	"context"
	"sort"
	"sync"
)

// RoomInfo 房间列表项
type RoomInfo struct {
	ID      string `json:"room"`
	Players int64  `json:"players"`
}

// RoomManager 管理多个房间的生命周期。默认房间常驻，其余房间在最后一人离开后回收。
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[string]*managedRoom
	cfg         RoomConfig
	defaultRoom string
	ctx         context.Context
}

type managedRoom struct {
	room   *Room
	cancel context.CancelFunc
}

// NewRoomManager ctx 取消时所有房间随之退出
func NewRoomManager(ctx context.Context, cfg RoomConfig, defaultRoom string) *RoomManager {
	m := &RoomManager{
		rooms:       make(map[string]*managedRoom),
		cfg:         cfg,
		defaultRoom: defaultRoom,
		ctx:         ctx,
	}
	if defaultRoom != "" {
		m.GetOrCreateRoom(defaultRoom)
	}
	return m
}

// DefaultRoom 未指定 room 参数时使用的房间
func (m *RoomManager) DefaultRoom() string { return m.defaultRoom }

// GetOrCreateRoom 获取或创建房间，并确保主循环已启动
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.rooms[id]; ok {
		return mr.room
	}
	r := NewRoom(id, m.cfg)
	if id != m.defaultRoom {
		r.onEmpty = m.removeRoom
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.rooms[id] = &managedRoom{room: r, cancel: cancel}
	go r.Run(ctx)
	Log.Infof("room created: %s", id)
	return r
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	return mr.room, true
}

// removeRoom 由房间协程回调；只取消上下文，不等待协程退出
func (m *RoomManager) removeRoom(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.rooms[id]; ok {
		mr.cancel()
		delete(m.rooms, id)
		Log.Infof("room removed: %s", id)
	}
}

// ListRooms 返回所有房间及在线人数（按房间名排序）
func (m *RoomManager) ListRooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, mr := range m.rooms {
		out = append(out, RoomInfo{ID: id, Players: mr.room.metrics.PlayerCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// snapshotRooms 当前房间列表，供指标采集使用
func (m *RoomManager) snapshotRooms() []*Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, mr := range m.rooms {
		out = append(out, mr.room)
	}
	return out
}
