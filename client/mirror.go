package client

import (
	"sort"
	"sync"

	"tankarena/protocol"
)

// PlayerState 远端实体状态（与线上格式一致）
type PlayerState = protocol.PlayerState

// Hooks 远端实体的可视代理回调（渲染层实现）。回调在 Mirror 的锁内执行，不能回调 Mirror。
type Hooks interface {
	Create(p protocol.PlayerState)
	Update(p protocol.PlayerState)
	Destroy(id string)
}

// NopHooks 无渲染层时使用
type NopHooks struct{}

func (NopHooks) Create(protocol.PlayerState) {}
func (NopHooks) Update(protocol.PlayerState) {}
func (NopHooks) Destroy(string) {}

// HookFuncs 以函数形式提供 Hooks，未设置的回调忽略
type HookFuncs struct {
	OnCreate  func(p protocol.PlayerState)
	OnUpdate  func(p protocol.PlayerState)
	OnDestroy func(id string)
}

func (h HookFuncs) Create(p protocol.PlayerState) {
	if h.OnCreate != nil {
		h.OnCreate(p)
	}
}

func (h HookFuncs) Update(p protocol.PlayerState) {
	if h.OnUpdate != nil {
		h.OnUpdate(p)
	}
}

func (h HookFuncs) Destroy(id string) {
	if h.OnDestroy != nil {
		h.OnDestroy(id)
	}
}

// Diff 一次快照合并的结果（各列表按 id 排序）
type Diff struct {
	Created   []string
	Updated   []string
	Destroyed []string
}

// Mirror 远端实体的本地镜像。快照中缺席即视为删除；本地玩家永远不进入镜像。
// 更新直接覆盖字段，不做插值（10Hz 下会有跳变）。
type Mirror struct {
	mu      sync.Mutex
	localID string
	hooks   Hooks
	remote  map[string]protocol.PlayerState
}

func NewMirror(localID string, hooks Hooks) *Mirror {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Mirror{
		localID: localID,
		hooks:   hooks,
		remote:  make(map[string]protocol.PlayerState),
	}
}

// Apply 将快照合并进镜像：新增的创建代理，已有的覆盖，缺席的销毁
func (m *Mirror) Apply(players []protocol.PlayerState) Diff {
	m.mu.Lock()
	defer m.mu.Unlock()

	var d Diff
	present := make(map[string]struct{}, len(players))
	for _, p := range players {
		if p.ID == m.localID {
			continue
		}
		present[p.ID] = struct{}{}
		if _, ok := m.remote[p.ID]; !ok {
			m.remote[p.ID] = p
			m.hooks.Create(p)
			d.Created = append(d.Created, p.ID)
			continue
		}
		m.remote[p.ID] = p
		m.hooks.Update(p)
		d.Updated = append(d.Updated, p.ID)
	}
	for id := range m.remote {
		if _, ok := present[id]; !ok {
			delete(m.remote, id)
			m.hooks.Destroy(id)
			d.Destroyed = append(d.Destroyed, id)
		}
	}
	sort.Strings(d.Created)
	sort.Strings(d.Updated)
	sort.Strings(d.Destroyed)
	return d
}

// Entities 当前远端实体的值拷贝（按 id 排序）
func (m *Mirror) Entities() []protocol.PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]protocol.PlayerState, 0, len(m.remote))
	for _, p := range m.remote {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mirror) Get(id string) (protocol.PlayerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.remote[id]
	return p, ok
}

func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.remote)
}

func (m *Mirror) LocalID() string { return m.localID }
