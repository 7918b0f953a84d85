package client

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"tankarena/protocol"
)

const (
	MoveSpeed  = 12.0 // 单位/秒
	TurnSpeed  = 2.2  // 弧度/秒
	MaxFrameDt = 0.05 // 单帧最长 50ms，防止切后台回来瞬移
	StartHP    = 100
)

var (
	// 炮口相对车体的偏移与朝向（本地坐标，炮管指向 +Z）
	muzzleOffset = mgl64.Vec3{0, 3.0, 3.2}
	barrelAxis   = mgl64.Vec3{0, 0, 1}
)

// Input 一帧的输入。Throttle>0 对应 W 键，沿本地 -Z 前进；Turn>0 对应 A 键，左转。
type Input struct {
	Throttle float64
	Turn     float64
}

// Predictor 本地玩家预测：输入立即生效，不等服务器，也不与服务器回显对账
type Predictor struct {
	mu   sync.Mutex
	id   string
	pos  mgl64.Vec3
	rotY float64
	hp   int
}

func NewPredictor(id string, spawn mgl64.Vec3) *Predictor {
	return &Predictor{id: id, pos: spawn, hp: StartHP}
}

// Step 按帧间隔推进本地玩家
func (p *Predictor) Step(in Input, dt float64) {
	if dt <= 0 {
		return
	}
	if dt > MaxFrameDt {
		dt = MaxFrameDt
	}
	throttle := clamp(in.Throttle, -1, 1)
	turn := clamp(in.Turn, -1, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotY += turn * TurnSpeed * dt
	if throttle != 0 {
		p.pos = p.pos.Add(p.axisLocked(barrelAxis).Mul(-throttle * MoveSpeed * dt))
	}
}

// axisLocked 将本地向量按当前朝向旋转到世界坐标
func (p *Predictor) axisLocked(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Rotate3DY(p.rotY).Mul3x1(v)
}

// Muzzle 炮口世界坐标与单位射击方向
func (p *Predictor) Muzzle() (origin, dir mgl64.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos.Add(p.axisLocked(muzzleOffset)), p.axisLocked(barrelAxis).Normalize()
}

// State 当前完整状态（用于上行 update）
func (p *Predictor) State() protocol.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.PlayerState{
		ID:   p.id,
		X:    p.pos.X(),
		Y:    p.pos.Y(),
		Z:    p.pos.Z(),
		RotY: p.rotY,
		HP:   p.hp,
	}
}

func (p *Predictor) Position() mgl64.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Predictor) Heading() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotY
}

// Damage 扣血并返回剩余血量（不设下限）
func (p *Predictor) Damage(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hp -= n
	return p.hp
}

func (p *Predictor) HP() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hp
}

func (p *Predictor) ID() string { return p.id }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
