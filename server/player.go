package server

import (
	"time"

	"tankarena/protocol"
)

// PlayerID 表示玩家唯一标识（每个连接一个，由客户端生成或服务端补发）
type PlayerID string

// Player 存储中的玩家实体：服务端只做转存，不做权威校验
type Player struct {
	ID   PlayerID
	X    float64
	Y    float64
	Z    float64
	RotY float64
	HP   int

	LastUpdate time.Time // 最近一次 update（或加入）时间，用于超时清理
}

// State 转为广播用的轻量状态
func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{
		ID:   string(p.ID),
		X:    p.X,
		Y:    p.Y,
		Z:    p.Z,
		RotY: p.RotY,
		HP:   p.HP,
	}
}

// apply 按字段覆盖；nil 字段保持原值
func (p *Player) apply(up protocol.Update) {
	if up.X != nil {
		p.X = *up.X
	}
	if up.Y != nil {
		p.Y = *up.Y
	}
	if up.Z != nil {
		p.Z = *up.Z
	}
	if up.RotY != nil {
		p.RotY = *up.RotY
	}
	if up.HP != nil {
		p.HP = *up.HP
	}
}
