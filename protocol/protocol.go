package protocol

import "encoding/json"

// 消息类型（信封 type 字段）
const (
	TypeWelcome = "welcome"
	TypeState   = "state"
	TypeUpdate  = "update"
	TypeShoot   = "shoot"
	TypeBullet  = "bullet"
	TypePong    = "pong"
)

// Envelope 所有 WebSocket 文本帧的外层结构：{"type":"state","data":{...}}
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PlayerState 快照中的单个玩家（与客户端约定的字段名）
type PlayerState struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	RotY float64 `json:"rotY"`
	HP   int     `json:"hp"`
}

// State 服务端每个 Tick 下发的全量快照
type State struct {
	Players []PlayerState `json:"players"`
}

// Update 客户端上行的本地状态；字段缺省表示不覆盖
type Update struct {
	ID   string   `json:"id,omitempty"` // 仅供参考，服务端以连接身份为准
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
	Z    *float64 `json:"z,omitempty"`
	RotY *float64 `json:"rotY,omitempty"`
	HP   *int     `json:"hp,omitempty"`
}

// FullUpdate 用完整状态构造 Update（所有字段都会覆盖）
func FullUpdate(p PlayerState) Update {
	x, y, z, rot, hp := p.X, p.Y, p.Z, p.RotY, p.HP
	return Update{ID: p.ID, X: &x, Y: &y, Z: &z, RotY: &rot, HP: &hp}
}

// Shoot 客户端开火事件
type Shoot struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	VZ    float64 `json:"vz"`
	Owner string  `json:"owner,omitempty"`
}

// Bullet 服务端盖章（id + 时间戳）后转发的子弹
type Bullet struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	VZ    float64 `json:"vz"`
	Owner string  `json:"owner"`
	T     int64   `json:"t"` // unix ms
}

// Welcome 连接建立后第一条消息，告知客户端其身份、房间与服务端时间
type Welcome struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	TickMs     int64  `json:"tickMs"`
	ServerTime int64  `json:"t"` // unix ms
}
