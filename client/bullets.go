package client

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"tankarena/protocol"
)

const (
	BulletSpeed     = 45.0
	BulletLifetime  = 12 * time.Second
	LocalHitRadius  = 3.8
	RemoteHitRadius = 3.6
	BulletDamage    = 12
)

// Bullet 客户端本地模拟的子弹
type Bullet struct {
	ID    string
	Owner string
	Pos   mgl64.Vec3
	Vel   mgl64.Vec3
	Born  time.Time
}

// Hit 一次命中；Damage 为 0 表示只是打在远端玩家上（仅视觉，不扣血）
type Hit struct {
	BulletID string
	Owner    string
	Target   string
	Damage   int
}

// BulletField 子弹集合：线性移动、超时消失、逐帧距离判定
type BulletField struct {
	mu      sync.Mutex
	bullets []Bullet
}

// Add 加入一颗子弹
func (f *BulletField) Add(b Bullet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bullets = append(f.bullets, b)
}

// AddRemote 加入服务端转发的子弹。born 为开火时刻（本地时钟），
// 位置按已飞行时间外推；已超过寿命的子弹（如加入时回放的旧子弹）直接丢弃。
func (f *BulletField) AddRemote(b protocol.Bullet, received, born time.Time) bool {
	age := received.Sub(born)
	if age < 0 {
		age, born = 0, received
	}
	if age > BulletLifetime {
		return false
	}
	vel := mgl64.Vec3{b.VX, b.VY, b.VZ}
	f.Add(Bullet{
		ID:    b.ID,
		Owner: b.Owner,
		Pos:   mgl64.Vec3{b.X, b.Y, b.Z}.Add(vel.Mul(age.Seconds())),
		Vel:   vel,
		Born:  born,
	})
	return true
}

// Step 推进所有子弹并做碰撞：命中本地玩家扣血，命中远端玩家只移除子弹
func (f *BulletField) Step(dt float64, now time.Time, local *Predictor, mirror *Mirror) []Hit {
	var remotes []protocol.PlayerState
	if mirror != nil {
		remotes = mirror.Entities()
	}
	var localID string
	var localPos mgl64.Vec3
	if local != nil {
		localID = local.ID()
		localPos = local.Position()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var hits []Hit
	kept := f.bullets[:0]
	for _, b := range f.bullets {
		b.Pos = b.Pos.Add(b.Vel.Mul(dt))
		if now.Sub(b.Born) > BulletLifetime {
			continue
		}
		if local != nil && b.Owner != localID && b.Pos.Sub(localPos).Len() < LocalHitRadius {
			local.Damage(BulletDamage)
			hits = append(hits, Hit{BulletID: b.ID, Owner: b.Owner, Target: localID, Damage: BulletDamage})
			continue
		}
		if target, ok := hitRemote(b, remotes); ok {
			hits = append(hits, Hit{BulletID: b.ID, Owner: b.Owner, Target: target})
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(f.bullets); i++ {
		f.bullets[i] = Bullet{}
	}
	f.bullets = kept
	return hits
}

func hitRemote(b Bullet, remotes []protocol.PlayerState) (string, bool) {
	for _, rp := range remotes {
		if rp.ID == b.Owner {
			continue
		}
		if b.Pos.Sub(mgl64.Vec3{rp.X, rp.Y, rp.Z}).Len() < RemoteHitRadius {
			return rp.ID, true
		}
	}
	return "", false
}

// Bullets 当前子弹的拷贝
func (f *BulletField) Bullets() []Bullet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Bullet(nil), f.bullets...)
}

func (f *BulletField) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bullets)
}
