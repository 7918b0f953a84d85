package client

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestPredictorThrottleMovesAlongLocalMinusZ(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{})
	p.Step(Input{Throttle: 1}, 0.05)

	pos := p.Position()
	assert.InDelta(t, 0, pos.X(), eps)
	assert.InDelta(t, -0.6, pos.Z(), eps)

	p.Step(Input{Throttle: -1}, 0.05)
	assert.InDelta(t, 0, p.Position().Z(), eps)
}

func TestPredictorTurnChangesHeading(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{})
	p.Step(Input{Turn: 1}, 0.05)
	assert.InDelta(t, 0.11, p.Heading(), eps)
	assert.Equal(t, mgl64.Vec3{}, p.Position(), "turning in place does not move")

	p.Step(Input{Turn: -1}, 0.05)
	assert.InDelta(t, 0, p.Heading(), eps)
}

func TestPredictorMovesAlongHeading(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{})
	p.rotY = math.Pi / 2
	p.Step(Input{Throttle: 1}, 0.05)

	pos := p.Position()
	assert.InDelta(t, -0.6, pos.X(), eps)
	assert.InDelta(t, 0, pos.Z(), eps)
}

func TestPredictorClampsFrameDtAndInput(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{10, 0, 10})
	p.Step(Input{Throttle: 5}, 2.0)
	assert.InDelta(t, 9.4, p.Position().Z(), eps)

	p.Step(Input{Throttle: 1}, 0)
	p.Step(Input{Throttle: 1}, -1)
	assert.InDelta(t, 9.4, p.Position().Z(), eps)
}

func TestPredictorMuzzle(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{1, 0, 2})
	origin, dir := p.Muzzle()
	assert.True(t, origin.ApproxEqual(mgl64.Vec3{1, 3, 5.2}), "origin %v", origin)
	assert.True(t, dir.ApproxEqual(mgl64.Vec3{0, 0, 1}), "dir %v", dir)

	p.rotY = math.Pi
	origin, dir = p.Muzzle()
	assert.True(t, origin.ApproxEqualThreshold(mgl64.Vec3{1, 3, -1.2}, 1e-9), "origin %v", origin)
	assert.True(t, dir.ApproxEqualThreshold(mgl64.Vec3{0, 0, -1}, 1e-9), "dir %v", dir)
}

func TestPredictorStateAndDamage(t *testing.T) {
	p := NewPredictor("me", mgl64.Vec3{1, 2, 3})
	assert.Equal(t, PlayerState{ID: "me", X: 1, Y: 2, Z: 3, HP: StartHP}, p.State())

	for i := 0; i < 9; i++ {
		p.Damage(BulletDamage)
	}
	assert.Equal(t, -8, p.HP(), "health has no floor")
	assert.Equal(t, -8, p.State().HP)
}
