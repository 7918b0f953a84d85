package main

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"

	"tankarena/client"
)

func TestNormalizeAngle(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, -math.Pi},
		{math.Pi + 0.1, -math.Pi + 0.1},
		{-math.Pi - 0.1, math.Pi - 0.1},
		{3*math.Pi - 0.2, math.Pi - 0.2},
		{-5*math.Pi/2 - 0.5, -math.Pi/2 - 0.5},
		{4*math.Pi + 1, 1},
	}
	for _, c := range cases {
		got := normalizeAngle(c.in)
		assert.InDelta(t, c.want, got, 1e-9, "normalizeAngle(%v)", c.in)
		assert.LessOrEqual(t, math.Abs(got), math.Pi+1e-12)
	}
}

func TestNearestEmptyMirror(t *testing.T) {
	_, dist, ok := nearest(mgl64.Vec3{1, 2, 3}, nil)
	assert.False(t, ok)
	assert.True(t, math.IsInf(dist, 1))
}

func TestNearestPicksClosest(t *testing.T) {
	players := []client.PlayerState{
		{ID: "far", X: 30},
		{ID: "near", X: 3, Z: 4},
		{ID: "mid", Z: -10},
	}
	at, dist, ok := nearest(mgl64.Vec3{}, players)
	assert.True(t, ok)
	assert.InDelta(t, 5, dist, 1e-9)
	assert.Equal(t, mgl64.Vec3{3, 0, 4}, at)
}

func TestBrainHoldsDecisionBetweenThinks(t *testing.T) {
	now := time.Now()
	want := client.Input{Throttle: -1, Turn: 1}
	b := &brain{fireProb: 1, next: now.Add(thinkEvery), input: want}

	// 决策间隔内不读取客户端状态，也不开火
	in, fire := b.think(nil, now.Add(thinkEvery/2))
	assert.Equal(t, want, in)
	assert.False(t, fire)
}
