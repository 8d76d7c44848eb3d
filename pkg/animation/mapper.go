// Package animation writes the latest tracking signal onto a bound avatar.
package animation

import (
	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/rig"
	"github.com/teslashibe/go-avatar/pkg/signal"
)

// Rotation divisors applied down the spine. The head takes the full rotation,
// the bones below it a shrinking share.
const (
	HeadDivisor  = 1.0
	NeckDivisor  = 2.0
	SpineDivisor = 3.0
)

// Policy controls which blend shapes are exaggerated and by how much.
type Policy struct {
	// Factor multiplies qualifying scores.
	Factor float64

	// Lower and Upper bound the exclusive band a score must fall in.
	Lower float64
	Upper float64

	// Mouth is the category set the policy applies to.
	Mouth map[expression.Category]bool
}

// Default policy values.
const (
	DefaultFactor = 1.5
	DefaultLower  = 0.25
	DefaultUpper  = 0.6
)

// DefaultPolicy exaggerates mid-range mouth shapes by 1.5x.
func DefaultPolicy() Policy {
	return Policy{
		Factor: DefaultFactor,
		Lower:  DefaultLower,
		Upper:  DefaultUpper,
		Mouth:  MouthSet(expression.MouthCategories()),
	}
}

// MouthSet builds a membership set from categories.
func MouthSet(cats []expression.Category) map[expression.Category]bool {
	m := make(map[expression.Category]bool, len(cats))
	for _, c := range cats {
		m[c] = true
	}
	return m
}

// Weight returns the influence to write for e.
func (p Policy) Weight(e expression.Entry) (float64, bool) {
	s := e.Score
	if p.Mouth[e.Category] && s > p.Lower && s < p.Upper {
		return s * p.Factor, true
	}
	return s, false
}

// Result summarises one Apply call.
type Result struct {
	Bones       int `json:"bones"`
	Applied     int `json:"applied"`
	Skipped     int `json:"skipped"`
	Exaggerated int `json:"exaggerated"`
}

// Mapper applies signal snapshots to a binding.
type Mapper struct {
	policy Policy
}

// New creates a mapper with the given policy.
func New(policy Policy) *Mapper {
	return &Mapper{policy: policy}
}

// Policy returns the mapper's policy.
func (m *Mapper) Policy() Policy {
	return m.policy
}

// Apply writes snap onto b. Without a snapshot (ok false) or binding it does
// nothing. Influences are overwritten, so applying the same snapshot twice
// leaves the model unchanged.
func (m *Mapper) Apply(b *rig.Binding, snap signal.Snapshot, ok bool) Result {
	var res Result
	if !ok || b == nil {
		return res
	}

	divisors := [...]struct {
		bone rig.Bone
		div  float64
	}{
		{rig.Head, HeadDivisor},
		{rig.Neck, NeckDivisor},
		{rig.Spine1, SpineDivisor},
	}
	for _, d := range divisors {
		if n := b.Bone(d.bone); n != nil {
			n.Rotation = snap.Pose.Scale(d.div)
			res.Bones++
		}
	}

	mesh := b.Mesh()
	for _, e := range snap.Expressions {
		idx, found := b.MorphIndex(e)
		if !found || mesh == nil || idx < 0 || idx >= len(mesh.MorphTargetInfluences) {
			res.Skipped++
			continue
		}
		w, boosted := m.policy.Weight(e)
		mesh.MorphTargetInfluences[idx] = w
		res.Applied++
		if boosted {
			res.Exaggerated++
		}
	}
	return res
}
