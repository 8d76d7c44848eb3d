package animation

import (
	"math"
	"testing"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/pose"
	"github.com/teslashibe/go-avatar/pkg/rig"
	"github.com/teslashibe/go-avatar/pkg/scene"
	"github.com/teslashibe/go-avatar/pkg/signal"
)

// fixture builds a rig with the standard bones and the given morph targets.
func fixture(morphs ...string) (scene.Graph, *rig.Binding) {
	head := &scene.Node{Name: "Head"}
	neck := &scene.Node{Name: "Neck", Children: []*scene.Node{head}}
	spine := &scene.Node{Name: "Spine1", Children: []*scene.Node{neck}}
	face := &scene.Node{Name: "Wolf3D_Avatar", Mesh: scene.NewMesh("Wolf3D_Avatar", morphs)}
	g := scene.BuildGraph(&scene.Node{Name: "Armature", Children: []*scene.Node{spine, face}})
	b, _ := rig.Bind(g, rig.DefaultOptions())
	return g, b
}

func snapshot(p pose.Euler, raw ...expression.RawEntry) signal.Snapshot {
	return signal.Snapshot{Pose: p, Expressions: expression.New(raw), Seq: 1}
}

func influence(g scene.Graph, morph string) float64 {
	m := g["Wolf3D_Avatar"].Mesh
	return m.MorphTargetInfluences[m.MorphTargetDictionary[morph]]
}

func TestApply_HeadPropagation(t *testing.T) {
	g, b := fixture()
	m := New(DefaultPolicy())

	p := pose.Euler{X: 0.3, Y: -0.6, Z: 0.09}
	res := m.Apply(b, snapshot(p), true)

	if res.Bones != 3 {
		t.Errorf("Bones = %d, want 3", res.Bones)
	}
	if g["Head"].Rotation != p {
		t.Errorf("head = %+v, want %+v", g["Head"].Rotation, p)
	}
	wantNeck := pose.Euler{X: 0.3 / 2, Y: -0.6 / 2, Z: 0.09 / 2}
	if g["Neck"].Rotation != wantNeck {
		t.Errorf("neck = %+v, want %+v", g["Neck"].Rotation, wantNeck)
	}
	wantSpine := pose.Euler{X: 0.3 / 3, Y: -0.6 / 3, Z: 0.09 / 3}
	if g["Spine1"].Rotation != wantSpine {
		t.Errorf("spine = %+v, want %+v", g["Spine1"].Rotation, wantSpine)
	}
}

func TestApply_ZeroPose(t *testing.T) {
	g, b := fixture()
	g["Head"].Rotation = pose.Euler{X: 1}

	New(DefaultPolicy()).Apply(b, snapshot(pose.Euler{}), true)

	for _, name := range []string{"Head", "Neck", "Spine1"} {
		if !g[name].Rotation.IsZero() {
			t.Errorf("%s should be zeroed, got %+v", name, g[name].Rotation)
		}
	}
}

func TestApply_Exaggeration(t *testing.T) {
	tests := []struct {
		name  string
		morph string
		score float64
		want  float64
	}{
		{"mouth in band", "jawOpen", 0.4, 0.6},
		{"mouth at lower bound", "jawOpen", 0.25, 0.25},
		{"mouth at upper bound", "jawOpen", 0.6, 0.6},
		{"mouth below band", "mouthSmileLeft", 0.1, 0.1},
		{"mouth above band", "mouthPucker", 0.9, 0.9},
		{"mouth just inside", "mouthShrugLower", 0.26, 0.26 * 1.5},
		{"non-mouth in band", "eyeBlinkLeft", 0.5, 0.5},
		{"brow in band", "browInnerUp", 0.3, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, b := fixture(tt.morph)
			New(DefaultPolicy()).Apply(b, snapshot(pose.Euler{}, expression.RawEntry{Name: tt.morph, Score: tt.score}), true)

			if got := influence(g, tt.morph); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("influence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_UnmappedSkipped(t *testing.T) {
	g, b := fixture("jawOpen")
	res := New(DefaultPolicy()).Apply(b, snapshot(pose.Euler{},
		expression.RawEntry{Name: "jawOpen", Score: 0.1},
		expression.RawEntry{Name: "cheekPuff", Score: 0.8},
		expression.RawEntry{Name: "notARealShape", Score: 0.8},
	), true)

	if res.Applied != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v, want 1 applied, 2 skipped", res)
	}
	if influence(g, "jawOpen") != 0.1 {
		t.Errorf("jawOpen = %v", influence(g, "jawOpen"))
	}
}

func TestApply_Idempotent(t *testing.T) {
	g, b := fixture("jawOpen", "mouthSmileRight")
	m := New(DefaultPolicy())
	snap := snapshot(pose.Euler{Y: 0.2},
		expression.RawEntry{Name: "jawOpen", Score: 0.5},
		expression.RawEntry{Name: "mouthSmileRight", Score: 0.9},
	)

	m.Apply(b, snap, true)
	first := scene.Capture(&scene.Scene{Root: g["Armature"]})
	m.Apply(b, snap, true)
	second := scene.Capture(&scene.Scene{Root: g["Armature"]})

	if first.Bones["Neck"] != second.Bones["Neck"] {
		t.Error("bone rotation drifted between applies")
	}
	for i, v := range first.Morphs["Wolf3D_Avatar"] {
		if second.Morphs["Wolf3D_Avatar"][i] != v {
			t.Errorf("morph %d accumulated: %v then %v", i, v, second.Morphs["Wolf3D_Avatar"][i])
		}
	}
}

func TestApply_NoSignal(t *testing.T) {
	g, b := fixture("jawOpen")
	g["Head"].Rotation = pose.Euler{Z: 0.4}
	g["Wolf3D_Avatar"].Mesh.MorphTargetInfluences[0] = 0.3

	res := New(DefaultPolicy()).Apply(b, signal.Snapshot{}, false)

	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
	if g["Head"].Rotation.Z != 0.4 || influence(g, "jawOpen") != 0.3 {
		t.Error("no-signal apply must leave the model untouched")
	}
}

func TestApply_NilBinding(t *testing.T) {
	res := New(DefaultPolicy()).Apply(nil, snapshot(pose.Euler{X: 1}), true)
	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestApply_MissingBones(t *testing.T) {
	face := &scene.Node{Name: "Wolf3D_Avatar", Mesh: scene.NewMesh("Wolf3D_Avatar", []string{"jawOpen"})}
	g := scene.BuildGraph(&scene.Node{Name: "Root", Children: []*scene.Node{face}})
	b, _ := rig.Bind(g, rig.DefaultOptions())

	res := New(DefaultPolicy()).Apply(b, snapshot(pose.Euler{X: 0.5}, expression.RawEntry{Name: "jawOpen", Score: 0.7}), true)
	if res.Bones != 0 || res.Applied != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestPolicy_Custom(t *testing.T) {
	p := Policy{
		Factor: 2,
		Lower:  0,
		Upper:  1,
		Mouth:  MouthSet([]expression.Category{expression.EyeBlinkLeft}),
	}
	w, boosted := p.Weight(expression.Entry{Category: expression.EyeBlinkLeft, Score: 0.3})
	if !boosted || w != 0.6 {
		t.Errorf("Weight = %v, %v", w, boosted)
	}
	w, boosted = p.Weight(expression.Entry{Category: expression.JawOpen, Score: 0.3})
	if boosted || w != 0.3 {
		t.Errorf("Weight = %v, %v", w, boosted)
	}
}
