// Package rig binds tracked head pose and blend shape categories to the
// bones and morph targets of a loaded avatar.
//
// A Binding is built once when the model finishes loading. The mapping it
// holds never changes afterwards; the bone and mesh handles it points at are
// mutated every frame by the animation mapper.
package rig

import (
	"sort"

	"github.com/teslashibe/go-avatar/pkg/expression"
	"github.com/teslashibe/go-avatar/pkg/scene"
)

// Bone identifies a semantic bone driven by head pose.
type Bone int

const (
	Head Bone = iota
	Neck
	Spine1

	numBones
)

// String returns the default node name for b.
func (b Bone) String() string {
	switch b {
	case Head:
		return "Head"
	case Neck:
		return "Neck"
	case Spine1:
		return "Spine1"
	default:
		return "unknown"
	}
}

// Bones returns every semantic bone, head first.
func Bones() []Bone {
	return []Bone{Head, Neck, Spine1}
}

// DefaultFaceMesh is the Ready Player Me node carrying ARKit morph targets.
const DefaultFaceMesh = "Wolf3D_Avatar"

// Options names the nodes to bind.
type Options struct {
	// BoneNames overrides the node name per bone. Missing keys use Bone.String().
	BoneNames map[Bone]string

	// FaceMesh is the node whose mesh receives blend shapes.
	FaceMesh string
}

// DefaultOptions binds Ready Player Me node names.
func DefaultOptions() Options {
	return Options{FaceMesh: DefaultFaceMesh}
}

func (o Options) boneName(b Bone) string {
	if n, ok := o.BoneNames[b]; ok && n != "" {
		return n
	}
	return b.String()
}

// Binding maps semantic bones and expression categories onto a model.
type Binding struct {
	bones [numBones]*scene.Node
	mesh  *scene.Mesh

	// morph[c] is the influence slot for category c, or -1.
	morph [expression.Count]int

	// extra routes morph targets the category enum does not know.
	extra map[string]int
}

// Report describes what Bind could and could not find.
type Report struct {
	MissingBones []string `json:"missing_bones,omitempty"`
	MissingMesh  string   `json:"missing_mesh,omitempty"`
	Bound        []string `json:"bound,omitempty"`
	Unbound      []string `json:"unbound,omitempty"`
	Extra        []string `json:"extra,omitempty"`
}

// Complete reports whether every bone, the mesh and every category were bound.
func (r Report) Complete() bool {
	return len(r.MissingBones) == 0 && r.MissingMesh == "" && len(r.Unbound) == 0
}

// Bind looks up bones and morph targets by name. It never fails: absent
// pieces are listed in the report and the mapper skips them.
func Bind(g scene.Graph, opts Options) (*Binding, Report) {
	if opts.FaceMesh == "" {
		opts.FaceMesh = DefaultFaceMesh
	}

	b := &Binding{extra: make(map[string]int)}
	for i := range b.morph {
		b.morph[i] = -1
	}

	var rep Report
	for _, bone := range Bones() {
		name := opts.boneName(bone)
		if n := g[name]; n != nil {
			b.bones[bone] = n
		} else {
			rep.MissingBones = append(rep.MissingBones, name)
		}
	}

	node := g[opts.FaceMesh]
	if node == nil || node.Mesh == nil {
		rep.MissingMesh = opts.FaceMesh
		for _, c := range expression.All() {
			rep.Unbound = append(rep.Unbound, c.String())
		}
		return b, rep
	}
	b.mesh = node.Mesh

	for name, idx := range node.Mesh.MorphTargetDictionary {
		if idx < 0 || idx >= len(node.Mesh.MorphTargetInfluences) {
			continue
		}
		if c, ok := expression.ParseCategory(name); ok {
			b.morph[c] = idx
		} else {
			b.extra[name] = idx
			rep.Extra = append(rep.Extra, name)
		}
	}

	for _, c := range expression.All() {
		if b.morph[c] >= 0 {
			rep.Bound = append(rep.Bound, c.String())
		} else {
			rep.Unbound = append(rep.Unbound, c.String())
		}
	}
	sort.Strings(rep.Extra)
	return b, rep
}

// Bone returns the node bound to bone, or nil.
func (b *Binding) Bone(bone Bone) *scene.Node {
	if b == nil || bone < 0 || bone >= numBones {
		return nil
	}
	return b.bones[bone]
}

// Mesh returns the bound face mesh, or nil.
func (b *Binding) Mesh() *scene.Mesh {
	if b == nil {
		return nil
	}
	return b.mesh
}

// MorphIndex returns the influence slot for e.
// Known categories resolve through the enum table; anything else falls back
// to the morph target name.
func (b *Binding) MorphIndex(e expression.Entry) (int, bool) {
	if b == nil || b.mesh == nil {
		return 0, false
	}
	if e.Category.Valid() {
		idx := b.morph[e.Category]
		return idx, idx >= 0
	}
	idx, ok := b.extra[e.Name]
	return idx, ok
}
