// Package scene holds the in-memory avatar scene graph: named nodes with
// mutable rotations, meshes with morph-target influences, and the preview camera.
//
// The graph is mutated and drawn from the render goroutine only.
package scene

import (
	"math"

	"github.com/teslashibe/go-avatar/pkg/pose"
)

// Avatar placement relative to the preview camera (Ready Player Me half-body framing).
const (
	AvatarOffsetY = -1.65
	AvatarOffsetZ = 1.0
)

// Vector3 is a position in scene units.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Mesh is a deformable mesh with named morph targets.
type Mesh struct {
	Name string

	// MorphTargetDictionary maps morph target names to influence slots.
	MorphTargetDictionary map[string]int

	// MorphTargetInfluences holds the per-frame weight of each morph target.
	MorphTargetInfluences []float64
}

// NewMesh creates a mesh whose morph targets are named in slot order.
func NewMesh(name string, targets []string) *Mesh {
	dict := make(map[string]int, len(targets))
	for i, t := range targets {
		if t == "" {
			continue
		}
		if _, dup := dict[t]; !dup {
			dict[t] = i
		}
	}
	return &Mesh{
		Name:                  name,
		MorphTargetDictionary: dict,
		MorphTargetInfluences: make([]float64, len(targets)),
	}
}

// Node is a transform in the scene graph. Bones are nodes.
type Node struct {
	Name     string
	Position Vector3
	Rotation pose.Euler
	Children []*Node
	Mesh     *Mesh
}

// Add appends children to n.
func (n *Node) Add(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Traverse calls fn for n and every descendant, depth first.
func (n *Node) Traverse(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Traverse(fn)
	}
}

// Graph indexes a model's nodes by name.
type Graph map[string]*Node

// BuildGraph walks root and indexes every node by name.
// When names repeat, the node visited last wins.
func BuildGraph(root *Node) Graph {
	g := make(Graph)
	root.Traverse(func(n *Node) {
		g[n.Name] = n
	})
	return g
}

// Camera is the preview perspective camera.
type Camera struct {
	FOV      float64 `json:"fov"` // vertical, degrees
	Aspect   float64 `json:"aspect"`
	Near     float64 `json:"near"`
	Far      float64 `json:"far"`
	Position Vector3 `json:"position"`
}

// DefaultCamera returns the preview camera for a viewport of width x height.
func DefaultCamera(width, height int) Camera {
	c := Camera{
		FOV:      25,
		Near:     0.1,
		Far:      1000,
		Position: Vector3{Z: 2},
	}
	c.Resize(width, height)
	return c
}

// Resize updates the aspect ratio for a new viewport size.
// Degenerate sizes leave the aspect unchanged.
func (c *Camera) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		if c.Aspect == 0 {
			c.Aspect = 1
		}
		return
	}
	c.Aspect = float64(width) / float64(height)
}

// HorizontalFOV returns the horizontal field of view in degrees.
func (c Camera) HorizontalFOV() float64 {
	v := c.FOV * math.Pi / 180
	h := 2 * math.Atan(math.Tan(v/2)*c.Aspect)
	return h * 180 / math.Pi
}

// Scene is the root of everything the render driver draws.
type Scene struct {
	Root   *Node
	Avatar *Node
	Camera Camera

	tracked map[*Node]struct{}
}

// Track marks nodes the animation drives. Captures always include their
// rotation, even when it is exactly zero.
func (s *Scene) Track(nodes ...*Node) {
	if s.tracked == nil {
		s.tracked = make(map[*Node]struct{}, len(nodes))
	}
	for _, n := range nodes {
		if n != nil {
			s.tracked[n] = struct{}{}
		}
	}
}

// New creates a scene with the preview camera and an empty root.
func New(width, height int) *Scene {
	return &Scene{
		Root:   &Node{Name: "Scene"},
		Camera: DefaultCamera(width, height),
	}
}

// SetAvatar places the avatar in front of the camera and adds it to the root.
// A previously set avatar is replaced.
func (s *Scene) SetAvatar(avatar *Node) {
	if s.Avatar != nil {
		kept := s.Root.Children[:0]
		for _, c := range s.Root.Children {
			if c != s.Avatar {
				kept = append(kept, c)
			}
		}
		s.Root.Children = kept
	}
	avatar.Position.Y = AvatarOffsetY
	avatar.Position.Z = AvatarOffsetZ
	s.Avatar = avatar
	s.Root.Add(avatar)
}

// Graph indexes the avatar's nodes by name. Empty until an avatar is set.
func (s *Scene) Graph() Graph {
	if s.Avatar == nil {
		return Graph{}
	}
	return BuildGraph(s.Avatar)
}
