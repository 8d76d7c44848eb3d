package scene

import "github.com/teslashibe/go-avatar/pkg/pose"

// State is a copy of the drawable parts of a scene at one instant.
// Renderers that hand frames to another goroutine capture a State first.
type State struct {
	Bones  map[string]pose.Euler `json:"bones"`
	Morphs map[string][]float64  `json:"morphs"`
	Camera Camera                `json:"camera"`
}

// Capture copies bone rotations and morph influences out of s.
// Tracked nodes are always included; other nodes only when rotated.
func Capture(s *Scene) State {
	st := State{
		Bones:  make(map[string]pose.Euler),
		Morphs: make(map[string][]float64),
	}
	if s == nil {
		return st
	}
	st.Camera = s.Camera

	s.Root.Traverse(func(n *Node) {
		_, tracked := s.tracked[n]
		if tracked || !n.Rotation.IsZero() {
			st.Bones[n.Name] = n.Rotation
		}
		if n.Mesh != nil && len(n.Mesh.MorphTargetInfluences) > 0 {
			inf := make([]float64, len(n.Mesh.MorphTargetInfluences))
			copy(inf, n.Mesh.MorphTargetInfluences)
			st.Morphs[n.Name] = inf
		}
	})
	return st
}
