package scene

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/qmuntal/gltf"

	"github.com/teslashibe/go-avatar/pkg/pose"
)

var (
	// ErrEmptyModel is returned when a model has no nodes to load.
	ErrEmptyModel = errors.New("scene: model has no nodes")

	// ErrNodeCycle is returned when a model's node hierarchy is not a tree.
	ErrNodeCycle = errors.New("scene: node hierarchy contains a cycle")
)

// LoadGLB reads a glTF/GLB avatar and returns its root node.
// Ready Player Me models must be requested with ARKit morph targets
// (`?morphTargets=ARKit`) for blend shapes to bind.
func LoadGLB(path string) (*Node, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", path, err)
	}
	root, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return root, nil
}

// FromDocument converts a parsed glTF document into a scene node tree.
func FromDocument(doc *gltf.Document) (*Node, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, ErrEmptyModel
	}

	l := &docLoader{doc: doc, visiting: make(map[int]bool)}

	root := &Node{Name: "AvatarRoot"}
	for _, idx := range sceneRoots(doc) {
		n, err := l.node(idx)
		if err != nil {
			return nil, err
		}
		root.Add(n)
	}
	if len(root.Children) == 0 {
		return nil, ErrEmptyModel
	}
	return root, nil
}

type docLoader struct {
	doc      *gltf.Document
	visiting map[int]bool
}

func (l *docLoader) node(idx int) (*Node, error) {
	if idx < 0 || idx >= len(l.doc.Nodes) {
		return nil, fmt.Errorf("scene: node index %d out of range", idx)
	}
	if l.visiting[idx] {
		return nil, ErrNodeCycle
	}
	l.visiting[idx] = true
	defer delete(l.visiting, idx)

	src := l.doc.Nodes[idx]
	q := src.RotationOrDefault()
	t := src.TranslationOrDefault()

	n := &Node{
		Name:     src.Name,
		Position: Vector3{X: t[0], Y: t[1], Z: t[2]},
		Rotation: pose.EulerFromMatrix(pose.MatrixFromQuaternion(q[0], q[1], q[2], q[3])),
	}
	if n.Name == "" {
		n.Name = "node_" + strconv.Itoa(idx)
	}

	if src.Mesh != nil {
		mi := *src.Mesh
		if mi >= 0 && mi < len(l.doc.Meshes) {
			n.Mesh = meshFrom(l.doc.Meshes[mi], n.Name)
		}
	}

	for _, ci := range src.Children {
		c, err := l.node(ci)
		if err != nil {
			return nil, err
		}
		n.Add(c)
	}
	return n, nil
}

// sceneRoots returns the root node indices of the default scene.
// Documents without scenes fall back to every node that is nobody's child.
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		si := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			si = *doc.Scene
		}
		return doc.Scenes[si].Nodes
	}

	isChild := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func meshFrom(m *gltf.Mesh, nodeName string) *Mesh {
	count := len(m.Weights)
	for _, p := range m.Primitives {
		if len(p.Targets) > count {
			count = len(p.Targets)
		}
	}

	names := targetNames(m.Extras, count)
	mesh := NewMesh(nodeName, names)
	copy(mesh.MorphTargetInfluences, m.Weights)
	return mesh
}

// targetNames reads the `extras.targetNames` convention used by Ready Player Me
// and most exporters. Missing names fall back to the slot index.
func targetNames(extras any, count int) []string {
	names := make([]string, count)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}

	ex, ok := extras.(map[string]any)
	if !ok {
		return names
	}
	list, ok := ex["targetNames"].([]any)
	if !ok {
		return names
	}
	for i, v := range list {
		if i >= count {
			break
		}
		if s, ok := v.(string); ok && s != "" {
			names[i] = s
		}
	}
	return names
}
