// Package expression defines the typed blend shape categories reported by the
// face landmarker and the per-update weight snapshots built from them.
package expression

// Category identifies one tracked facial region.
// The set is fixed by the landmarker model (ARKit-compatible names).
type Category int

// Known categories, in the landmarker's output order.
const (
	Unknown Category = iota - 1
	Neutral
	BrowDownLeft
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight

	numCategories
)

// Count is the number of known categories.
const Count = int(numCategories)

var names = [Count]string{
	"_neutral",
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
}

var byName = func() map[string]Category {
	m := make(map[string]Category, Count)
	for i, n := range names {
		m[n] = Category(i)
	}
	return m
}()

// ParseCategory returns the category for a landmarker name.
// Unrecognised names return Unknown and false.
func ParseCategory(name string) (Category, bool) {
	c, ok := byName[name]
	if !ok {
		return Unknown, false
	}
	return c, true
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// String returns the landmarker's name for c.
func (c Category) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return names[c]
}

// All returns every known category in output order.
func All() []Category {
	out := make([]Category, Count)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// MouthCategories returns the default set whose mid-range scores are exaggerated.
func MouthCategories() []Category {
	return []Category{
		MouthSmileLeft,
		MouthSmileRight,
		MouthFrownLeft,
		MouthFrownRight,
		JawOpen,
		MouthPucker,
		MouthStretchLeft,
		MouthStretchRight,
		MouthShrugUpper,
		MouthShrugLower,
	}
}
