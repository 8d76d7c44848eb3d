// Package pose converts facial transformation matrices into head rotations.
//
// The face landmarker reports head pose as a 4x4 homogeneous matrix in
// column-major order. The avatar rig consumes Euler angles in XYZ order,
// the convention of the browser 3D engine Ready Player Me models target.
package pose

import (
	"errors"
	"fmt"
	"math"
)

// ErrMatrixSize is returned when a matrix array does not hold 16 values.
var ErrMatrixSize = errors.New("pose: matrix must have 16 elements")

// gimbalLimit is the |m13| value past which pitch is treated as ±90°.
const gimbalLimit = 0.9999999

// Matrix4 is a 4x4 matrix stored column-major, the landmarker's `data` layout.
// Element (row r, column c) lives at index c*4+r.
type Matrix4 [16]float64

// Identity returns the identity matrix.
func Identity() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// FromArray builds a matrix from a column-major slice.
func FromArray(data []float64) (Matrix4, error) {
	var m Matrix4
	if len(data) != len(m) {
		return m, fmt.Errorf("%w (got %d)", ErrMatrixSize, len(data))
	}
	copy(m[:], data)
	return m, nil
}

// At returns the element at row r, column c (zero-based).
func (m Matrix4) At(r, c int) float64 {
	return m[c*4+r]
}

// Translation returns the translation column in the matrix' units.
func (m Matrix4) Translation() (x, y, z float64) {
	return m[12], m[13], m[14]
}

// Euler is a rotation in radians about X (pitch), Y (yaw) and Z (roll),
// applied in XYZ order.
type Euler struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scale divides every component by divisor.
// Division rather than multiplication by a reciprocal keeps x/2 and x/3 exact.
func (e Euler) Scale(divisor float64) Euler {
	return Euler{X: e.X / divisor, Y: e.Y / divisor, Z: e.Z / divisor}
}

// IsZero reports whether all components are zero.
func (e Euler) IsZero() bool {
	return e.X == 0 && e.Y == 0 && e.Z == 0
}

// Degrees returns the components converted to degrees for logging.
func (e Euler) Degrees() (x, y, z float64) {
	return e.X * 180 / math.Pi, e.Y * 180 / math.Pi, e.Z * 180 / math.Pi
}

// EulerFromMatrix extracts XYZ-order Euler angles from the upper 3x3 of m.
// The upper 3x3 is assumed to be a pure (unscaled) rotation.
func EulerFromMatrix(m Matrix4) Euler {
	m11, m12, m13 := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	m22, m23 := m.At(1, 1), m.At(1, 2)
	m32, m33 := m.At(2, 1), m.At(2, 2)

	var e Euler
	e.Y = math.Asin(clamp(m13, -1, 1))

	if math.Abs(m13) < gimbalLimit {
		e.X = math.Atan2(-m23, m33)
		e.Z = math.Atan2(-m12, m11)
	} else {
		// Gimbal lock: roll folds into pitch.
		e.X = math.Atan2(m32, m22)
		e.Z = 0
	}
	return e
}

// MatrixFromEuler builds a rotation matrix from XYZ-order Euler angles.
// It is the inverse of EulerFromMatrix away from gimbal lock.
func MatrixFromEuler(e Euler) Matrix4 {
	a, b := math.Cos(e.X), math.Sin(e.X)
	c, d := math.Cos(e.Y), math.Sin(e.Y)
	f, g := math.Cos(e.Z), math.Sin(e.Z)

	ae, af, be, bf := a*f, a*g, b*f, b*g

	var m Matrix4
	set := func(r, col int, v float64) { m[col*4+r] = v }

	set(0, 0, c*f)
	set(0, 1, -c*g)
	set(0, 2, d)
	set(1, 0, af+be*d)
	set(1, 1, ae-bf*d)
	set(1, 2, -b*c)
	set(2, 0, bf-ae*d)
	set(2, 1, be+af*d)
	set(2, 2, a*c)
	set(3, 3, 1)
	return m
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// MatrixFromQuaternion builds a rotation matrix from a unit quaternion (x, y, z, w),
// the rotation encoding of glTF nodes.
func MatrixFromQuaternion(x, y, z, w float64) Matrix4 {
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	var m Matrix4
	m[0] = 1 - (yy + zz)
	m[1] = xy + wz
	m[2] = xz - wy
	m[4] = xy - wz
	m[5] = 1 - (xx + zz)
	m[6] = yz + wx
	m[8] = xz + wy
	m[9] = yz - wx
	m[10] = 1 - (xx + yy)
	m[15] = 1
	return m
}
