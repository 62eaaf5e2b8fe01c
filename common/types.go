// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "github.com/go-gl/mathgl/mgl32"

// IVec3 is an integer 3-component vector in x, y, z order, matching the WGSL vec3<i32> layout.
type IVec3 [3]int32

// Vec4 widens a Vec3 into a 4-component array with the given w, the padded layout WGSL uses for vec3 in uniforms.
//
// Parameters:
//   - v: the vector to widen
//   - w: the fourth component
//
// Returns:
//   - [4]float32: the padded vector
func Vec4(v mgl32.Vec3, w float32) [4]float32 {
	return [4]float32{v[0], v[1], v[2], w}
}

// IVec4 widens an IVec3 into a 4-component array with the given w.
//
// Parameters:
//   - v: the vector to widen
//   - w: the fourth component
//
// Returns:
//   - [4]int32: the padded vector
func IVec4(v IVec3, w int32) [4]int32 {
	return [4]int32{v[0], v[1], v[2], w}
}
