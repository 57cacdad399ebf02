// Package variant implements a value whose type can change at runtime
// within a fixed tag set.
//
// String values come in two ownerships. SetString stores an owned copy
// in the variant's own buffer, released on Clear or overwrite.
// SetStringRef aliases the caller's bytes without copying; the caller
// must keep them alive and unmodified for as long as the variant holds
// the reference. Exactly one of the two is active at a time.
//
// Accessing a variant through the wrong-kind getter is a contract
// violation and panics.
package variant

// Kind identifies the concrete type currently stored in a Variant.
type Kind uint8

const (
	// Void is the kind after initialization or Clear: no payload.
	Void Kind = iota
	// VoidPtr holds an opaque address-sized value.
	VoidPtr
	// Bool holds a boolean.
	Bool
	// Sint32 holds a signed 32-bit integer.
	Sint32
	// Uint32 holds an unsigned 32-bit integer.
	Uint32
	// Float holds a 32-bit float.
	Float
	// Vec2 holds two 32-bit floats.
	Vec2
	// Vec3 holds three 32-bit floats.
	Vec3
	// String holds an owned or borrowed byte string.
	String
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case VoidPtr:
		return "voidptr"
	case Bool:
		return "bool"
	case Sint32:
		return "sint32"
	case Uint32:
		return "uint32"
	case Float:
		return "float"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case String:
		return "string"
	default:
		return "invalid"
	}
}

// Variant is a discriminated union over the Kind tag set. The zero
// value is a Void variant.
type Variant struct {
	kind Kind

	ptr uintptr
	b   bool
	i32 int32
	u32 uint32
	f3  [3]float32

	owned    []byte // owned copy, exclusive with borrowed
	borrowed []byte // caller-owned alias, never released here
}

// Kind returns the current tag.
func (v *Variant) Kind() Kind { return v.kind }

// Clear drops any payload, releasing an owned string buffer, and
// resets the variant to Void. Idempotent.
func (v *Variant) Clear() {
	*v = Variant{}
}

// SetVoidPtr stores an opaque address-sized value.
func (v *Variant) SetVoidPtr(p uintptr) {
	v.Clear()
	v.kind = VoidPtr
	v.ptr = p
}

// SetBool stores a boolean.
func (v *Variant) SetBool(b bool) {
	v.Clear()
	v.kind = Bool
	v.b = b
}

// SetSint32 stores a signed 32-bit integer.
func (v *Variant) SetSint32(i int32) {
	v.Clear()
	v.kind = Sint32
	v.i32 = i
}

// SetUint32 stores an unsigned 32-bit integer.
func (v *Variant) SetUint32(u uint32) {
	v.Clear()
	v.kind = Uint32
	v.u32 = u
}

// SetFloat stores a 32-bit float.
func (v *Variant) SetFloat(f float32) {
	v.Clear()
	v.kind = Float
	v.f3[0] = f
}

// SetVec2 stores a 2-vector.
func (v *Variant) SetVec2(val [2]float32) {
	v.Clear()
	v.kind = Vec2
	v.f3[0] = val[0]
	v.f3[1] = val[1]
}

// SetVec3 stores a 3-vector.
func (v *Variant) SetVec3(val [3]float32) {
	v.Clear()
	v.kind = Vec3
	v.f3 = val
}

// SetString stores an owned copy of s in the variant's own buffer.
func (v *Variant) SetString(s string) {
	v.Clear()
	v.kind = String
	v.owned = append(v.owned[:0], s...)
}

// SetStringRef aliases b without copying. The variant never releases
// or mutates the bytes; the caller must keep them valid for the
// variant's lifetime.
func (v *Variant) SetStringRef(b []byte) {
	v.Clear()
	v.kind = String
	v.borrowed = b
}

// CopyFrom deep-copies other into v. An owned string is re-copied into
// v's own buffer, never aliased; a borrowed string stays a reference to
// the same external bytes. Copying a variant onto itself is a contract
// violation.
func (v *Variant) CopyFrom(other *Variant) {
	if v == other {
		panic("variant: CopyFrom self")
	}
	v.Clear()
	*v = *other
	if other.owned != nil {
		v.owned = append([]byte(nil), other.owned...)
	}
}

// GetVoidPtr returns the stored address-sized value.
func (v *Variant) GetVoidPtr() uintptr {
	v.mustBe(VoidPtr)
	return v.ptr
}

// GetBool returns the stored boolean.
func (v *Variant) GetBool() bool {
	v.mustBe(Bool)
	return v.b
}

// GetSint32 returns the stored signed integer.
func (v *Variant) GetSint32() int32 {
	v.mustBe(Sint32)
	return v.i32
}

// GetUint32 returns the stored unsigned integer.
func (v *Variant) GetUint32() uint32 {
	v.mustBe(Uint32)
	return v.u32
}

// GetFloat returns the stored float.
func (v *Variant) GetFloat() float32 {
	v.mustBe(Float)
	return v.f3[0]
}

// GetVec2 returns the stored 2-vector.
func (v *Variant) GetVec2() [2]float32 {
	v.mustBe(Vec2)
	return [2]float32{v.f3[0], v.f3[1]}
}

// GetVec3 returns the stored 3-vector.
func (v *Variant) GetVec3() [3]float32 {
	v.mustBe(Vec3)
	return v.f3
}

// GetString returns the stored string value, whichever ownership holds
// it.
func (v *Variant) GetString() string {
	v.mustBe(String)
	if v.borrowed != nil {
		return string(v.borrowed)
	}
	return string(v.owned)
}

// Bytes returns the backing bytes of a String variant: the variant's
// own buffer for an owned string, or the caller's bytes for a borrowed
// one. The returned slice must not be modified.
func (v *Variant) Bytes() []byte {
	v.mustBe(String)
	if v.borrowed != nil {
		return v.borrowed
	}
	return v.owned
}

// Borrowed reports whether a String variant aliases external bytes.
func (v *Variant) Borrowed() bool {
	v.mustBe(String)
	return v.borrowed != nil
}

// Equal reports whether two variants hold the same kind and value.
// String comparison is by content, not ownership.
func (v *Variant) Equal(other *Variant) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Void:
		return true
	case VoidPtr:
		return v.ptr == other.ptr
	case Bool:
		return v.b == other.b
	case Sint32:
		return v.i32 == other.i32
	case Uint32:
		return v.u32 == other.u32
	case Float:
		return v.f3[0] == other.f3[0]
	case Vec2:
		return v.f3[0] == other.f3[0] && v.f3[1] == other.f3[1]
	case Vec3:
		return v.f3 == other.f3
	case String:
		return v.GetString() == other.GetString()
	default:
		return false
	}
}

func (v *Variant) mustBe(k Kind) {
	if v.kind != k {
		panic("variant: kind mismatch: have " + v.kind.String() + ", want " + k.String())
	}
}
