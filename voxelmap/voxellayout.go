package voxelmap

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DataType enumerates the primitive member types a voxel record may hold.
type DataType uint8

// Supported voxel member types.
const (
	DataTypeUnknown DataType = iota
	DataTypeInt8
	DataTypeUInt8
	DataTypeInt16
	DataTypeUInt16
	DataTypeInt32
	DataTypeUInt32
	DataTypeInt64
	DataTypeUInt64
	DataTypeFloat32
	DataTypeFloat64
)

// Size returns the byte size of the data type, or zero for DataTypeUnknown.
func (t DataType) Size() int {
	switch t {
	case DataTypeInt8, DataTypeUInt8:
		return 1
	case DataTypeInt16, DataTypeUInt16:
		return 2
	case DataTypeInt32, DataTypeUInt32, DataTypeFloat32:
		return 4
	case DataTypeInt64, DataTypeUInt64, DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case DataTypeInt8:
		return "int8"
	case DataTypeUInt8:
		return "uint8"
	case DataTypeInt16:
		return "int16"
	case DataTypeUInt16:
		return "uint16"
	case DataTypeInt32:
		return "int32"
	case DataTypeUInt32:
		return "uint32"
	case DataTypeInt64:
		return "int64"
	case DataTypeUInt64:
		return "uint64"
	case DataTypeFloat32:
		return "float32"
	case DataTypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// VoxelMember describes one member of a voxel record: its name, primitive type and
// default value. The default is given as a bit pattern whose low bytes, truncated
// to the member size, initialize the member. Float sentinels are encoded by
// reinterpreting their bit representation.
type VoxelMember struct {
	Name        string
	Type        DataType
	DefaultBits uint64

	offset int
}

// Offset returns the byte offset of the member within the voxel record.
func (vm *VoxelMember) Offset() int {
	return vm.offset
}

// VoxelLayout describes the intra voxel schema of one map layer: an ordered list
// of members packed sequentially, with the record size aligned to 8 bytes.
type VoxelLayout struct {
	members  []VoxelMember
	byteSize int
}

// AddMember appends a member to the layout and returns its index.
func (vl *VoxelLayout) AddMember(name string, dtype DataType, defaultBits uint64) (int, error) {
	size := dtype.Size()
	if size == 0 {
		return -1, errors.Wrapf(ErrInvalidArgument, "voxel member %q has unknown type", name)
	}
	vl.members = append(vl.members, VoxelMember{
		Name:        name,
		Type:        dtype,
		DefaultBits: defaultBits,
		offset:      vl.byteSize,
	})
	vl.byteSize += size
	return len(vl.members) - 1, nil
}

// MemberCount returns the number of members in the layout.
func (vl *VoxelLayout) MemberCount() int {
	return len(vl.members)
}

// Member returns the member at index, or nil when out of range.
func (vl *VoxelLayout) Member(index int) *VoxelMember {
	if index < 0 || index >= len(vl.members) {
		return nil
	}
	return &vl.members[index]
}

// MemberByName returns the first member with the given name, or nil.
func (vl *VoxelLayout) MemberByName(name string) *VoxelMember {
	for i := range vl.members {
		if vl.members[i].Name == name {
			return &vl.members[i]
		}
	}
	return nil
}

// VoxelByteSize returns the record size: the sum of the member sizes aligned up
// to 8 bytes.
func (vl *VoxelLayout) VoxelByteSize() int {
	return (vl.byteSize + 7) &^ 7
}

// fillPattern renders the default record bytes: each member's default bit pattern
// truncated to the member size, with any alignment padding zeroed.
func (vl *VoxelLayout) fillPattern() []byte {
	pattern := make([]byte, vl.VoxelByteSize())
	var scratch [8]byte
	for i := range vl.members {
		m := &vl.members[i]
		binary.LittleEndian.PutUint64(scratch[:], m.DefaultBits)
		copy(pattern[m.offset:m.offset+m.Type.Size()], scratch[:m.Type.Size()])
	}
	return pattern
}

// checkEquivalent compares two voxel layouts. Exact requires matching member
// names; Equivalent tolerates renamed members provided types, offsets and
// defaults agree.
func (vl *VoxelLayout) checkEquivalent(other *VoxelLayout) LayoutMatch {
	if vl == other {
		return LayoutMatchExact
	}
	if len(vl.members) != len(other.members) || vl.byteSize != other.byteSize {
		return LayoutMatchDifferent
	}
	match := LayoutMatchExact
	for i := range vl.members {
		a, b := &vl.members[i], &other.members[i]
		if a.Type != b.Type || a.offset != b.offset || a.DefaultBits != b.DefaultBits {
			return LayoutMatchDifferent
		}
		if a.Name != b.Name {
			match = LayoutMatchEquivalent
		}
	}
	return match
}
