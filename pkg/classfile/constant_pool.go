package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// parseConstantPool reads constant_pool_count-1 entries.
// The returned slice is 1-indexed: index 0 is nil.
func parseConstantPool(r *reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		tag := r.u1()
		switch tag {
		case TagUtf8:
			pool[i] = &ConstantUtf8{Value: string(r.bytes(int(r.u2())))}
		case TagInteger:
			pool[i] = &ConstantInteger{Value: int32(r.u4())}
		case TagFloat:
			pool[i] = &ConstantFloat{Value: math.Float32frombits(r.u4())}
		case TagLong:
			pool[i] = &ConstantLong{Value: int64(r.u8())}
			i++ // long takes 2 slots
		case TagDouble:
			pool[i] = &ConstantDouble{Value: math.Float64frombits(r.u8())}
			i++ // double takes 2 slots
		case TagClass:
			pool[i] = &ConstantClass{NameIndex: r.u2()}
		case TagString:
			pool[i] = &ConstantString{StringIndex: r.u2()}
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			pool[i] = &ConstantRef{tag: tag, ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagNameAndType:
			pool[i] = &ConstantNameAndType{NameIndex: r.u2(), DescriptorIndex: r.u2()}
		case TagMethodHandle:
			pool[i] = &ConstantMethodHandle{ReferenceKind: r.u1(), ReferenceIndex: r.u2()}
		case TagMethodType:
			pool[i] = &ConstantMethodType{DescriptorIndex: r.u2()}
		case TagDynamic, TagInvokeDynamic:
			pool[i] = &ConstantDynamic{tag: tag, BootstrapMethodAttrIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagModule:
			pool[i] = &ConstantModule{NameIndex: r.u2()}
		case TagPackage:
			pool[i] = &ConstantPackage{NameIndex: r.u2()}
		default:
			if r.err != nil {
				return nil, fmt.Errorf("reading constant pool entry %d: %w", i, r.err)
			}
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if r.err != nil {
			return nil, fmt.Errorf("reading constant pool entry %d (tag %d): %w", i, tag, r.err)
		}
	}

	return pool, nil
}

// countTag returns the number of pool entries with the given tag.
func countTag(pool []ConstantPoolEntry, tag uint8) int {
	n := 0
	for _, e := range pool {
		if e != nil && e.Tag() == tag {
			n++
		}
	}
	return n
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", index)
	}
	utf8, ok := pool[index].(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, pool[index].Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	if int(classIndex) >= len(pool) || pool[classIndex] == nil {
		return "", fmt.Errorf("invalid constant pool index %d", classIndex)
	}
	class, ok := pool[classIndex].(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}
