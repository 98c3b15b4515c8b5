// Package simbus carries typed data samples between participants:
// topics pairing a sample endpoint with a stream-type endpoint, QoS
// profile selection driven by the stream type's byte size, and a
// unified wait-set reception loop multiplexing many readers.
package simbus

import (
	"sort"
	"strconv"

	"github.com/GoCodeAlone/simnode"
)

// Meta type names describing the shape of samples on a topic.
const (
	MetaTypePlain      = "plain-ctype"
	MetaTypePlainArray = "plain-array-ctype"
	MetaTypeStruct     = "struct-ctype"
	MetaTypeString     = "ascii-string"
	MetaTypeAnonymous  = "anonymous"
)

// Well-known stream type property names.
const (
	PropDataType     = "datatype"
	PropMaxArraySize = "max_array_size"
	PropMaxByteSize  = "max_byte_size"
	PropStaticSize   = "static_size"
)

// StreamType is the metadata describing the shape of samples on a
// topic: a meta type name plus named properties.
type StreamType struct {
	metaType   string
	properties map[string]string
}

// NewStreamType creates a stream type of the given meta type.
func NewStreamType(metaType string, properties map[string]string) StreamType {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	return StreamType{metaType: metaType, properties: props}
}

// MetaType returns the meta type name.
func (t StreamType) MetaType() string { return t.metaType }

// Property returns a property value, empty when absent.
func (t StreamType) Property(name string) string { return t.properties[name] }

// PropertyNames returns the sorted property names.
func (t StreamType) PropertyNames() []string {
	names := make([]string, 0, len(t.properties))
	for name := range t.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two stream types carry identical metadata.
func (t StreamType) Equal(other StreamType) bool {
	if t.metaType != other.metaType || len(t.properties) != len(other.properties) {
		return false
	}
	for name, value := range t.properties {
		if other.properties[name] != value {
			return false
		}
	}
	return true
}

func (t StreamType) propertyInt(name string) (int, bool) {
	v := t.properties[name]
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// primitiveSize returns the byte size of a plain data type name.
func primitiveSize(dataType string) int {
	switch dataType {
	case "bool", "int8", "uint8", "char":
		return 1
	case "int16", "uint16":
		return 2
	case "int32", "uint32", "float32":
		return 4
	case "int64", "uint64", "float64", "double":
		return 8
	default:
		// Assume the biggest plain type.
		return 8
	}
}

// SampleSize computes the serialized byte size of samples described by
// the stream type. An explicit max_byte_size wins; otherwise the size
// follows the meta type: primitive size for plain scalars, element size
// times max_array_size for plain arrays, static_size times
// max_array_size for structured types.
func (t StreamType) SampleSize() int {
	if size, ok := t.propertyInt(PropMaxByteSize); ok {
		return size
	}

	switch t.metaType {
	case MetaTypePlain:
		return primitiveSize(t.Property(PropDataType))

	case MetaTypePlainArray:
		elementSize := primitiveSize(t.Property(PropDataType))
		if arraySize, ok := t.propertyInt(PropMaxArraySize); ok {
			return elementSize * arraySize
		}
		return elementSize

	case MetaTypeStruct:
		staticSize, ok := t.propertyInt(PropStaticSize)
		if !ok {
			return t.propertySum()
		}
		if arraySize, ok := t.propertyInt(PropMaxArraySize); ok {
			return staticSize * arraySize
		}
		return staticSize

	default:
		return t.propertySum()
	}
}

// MetadataSize is the byte size of the stream type metadata itself, the
// sum of its property-value sizes. It drives the stream-type endpoint's
// profile selection.
func (t StreamType) MetadataSize() int {
	return t.propertySum()
}

func (t StreamType) propertySum() int {
	sum := 0
	for _, value := range t.properties {
		sum += len(value)
	}
	return sum
}

// Sample is one data item on a topic.
type Sample struct {
	Data       []byte
	SourceTime simnode.Timestamp
}
