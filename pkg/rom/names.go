package rom

import (
	"fmt"
	"strings"
)

// PackageName returns the package part of a binary class name
// ("java/lang/Object" -> "java/lang"). Array names resolve to the package of
// their element type; primitive arrays and top-level classes return "".
func PackageName(name string) string {
	name = strings.TrimLeft(name, "[")
	if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") {
		name = name[1 : len(name)-1]
	}
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// IsArrayName reports whether name denotes an array class.
func IsArrayName(name string) bool {
	return strings.HasPrefix(name, "[")
}

// ArrayName returns the binary name of the array class whose element is elem.
func ArrayName(elem string) string {
	if IsArrayName(elem) {
		return "[" + elem
	}
	return "[L" + elem + ";"
}

// ElementName returns the binary name of the element of an array class.
// Primitive element types are returned as their single-letter descriptor.
func ElementName(array string) (string, error) {
	if !IsArrayName(array) || len(array) < 2 {
		return "", fmt.Errorf("rom: %q is not an array class name", array)
	}
	elem := array[1:]
	switch {
	case IsArrayName(elem):
		return elem, nil
	case strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";") && len(elem) > 2:
		return elem[1 : len(elem)-1], nil
	case len(elem) == 1 && strings.ContainsAny(elem, "BCDFIJSZ"):
		return elem, nil
	}
	return "", fmt.Errorf("rom: malformed array class name %q", array)
}

// ReferencedTypes returns the class names mentioned by a field or method
// signature, in order of appearance. Array types contribute their element
// class; primitives contribute nothing.
func ReferencedTypes(signature string) []string {
	var names []string
	for i := 0; i < len(signature); i++ {
		if signature[i] != 'L' {
			continue
		}
		end := strings.IndexByte(signature[i:], ';')
		if end < 0 {
			break
		}
		names = append(names, signature[i+1:i+end])
		i += end
	}
	return names
}
