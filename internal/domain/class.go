package domain

import "strings"

// ABCClass is the sales-velocity tier assigned to a product.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
	ClassD ABCClass = "D"
)

// AllClasses lists the fixed classes in rank order.
var AllClasses = []ABCClass{ClassA, ClassB, ClassC, ClassD}

// Method is the replenishment method used for a class.
type Method string

const (
	MethodStatistical Method = "estadistico"
	MethodHeuristic   Method = "heuristico"
)

// Provenance names the configuration layer that supplied a resolved value.
type Provenance string

const (
	ProvenanceGlobal   Provenance = "global"
	ProvenanceStore    Provenance = "store"
	ProvenanceCategory Provenance = "category"
)

var classLabels = map[ABCClass]string{
	ClassA: "High velocity",
	ClassB: "Medium velocity",
	ClassC: "Low velocity",
	ClassD: "Tail",
}

// Valid reports whether c is one of A, B, C or D.
func (c ABCClass) Valid() bool {
	_, ok := classLabels[c]
	return ok
}

// Label returns a human-readable label for the class.
func (c ABCClass) Label() string {
	if label, ok := classLabels[c]; ok {
		return label
	}

	return "Unknown"
}

// Method returns the replenishment method the class uses. Class D is always heuristic.
func (c ABCClass) Method() Method {
	if c == ClassD {
		return MethodHeuristic
	}
	return MethodStatistical
}

// ParseClass returns the class for a label (case-insensitive).
func ParseClass(label string) (ABCClass, error) {
	c := ABCClass(strings.ToUpper(strings.TrimSpace(label)))
	if !c.Valid() {
		return "", &ValidationError{
			Kind:   ErrUnknownClass,
			Field:  "clase",
			Value:  label,
			Detail: "class must be one of A, B, C, D",
		}
	}

	return c, nil
}
