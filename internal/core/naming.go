package core

import "fmt"

// Side identifies which table is being compared: left is the reference
// side (source of truth for insert/update), right is the target of the
// implied synchronization.
type Side int

const (
	Left  Side = 1
	Right Side = 2
)

func (s Side) String() string {
	if s == Left {
		return "1"
	}
	return "2"
}

// TableName returns the observable intermediate table name
// <prefix>_<side>_<level>, e.g. cmp_1_0.
func TableName(prefix string, side Side, level int) string {
	return fmt.Sprintf("%s_%s_%d", prefix, side, level)
}
