// Package pkg contains standalone helpers shared by the rest of the module.
// It depends on nothing but the standard library.
package pkg

import (
	"fmt"
)

// Panicf formats its arguments like fmt.Sprintf and panics with the result.
// Avoid it inside panic handlers, where the formatting itself may fail.
func Panicf(msg string, args ...interface{}) {
	panic(fmt.Sprintf(msg, args...))
}
