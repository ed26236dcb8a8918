package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
)

// errDebug is attached by DebugError.
var errDebug = errors.New("debug: attached error")

// DebugPanic panics so the ErrorCatcher can be exercised by hand.
// The kind query parameter selects the panic value:
//
//	runtime  a runtime error (nil map write)
//	value    a non-error value (an int)
//	error    an error value
//	(other)  a string
func DebugPanic(c *gin.Context) {
	switch c.Query("kind") {
	case "runtime":
		var m map[string]int
		m["boom"] = 1
	case "value":
		panic(42)
	case "error":
		panic(fmt.Errorf("debug: %s", c.Request.URL.Path))
	}
	panic("debug: panic requested")
}

// DebugError attaches an error to the context and returns without writing,
// which the ErrorCatcher treats as a failure when attached errors are caught.
func DebugError(c *gin.Context) {
	_ = c.Error(errDebug)
}
