// Package pool recycles scratch buffers used while expanding command templates
package pool

import (
	"strings"
	"sync"
)

// maxPooledCap bounds the builders kept for reuse so one huge expansion
// does not pin memory
const maxPooledCap = 64 * 1024

var builders = sync.Pool{
	New: func() any {
		return &strings.Builder{}
	},
}

// GetBuilder returns an empty builder
func GetBuilder() *strings.Builder {
	sb := builders.Get().(*strings.Builder)
	sb.Reset()
	return sb
}

// PutBuilder hands a builder back; its contents must not be used afterwards
func PutBuilder(sb *strings.Builder) {
	if sb.Cap() < maxPooledCap {
		builders.Put(sb)
	}
}
