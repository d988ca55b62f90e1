// Package kernel is the shim between the allocator and the operating
// system's virtual memory primitives.
//
// It is the only package in this module allowed to talk to the kernel
// directly. Everything above it deals exclusively in already-mapped
// memory.
package kernel

// PageSize is the size, in bytes, of a single page as reported by the
// host. All arena requests are rounded up to a multiple of this value.
var PageSize = pageSize()
