//go:build rtsync_debug

package rtsync

// debugAssert enables internal consistency checks on wait queues and
// context switches.
const debugAssert = true
