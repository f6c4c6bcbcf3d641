//go:build !rtsync_debug

package rtsync

const debugAssert = false
