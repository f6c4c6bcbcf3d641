//go:build !rtsync_nocheck

package rtsync

// checkParams enables argument and object validation in every kernel
// service. Build with the rtsync_nocheck tag to compile it out.
const checkParams = true
