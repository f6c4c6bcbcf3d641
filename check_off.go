//go:build rtsync_nocheck

package rtsync

const checkParams = false
