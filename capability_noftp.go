//go:build bridge_noftp

package bridge

var ftpSupport = false
