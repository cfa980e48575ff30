//go:build !bridge_noftp

package bridge

// ftpSupport is cleared by building with the bridge_noftp tag.
var ftpSupport = true
