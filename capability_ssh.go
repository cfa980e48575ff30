//go:build !bridge_nossh

package bridge

// sshSupport is cleared by building with the bridge_nossh tag.
var sshSupport = true
