//go:build bridge_nossh

package bridge

var sshSupport = false
