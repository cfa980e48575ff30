package bridge

import (
	"net/url"

	"github.com/rs/zerolog"
)

// Backend is the filesystem contract every transport implements.
type Backend interface {
	// Cd changes the working directory.
	Cd(directory string) error
	// Pwd returns the working directory.
	Pwd() (string, error)
	// Get downloads a whole file into memory.
	Get(remoteFile string) ([]byte, error)
	// Put uploads data to remoteFile in binary mode.
	Put(data []byte, remoteFile string) error
	// Ls lists the entries of the working directory.
	Ls() ([]string, error)
	// Exists reports whether a file or directory exists.
	Exists(path string) (bool, error)
	// Rm deletes a file.
	Rm(remoteFile string) error
	// Mv renames a file.
	Mv(remoteFile, newName string) error
	// Mkdir creates a directory.
	Mkdir(dirName string) error
	// Rmdir removes a directory.
	Rmdir(dirName string) error
	// Close releases the transport handle. Calling it twice is safe.
	Close() error
}

// Factory advertises and constructs one kind of backend.
type Factory interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Protocols lists the URL schemes the backend can handle. The list does
	// not depend on whether the backend is usable in this build.
	Protocols() []string
	// Available returns nil when the backend can be used, or an error naming
	// the missing capability.
	Available() error
	Create(u *url.URL, opts Options, logger zerolog.Logger) (Backend, error)
}
