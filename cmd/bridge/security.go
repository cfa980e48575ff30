package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const maxPasswordLen = 65536

// secureWipe overwrites sensitive data with zeros.
func secureWipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// askPassword reads a password from the terminal without echoing it. The
// prompt goes to w so stdout stays clean for piped downloads.
// Supports very long strings by using a buffer-based approach
func askPassword(w io.Writer) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprint(w, "Enter password: ")

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set terminal to raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)
	defer fmt.Fprint(w, "\r\n")

	var password []byte
	buffer := make([]byte, 4096) // Large buffer for base64 encoded keys

	for {
		n, err := os.Stdin.Read(buffer)
		if err != nil {
			secureWipe(password)
			return nil, fmt.Errorf("error reading password: %w", err)
		}

		if n > 0 && (buffer[n-1] == '\r' || buffer[n-1] == '\n') {
			password = append(password, buffer[:n-1]...)
			break
		}
		password = append(password, buffer[:n]...)

		if len(password) > maxPasswordLen {
			secureWipe(password)
			return nil, errors.New("password too long")
		}
	}
	secureWipe(buffer)
	return password, nil
}
