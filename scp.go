package bridge

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// scpReceive downloads remotePath with the SCP source protocol ("scp -f").
func scpReceive(client *ssh.Client, remotePath string) ([]byte, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	if err := session.Start("scp -f " + shellQuote(remotePath)); err != nil {
		return nil, fmt.Errorf("failed to start scp command: %w", err)
	}

	writer := bufio.NewWriter(stdin)
	reader := bufio.NewReader(stdout)

	if err := writeByte(writer, 0); err != nil {
		return nil, fmt.Errorf("failed to write initial null byte: %w", err)
	}

	// file metadata line (C0664 999999999 test.txt)
	//                      └─┬─┘ └───┬───┘ └───┬───┘
	//                        │       │         │
	//                       mode    size    filename
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read file metadata: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if len(line) > 0 && (line[0] == 1 || line[0] == 2) {
		return nil, fmt.Errorf("scp: %s", strings.TrimSpace(line[1:]))
	}

	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(fields) != 3 || !strings.HasPrefix(fields[0], "C") {
		return nil, fmt.Errorf("unexpected SCP metadata format: %q", line)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid file size: %w", err)
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid file size %d", size)
	}

	if err := writeByte(writer, 0); err != nil {
		return nil, fmt.Errorf("failed to acknowledge metadata: %w", err)
	}

	// The buffer grows with what actually arrives, not with the announced size.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, size))
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("failed to read file contents: got %d of %d bytes", n, size)
	}
	data := buf.Bytes()
	if data == nil {
		data = []byte{}
	}

	if b, err := reader.ReadByte(); err != nil || b != 0 {
		return nil, fmt.Errorf("unexpected trailing byte: %v", b)
	}
	if err := writeByte(writer, 0); err != nil {
		return nil, fmt.Errorf("failed to send final null byte: %w", err)
	}
	stdin.Close()

	if err := session.Wait(); err != nil {
		return nil, scpExitError(err, &stderr)
	}
	return data, nil
}

// scpSend uploads data to remotePath with the SCP sink protocol ("scp -t").
func scpSend(client *ssh.Client, remotePath string, data []byte) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	if err := session.Start("scp -t " + shellQuote(remotePath)); err != nil {
		return fmt.Errorf("failed to start scp command: %w", err)
	}

	writer := bufio.NewWriter(stdin)
	reader := bufio.NewReader(stdout)

	if err := readAck(reader); err != nil {
		return err
	}

	header := fmt.Sprintf("C0644 %d %s\n", len(data), path.Base(remotePath))
	if _, err := writer.WriteString(header); err != nil {
		return fmt.Errorf("failed to send file metadata: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to send file metadata: %w", err)
	}
	if err := readAck(reader); err != nil {
		return err
	}

	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to send file contents: %w", err)
	}
	if err := writeByte(writer, 0); err != nil {
		return fmt.Errorf("failed to send final null byte: %w", err)
	}
	if err := readAck(reader); err != nil {
		return err
	}
	stdin.Close()

	if err := session.Wait(); err != nil {
		return scpExitError(err, &stderr)
	}
	return nil
}

// readAck reads one SCP status byte: 0 is success, 1 and 2 are followed by
// an error message line.
func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read scp acknowledgment: %w", err)
	}
	if b == 0 {
		return nil
	}
	msg, _ := r.ReadString('\n')
	return fmt.Errorf("scp: %s", strings.TrimSpace(msg))
}

func scpExitError(err error, stderr *bytes.Buffer) error {
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("scp exited %d: %s", exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
	}
	return err
}

func writeByte(w *bufio.Writer, b byte) error {
	if _, err := w.Write([]byte{b}); err != nil {
		return err
	}
	return w.Flush()
}

// shellQuote wraps s in single quotes for the remote shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
