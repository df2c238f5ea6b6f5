package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

// Defaults mirror the reference character device.
const (
	DefaultCount      = 2
	DefaultBufferSize = 1024
	MaxBufferSize     = 1 << 20
)

// Mode selects how a handle is opened.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ParseMode converts "read"/"r" or "write"/"w" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r", "rdonly":
		return ModeRead, nil
	case "write", "w", "wronly":
		return ModeWrite, nil
	}
	return 0, fmt.Errorf("mode %q: %w", s, errno.ErrInvalidArgument)
}

// Command is a control command accepted by Handle.Ioctl.
type Command uint32

const (
	// CmdSetBufferSize resizes the handle's endpoint buffer.
	CmdSetBufferSize Command = iota + 1
	// CmdSetMaxReaders limits concurrently open readers; 0 lifts the limit.
	CmdSetMaxReaders
)

// String returns the command name
func (c Command) String() string {
	switch c {
	case CmdSetBufferSize:
		return "set_buffer_size"
	case CmdSetMaxReaders:
		return "set_max_readers"
	default:
		return fmt.Sprintf("command(%d)", uint32(c))
	}
}

// ParseCommand accepts a command name or its number.
func ParseCommand(s string) (Command, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "set_buffer_size", "buffer_size":
		return CmdSetBufferSize, nil
	case "set_max_readers", "max_readers":
		return CmdSetMaxReaders, nil
	}
	if n, err := strconv.ParseUint(name, 10, 32); err == nil {
		return Command(n), nil
	}
	return 0, fmt.Errorf("command %q: %w", s, errno.ErrUnsupported)
}

// EndpointStats describes one endpoint.
type EndpointStats struct {
	Minor          int    `json:"minor"`
	Capacity       int    `json:"capacity"`
	Occupied       int    `json:"occupied"`
	Head           int    `json:"head"`
	Tail           int    `json:"tail"`
	BlockedReaders int    `json:"blocked_readers"`
	BlockedWriters int    `json:"blocked_writers"`
	BytesRead      uint64 `json:"bytes_read"`
	BytesWritten   uint64 `json:"bytes_written"`
	Closed         bool   `json:"closed"`
}

// Stats describes the whole table.
type Stats struct {
	Endpoints   []EndpointStats `json:"endpoints"`
	Readers     int             `json:"readers"`
	MaxReaders  int             `json:"max_readers"`
	WriterHeld  bool            `json:"writer_held"`
	OpenHandles int             `json:"open_handles"`
}
