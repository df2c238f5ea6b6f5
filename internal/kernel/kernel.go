// Package kernel assembles the IPC primitives into one context object.
//
// A Kernel owns the device table and the message box. It is built once at
// startup and passed to whatever dispatches requests; tests build as many
// independent instances as they need.
package kernel

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/config"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/device"
	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/msgbox"
	"go.uber.org/zap"
)

// Kernel is the IPC context object.
type Kernel struct {
	Devices *device.Table
	MsgBox  *msgbox.Box
	log     *zap.Logger
}

// Stats is a snapshot of both primitives.
type Stats struct {
	Devices device.Stats `json:"devices"`
	MsgBox  MsgBoxStats  `json:"msgbox"`
}

// MsgBoxStats is the JSON form of msgbox.Stats.
type MsgBoxStats struct {
	Depth     int    `json:"depth"`
	Bytes     int64  `json:"bytes"`
	Live      uint64 `json:"live"`
	Allocated uint64 `json:"allocated"`
	Destroyed uint64 `json:"destroyed"`
}

// New builds a kernel from configuration.
func New(devices config.DeviceConfig, box config.MsgBoxConfig, log *zap.Logger) (*Kernel, error) {
	if log == nil {
		log = zap.NewNop()
	}

	table, err := device.NewTable(device.Options{
		Count:      devices.Count,
		BufferSize: devices.BufferSize,
		MaxReaders: devices.MaxReaders,
		Logger:     log.Named("device"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create device table: %w", err)
	}

	mb, err := msgbox.New(box.ByteBudget)
	if err != nil {
		return nil, fmt.Errorf("failed to create message box: %w", err)
	}

	log.Info("IPC kernel initialized",
		zap.Int("devices", devices.Count),
		zap.Int("buffer_size", devices.BufferSize),
		zap.Int("max_message_size", msgbox.MaxMessageSize))

	return &Kernel{Devices: table, MsgBox: mb, log: log}, nil
}

// Open opens a device endpoint.
func (k *Kernel) Open(minor int, mode device.Mode, nonblock bool) (*device.Handle, error) {
	return k.Devices.Open(minor, mode, nonblock)
}

// Submit pushes a message onto the shared stack.
func (k *Kernel) Submit(payload []byte, length int) error {
	return k.MsgBox.Submit(payload, length)
}

// Retrieve pops the most recent message into buf.
func (k *Kernel) Retrieve(buf []byte, capacity int) (int, error) {
	return k.MsgBox.Retrieve(buf, capacity)
}

// Stats returns a snapshot of both primitives.
func (k *Kernel) Stats() Stats {
	mb := k.MsgBox.Stats()
	return Stats{
		Devices: k.Devices.Stats(),
		MsgBox: MsgBoxStats{
			Depth:     mb.Depth,
			Bytes:     mb.Bytes,
			Live:      mb.Live,
			Allocated: mb.Allocated,
			Destroyed: mb.Destroyed,
		},
	}
}

// Close tears everything down: blocked channel callers are released with a
// shutdown error and every queued message is freed.
func (k *Kernel) Close() {
	k.Devices.Close()
	freed := k.MsgBox.Drain()
	k.log.Info("IPC kernel shut down", zap.Int("messages_freed", freed))
}
