// Package config provides 12-factor configuration management for the devipc daemon.
//
// Configuration starts from Default, is overlaid by an optional YAML file
// named in DEVIPC_CONFIG_FILE, and finally by environment variables.
//
// Configuration Sections:
//   - Server: Unix socket path, rate limiting and metrics
//   - Devices: endpoint count, ring buffer size and reader limit
//   - MsgBox: byte budget for queued messages
//   - Logging: Log level and output format
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("listening on %s\n", cfg.Server.Socket)
//
// Environment Variables:
//   - DEVIPC_SOCKET, DEVIPC_METRICS_ENABLED
//   - DEVIPC_RATE_LIMIT_RPS, DEVIPC_RATE_LIMIT_BURST, DEVIPC_RATE_LIMIT_ENABLED
//   - DEVIPC_GLOBAL_RATE_LIMIT_RPS, DEVIPC_GLOBAL_RATE_LIMIT_BURST
//   - DEVIPC_DEVICE_COUNT, DEVIPC_BUFFER_SIZE, DEVIPC_MAX_READERS
//   - DEVIPC_MSGBOX_BUDGET
//   - DEVIPC_LOG_LEVEL, DEVIPC_LOG_DEV
package config
