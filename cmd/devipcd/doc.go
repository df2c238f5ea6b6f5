// Package main is the devipcd daemon.
//
// devipcd owns one IPC kernel (the device endpoints and the message stack)
// and serves it over HTTP on a Unix socket.
//
// Configuration:
//   - Defaults, then the YAML file from --config or DEVIPC_CONFIG_FILE
//   - DEVIPC_* environment variables
//   - --socket and --dev flags last
//
// Usage:
//
//	./devipcd --socket /tmp/devipc.sock
//	./devipcd --config devipc.yaml --dev
//
// Signals:
//   - SIGINT, SIGTERM: close client handles (blocked calls get ESHUTDOWN),
//     drain requests, free queued messages
package main
