// Package main is devipcctl, a command-line client for devipcd.
//
// It exercises both IPC primitives the way small user-space test programs
// would: pushing and popping messages, streaming bytes through an
// endpoint, and applying control commands.
//
// Usage:
//
//	devipcctl send "Hello from user space!"
//	devipcctl recv --size 128
//	devipcctl forktest --workers 4
//	echo hi | devipcctl write --minor 0
//	devipcctl read --minor 0 --follow
//	devipcctl ioctl --minor 1 --cmd set_buffer_size --arg 4096
//
// A failed command exits with the errno number the daemon replied with.
package main
