/*
Package monitoring provides Prometheus metrics for the devipc daemon.

# Overview

Metrics live on a private registry owned by a Metrics value, so several
daemons (or tests) can run in one process. Three groups are exported:

- HTTP request counts and latency, labelled by route template
- IPC operation results by errno name, bytes moved and latency
- Endpoint and message box state, read from the kernel at scrape time

# Usage

	metrics := monitoring.NewMetrics()
	_ = metrics.Register(monitoring.NewKernelCollector(k))

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	start := time.Now()
	n, err := h.Read(ctx, buf, len(buf))
	metrics.RecordOp("read", n, err, time.Since(start))
*/
package monitoring
