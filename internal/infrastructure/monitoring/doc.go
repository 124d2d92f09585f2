/*
Package monitoring provides Prometheus metrics for the viewer.

# Overview

Every Metrics value owns a private registry, exposed through Handler. The
collectors cover the HTTP surface, the navigation pipeline (fetch, rewrite,
render) and the WebSocket relay.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "navigate")
	// ... fetch, rewrite, display ...
	timer.Stop("loaded")
*/
package monitoring
