/*
Package monitoring collects Prometheus metrics for the bridge.

Collectors are registered on the registry passed to NewMetrics, so tests and
the server each own an isolated registry:

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

Mailbox tools are timed with a Timer and labelled with their result code:

	timer := monitoring.NewTimer(metrics, "mailbox.read")
	// ...
	timer.Stop("empty")

HTTP paths are labelled with the route template, never the raw URL.
*/
package monitoring
