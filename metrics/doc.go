// Package metrics exports module cache metrics to Prometheus.
//
//	vm, _ := wasmvm.NewVM(dir, caps, 32, false, 100)
//	reg := prometheus.NewRegistry()
//	if _, err := metrics.Register(reg, "wasmvm", vm, logger); err != nil {
//	    return err
//	}
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
