// Package prometheus exports producer and consumer metrics with the
// Prometheus client library.
//
//	reg := prometheus.NewRegistry()
//	m := stratumprom.New(reg, stratumprom.WithConstLabels(prometheus.Labels{"dataset": "movies"}))
//	p := producer.New(producer.WithMetricsCollector(m), ...)
//	c := consumer.New(retriever, consumer.WithMetricsCollector(m))
package prometheus
