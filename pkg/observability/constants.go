package observability

const (
	DefaultServiceName = "taskflow"
	DefaultMetricsPath = "/metrics"
)
