package ports

// Observability receives the recorder's structured events and metric updates. Event and
// metric names are snake_case; names a backend does not know are ignored.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	// LogCritical is reserved for data loss, such as unsynced points dropped at stop.
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

// Field is one structured log attribute.
type Field struct {
	Key   string
	Value any
}
