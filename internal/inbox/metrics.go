package inbox

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts processed inbox files.
type Metrics struct {
	Files *prometheus.CounterVec
}

// NewMetrics creates the inbox collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dbsync",
			Subsystem: "inbox",
			Name:      "files_total",
			Help:      "Inbox files processed, by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.Files); err != nil {
		return nil, err
	}
	return m, nil
}
