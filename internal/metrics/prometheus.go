package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder implements Recorder backed by Prometheus counters/gauges.
type PromRecorder struct {
	registry           *prometheus.Registry
	handler            http.Handler
	connOpened         prometheus.Counter
	connClosed         prometheus.Counter
	handshakeFailed    prometheus.Counter
	setupRejected      *prometheus.CounterVec
	templatesSent      *prometheus.CounterVec
	templatesSkipped   prometheus.Counter
	templateDifficulty prometheus.Gauge
	solutionsSubmit    *prometheus.CounterVec
	txDataNotFound     prometheus.Counter
}

// NewPromRecorder creates a Prometheus-backed Recorder and exposes a handler for metrics scraping.
// Namespace is prefixed on all metrics; if empty, "sv2tp" is used.
func NewPromRecorder(namespace string) (*PromRecorder, error) {
	if namespace == "" {
		namespace = "sv2tp"
	}
	reg := prometheus.NewRegistry()

	connOpened := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "connections_opened_total", Help: "Total TCP connections accepted."})
	connClosed := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "connections_closed_total", Help: "Total TCP connections closed."})
	handshakeFailed := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "handshake_failed_total", Help: "Noise handshakes that failed before reaching the transport phase."})
	setupRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "setup_connection_rejected_total", Help: "SetupConnection requests rejected, by reason."}, []string{"reason"})
	templatesSent := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "templates_sent_total", Help: "NewTemplate messages sent, split by whether SetNewPrevHash accompanied them."}, []string{"new_prev_hash"})
	templatesSkipped := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "templates_skipped_total", Help: "Template rebuilds skipped by the fee-delta gate."})
	solutionsSubmit := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "solutions_submitted_total", Help: "SubmitSolution messages forwarded to the chain manager, by result."}, []string{"status"})
	txDataNotFound := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tx_data_not_found_total", Help: "RequestTransactionData requests for an unknown template_id."})
	templateDifficulty := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "template_difficulty", Help: "Difficulty (maxTarget/target) of the most recently sent template."})

	collectors := []prometheus.Collector{connOpened, connClosed, handshakeFailed, setupRejected, templatesSent, templatesSkipped, templateDifficulty, solutionsSubmit, txDataNotFound}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PromRecorder{
		registry:           reg,
		handler:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		connOpened:         connOpened,
		connClosed:         connClosed,
		handshakeFailed:    handshakeFailed,
		setupRejected:      setupRejected,
		templatesSent:      templatesSent,
		templatesSkipped:   templatesSkipped,
		templateDifficulty: templateDifficulty,
		solutionsSubmit:    solutionsSubmit,
		txDataNotFound:     txDataNotFound,
	}, nil
}

// Handler exposes the HTTP handler for scraping.
func (p *PromRecorder) Handler() http.Handler {
	return p.handler
}

func (p *PromRecorder) ConnOpened()      { p.connOpened.Inc() }
func (p *PromRecorder) ConnClosed()      { p.connClosed.Inc() }
func (p *PromRecorder) HandshakeFailed() { p.handshakeFailed.Inc() }

func (p *PromRecorder) SetupRejected(reason string) {
	p.setupRejected.WithLabelValues(reason).Inc()
}

func (p *PromRecorder) TemplateSent(sendNewPrevHash bool) {
	label := "false"
	if sendNewPrevHash {
		label = "true"
	}
	p.templatesSent.WithLabelValues(label).Inc()
}

func (p *PromRecorder) TemplateSkipped() { p.templatesSkipped.Inc() }

func (p *PromRecorder) TemplateDifficulty(difficulty float64) { p.templateDifficulty.Set(difficulty) }

func (p *PromRecorder) SolutionSubmitted(success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	p.solutionsSubmit.WithLabelValues(status).Inc()
}

func (p *PromRecorder) TxDataNotFound() { p.txDataNotFound.Inc() }
