package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	BooksCreatedTotal    prometheus.Counter
	LoansCreatedTotal    prometheus.Counter
	LoansReturnedTotal   prometheus.Counter
	LoanConflictsTotal   *prometheus.CounterVec
	OverdueLoansFound    prometheus.Gauge
	NotificationsTotal   *prometheus.CounterVec
	OverdueScanDuration  *prometheus.HistogramVec
	NotifierMessageTotal *prometheus.CounterVec
}

var (
	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		BooksCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "library_books_created_total",
			Help: "Total number of books added to the catalog.",
		}),
		LoansCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "library_loans_created_total",
			Help: "Total number of loans created.",
		}),
		LoansReturnedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "library_loans_returned_total",
			Help: "Total number of loans marked as returned.",
		}),
		LoanConflictsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "library_loan_conflicts_total",
			Help: "Loan creations rejected or retried because the book was contended.",
		}, []string{"outcome"}),
		OverdueLoansFound: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "library_overdue_loans_found",
			Help: "Number of overdue loans found by the last scan.",
		}),
		NotificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "library_notifications_sent_total",
			Help: "Notification batches handed to a transport.",
		}, []string{"transport", "status"}),
		OverdueScanDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "library_overdue_scan_duration_seconds",
			Help:    "Duration of overdue loan scans.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		NotifierMessageTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "library_notifier_messages_total",
			Help: "Mail requests consumed by the notifier worker.",
		}, []string{"status"}),
	}
)

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordBookCreated() {
	Business.BooksCreatedTotal.Inc()
}

func RecordLoanCreated() {
	Business.LoansCreatedTotal.Inc()
}

func RecordLoanReturned() {
	Business.LoansReturnedTotal.Inc()
}

// RecordLoanConflict counts a contended loan creation; outcome is "retried" or "rejected".
func RecordLoanConflict(outcome string) {
	Business.LoanConflictsTotal.WithLabelValues(outcome).Inc()
}

func RecordOverdueScan(found int, status string, duration time.Duration) {
	Business.OverdueLoansFound.Set(float64(found))
	Business.OverdueScanDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordNotification(transport, status string) {
	Business.NotificationsTotal.WithLabelValues(transport, status).Inc()
}

func RecordNotifierMessage(status string) {
	Business.NotifierMessageTotal.WithLabelValues(status).Inc()
}
