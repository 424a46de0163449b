package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "s3files_uploads_total",
		Help: "Stored files created, by resulting remote status.",
	}, []string{"status"})

	derivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "s3files_derivations_total",
		Help: "Derivation attempts, by derivation and outcome.",
	}, []string{"derivation", "outcome"})

	migrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "s3files_migrations_total",
		Help: "Copies of local files to S3, by outcome.",
	}, []string{"outcome"})

	migrationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "s3files_migration_duration_seconds",
		Help:    "Time taken to copy one file to S3.",
		Buckets: prometheus.DefBuckets,
	})

	expiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "s3files_expired_total",
		Help: "Expired files removed by the sweeper.",
	})
)
