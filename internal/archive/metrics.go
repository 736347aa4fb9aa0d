package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched tracks HTML pages fetched successfully.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bindery_pages_fetched_total",
		Help: "The total number of HTML pages fetched successfully.",
	})
	// TotalFetchErrors tracks requests that resulted in an error.
	TotalFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bindery_fetch_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalImagesDownloaded tracks images downloaded and validated.
	TotalImagesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bindery_images_downloaded_total",
		Help: "The total number of images downloaded and validated.",
	})
	// TotalImagesRejected tracks images rejected during validation.
	TotalImagesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bindery_images_rejected_total",
		Help: "The total number of images rejected as corrupt or too small.",
	})
	// TotalChaptersFailed tracks chapters that reached a failed terminal state.
	TotalChaptersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bindery_chapters_failed_total",
		Help: "The total number of chapters that failed to produce an artifact.",
	})
)
