package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences an archiving run. All values
// originate from Viper so the pipeline can be configured via file, env vars,
// or CLI flags, while staying testable without Viper.
type Config struct {
	ListingBase string
	ChapterBase string
	UserAgent   string

	RequestTimeout   time.Duration
	RateLimitPerHost int

	ChapterWorkers   int
	ImageConcurrency int
	MaxParts         int

	ImageMaxRetries   int
	ImageRetryBackoff time.Duration
	MinImageEdge      int
	ImageExtensions   []string
	NextKeywords      []string

	OutputDir   string
	KeepScratch bool
	Force       bool

	HeadlessEnabled     bool
	HeadlessConcurrency int
	HeadlessTimeout     time.Duration
	HeadlessHostQPS     float64
	DetectorMinBytes    int
	DetectorSelectors   []string
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		ListingBase:         v.GetString("site.listing_base"),
		ChapterBase:         v.GetString("site.chapter_base"),
		UserAgent:           v.GetString("site.user_agent"),
		RequestTimeout:      v.GetDuration("http.request_timeout"),
		RateLimitPerHost:    v.GetInt("http.rate_limit_per_host"),
		ChapterWorkers:      v.GetInt("pipeline.chapter_workers"),
		ImageConcurrency:    v.GetInt("images.concurrency"),
		MaxParts:            v.GetInt("pipeline.max_parts"),
		ImageMaxRetries:     v.GetInt("images.max_retries"),
		ImageRetryBackoff:   v.GetDuration("images.retry_backoff"),
		MinImageEdge:        v.GetInt("images.min_edge"),
		ImageExtensions:     normalizeList(v.GetStringSlice("images.extensions")),
		NextKeywords:        normalizeList(v.GetStringSlice("pipeline.next_keywords")),
		OutputDir:           v.GetString("output.dir"),
		KeepScratch:         v.GetBool("output.keep_scratch"),
		Force:               v.GetBool("output.force"),
		HeadlessEnabled:     v.GetBool("headless.enabled"),
		HeadlessConcurrency: v.GetInt("headless.max_concurrency"),
		HeadlessTimeout:     v.GetDuration("headless.timeout"),
		HeadlessHostQPS:     v.GetFloat64("headless.host_qps"),
		DetectorMinBytes:    v.GetInt("detector.min_html_bytes"),
		DetectorSelectors:   normalizeList(v.GetStringSlice("detector.selectors")),
	}
	return cfg, cfg.Validate()
}

// SetDefaults registers the default configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("site.listing_base", "https://www.baozimh.com")
	v.SetDefault("site.chapter_base", "https://www.twmanga.com")
	v.SetDefault("site.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("http.request_timeout", 20*time.Second)
	v.SetDefault("http.rate_limit_per_host", 8)
	v.SetDefault("pipeline.chapter_workers", 4)
	v.SetDefault("pipeline.max_parts", 32)
	v.SetDefault("pipeline.next_keywords", []string{"下一頁", "下一章", "下一页", "next", "continue"})
	v.SetDefault("images.concurrency", 10)
	v.SetDefault("images.max_retries", 3)
	v.SetDefault("images.retry_backoff", 500*time.Millisecond)
	v.SetDefault("images.min_edge", 100)
	v.SetDefault("images.extensions", []string{".jpg", ".jpeg", ".png", ".webp"})
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.keep_scratch", false)
	v.SetDefault("output.force", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_concurrency", 1)
	v.SetDefault("headless.timeout", 25*time.Second)
	v.SetDefault("headless.host_qps", 1.0)
	v.SetDefault("detector.min_html_bytes", 512)
	v.SetDefault("detector.selectors", []string{})
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.ListingBase == "" {
		return fmt.Errorf("site.listing_base must be set")
	}
	if c.ChapterBase == "" {
		return fmt.Errorf("site.chapter_base must be set")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("site.user_agent must be set")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("http.request_timeout must be > 0")
	}
	if c.RateLimitPerHost <= 0 {
		return fmt.Errorf("http.rate_limit_per_host must be > 0")
	}
	if c.ChapterWorkers <= 0 {
		return fmt.Errorf("pipeline.chapter_workers must be > 0")
	}
	if c.ImageConcurrency <= 0 {
		return fmt.Errorf("images.concurrency must be > 0")
	}
	if c.MaxParts <= 0 {
		return fmt.Errorf("pipeline.max_parts must be > 0")
	}
	if c.ImageMaxRetries <= 0 {
		return fmt.Errorf("images.max_retries must be > 0")
	}
	if c.ImageRetryBackoff <= 0 {
		return fmt.Errorf("images.retry_backoff must be > 0")
	}
	if c.MinImageEdge < 0 {
		return fmt.Errorf("images.min_edge must be >= 0")
	}
	if len(c.ImageExtensions) == 0 {
		return fmt.Errorf("images.extensions must not be empty")
	}
	if len(c.NextKeywords) == 0 {
		return fmt.Errorf("pipeline.next_keywords must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.HeadlessEnabled && c.HeadlessConcurrency <= 0 {
		return fmt.Errorf("headless.max_concurrency must be > 0 when headless is enabled")
	}
	if c.HeadlessEnabled && c.HeadlessTimeout <= 0 {
		return fmt.Errorf("headless.timeout must be > 0 when headless is enabled")
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
