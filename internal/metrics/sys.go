package metrics

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"time"
)

// SysHealth represents real-time process metrics.
type SysHealth struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	Goroutines   int    `json:"goroutines"`
	DataDiskSize string `json:"data_disk_size"`
}

// Health is the snapshot served on /health by the HTTP API and the bot.
type Health struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Recipes   int       `json:"recipes"`
	PlanItems int       `json:"plan_items"`
	Backend   string    `json:"remote_backend"`
	SignedIn  bool      `json:"signed_in"`
	System    SysHealth `json:"system"`
}

// Source exposes the application state a health report needs.
type Source interface {
	RecipeCount() int
	PlanSize() int
	Backend() string
	SignedIn() bool
}

// Reporter builds health snapshots for a data directory.
type Reporter struct {
	source  Source
	dataDir string
	started time.Time
}

// NewReporter creates a reporter. The uptime is counted from this call.
func NewReporter(source Source, dataDir string) *Reporter {
	return &Reporter{source: source, dataDir: dataDir, started: time.Now()}
}

// Report collects a health snapshot.
func (r *Reporter) Report() Health {
	return Health{
		Status:    "ok",
		Uptime:    time.Since(r.started).Truncate(time.Second).String(),
		Recipes:   r.source.RecipeCount(),
		PlanItems: r.source.PlanSize(),
		Backend:   r.source.Backend(),
		SignedIn:  r.source.SignedIn(),
		System:    GetSysHealth(r.dataDir),
	}
}

// GetSysHealth collects real-time process data.
func GetSysHealth(dataPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
		DataDiskSize: FormatBytes(dirSize(dataPath)),
	}
}

// dirSize sums regular file sizes below path. A missing directory counts as empty.
func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size
}

// FormatBytes renders a byte count with a binary unit, e.g. "1.5 KB".
func FormatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
