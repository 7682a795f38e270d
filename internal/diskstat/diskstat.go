// Package diskstat reports free disk space and the space taken by stored ad media.
package diskstat

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	WarnNone   = 0
	WarnYellow = 1
	WarnRed    = 2
	WarnBlock  = 3
)

const assetsDir = "ad-assets"

type Stats struct {
	TotalBytes      uint64            `json:"total_bytes"`
	FreeBytes       uint64            `json:"free_bytes"`
	FilesBytes      uint64            `json:"files_bytes"`
	AssetBytes      uint64            `json:"asset_bytes"`
	AssetFiles      int               `json:"asset_files"`
	CollectionBytes map[string]uint64 `json:"collection_bytes"`
	CapturedAt      time.Time         `json:"captured_at"`
}

func (s Stats) PctFree() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.FreeBytes) / float64(s.TotalBytes) * 100
}

func (s Stats) WarningLevel(yellowPct, redPct, blockPct float64) int {
	pct := s.PctFree()
	switch {
	case pct <= blockPct:
		return WarnBlock
	case pct <= redPct:
		return WarnRed
	case pct <= yellowPct:
		return WarnYellow
	default:
		return WarnNone
	}
}

// Cache holds the latest Stats for filesDir, refreshed every ttl once started.
type Cache struct {
	mu       sync.RWMutex
	stats    Stats
	filesDir string
	ttl      time.Duration
	stop     chan struct{}
	once     sync.Once
}

func New(filesDir string, ttl time.Duration) *Cache {
	return &Cache{
		filesDir: filesDir,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
}

func (c *Cache) Start() {
	c.Refresh()
	go func() {
		t := time.NewTicker(c.ttl)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.Refresh()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) Get() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Refresh recomputes the stats; on a statfs error the previous values stay.
func (c *Cache) Refresh() {
	total, free, err := statFS(c.filesDir)
	if err != nil {
		return
	}
	s := walk(c.filesDir)
	s.TotalBytes = total
	s.FreeBytes = free
	s.CapturedAt = time.Now()

	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

func statFS(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return bsize * stat.Blocks, bsize * stat.Bavail, nil
}

func walk(root string) Stats {
	s := Stats{CollectionBytes: make(map[string]uint64)}
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := uint64(info.Size())
		s.FilesBytes += size

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) >= 3 && parts[0] == assetsDir && !strings.HasPrefix(d.Name(), ".") {
			s.AssetBytes += size
			s.AssetFiles++
			s.CollectionBytes[parts[1]] += size
		}
		return nil
	})
	return s
}
