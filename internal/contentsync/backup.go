package contentsync

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/content-control-plane/ccp/internal/metrics"
)

const backupTimeFormat = "20060102T150405.000000000Z"

// prepareSwitch backs up and clears the working copy before it leaves branch
// current. Nothing happens when it only holds VCS metadata.
func (c *Controller) prepareSwitch(current string) error {
	patterns, err := c.backup.MetadataPatterns()
	if err != nil {
		return &ConfigurationError{Op: "backup", Reason: err}
	}

	wc := c.repo.WorkingCopy()

	names, err := wc.List()
	if err != nil {
		return backend("list", err)
	}

	isMetadata := func(name string) bool {
		return matchAny(patterns, name)
	}

	content := 0
	for _, name := range names {
		if !isMetadata(name) {
			content++
		}
	}

	if content == 0 {
		return nil
	}

	if err := c.backup.ValidateDirectory(wc.Path()); err != nil {
		return &ConfigurationError{Op: "backup", Reason: err}
	}

	dir := filepath.Join(c.backup.DirectoryFor(wc.Path()), backupName(current, c.now()))

	if err := wc.CopyTo(dir); err != nil {
		return backend("backup", err)
	}

	metrics.BackupCount.Inc()
	c.log.Infof("backed up %d entries of branch %q to %s", content, current, dir)

	if err := wc.Clear(isMetadata); err != nil {
		return backend("clear", err)
	}

	return nil
}

func matchAny(patterns []glob.Glob, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// backupName names the backup of branch taken at t.
func backupName(branch string, t time.Time) string {
	if branch == "" {
		branch = "unknown"
	}
	return strings.ReplaceAll(branch, "/", "-") + "-" + t.UTC().Format(backupTimeFormat)
}
