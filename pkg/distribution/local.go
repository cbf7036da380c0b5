package distribution

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// LocalChannel copies the export file to a directory under the export
// root. Every resolved path is re-validated against the root after
// collapsing symlinks; nothing the filename pattern produces may escape it.
type LocalChannel struct {
	root string
	log  logger.Logger
}

// NewLocalChannel creates a local filesystem delivery channel
func NewLocalChannel(root string, log logger.Logger) *LocalChannel {
	return &LocalChannel{root: root, log: log}
}

// Deliver copies the generated file into the configured target directory
func (c *LocalChannel) Deliver(ctx context.Context, schedule *models.ExportSchedule, exp *models.Export) models.ChannelResult {
	cfg := schedule.DistributionConfig.Local
	now := time.Now().UTC()

	target, err := c.deliver(schedule, exp, cfg)
	if err != nil {
		if domain.HasCode(err, domain.ErrCodePathTraversal) {
			// full path detail stays in server logs only
			c.log.Error("local delivery rejected path outside export root",
				"schedule_id", schedule.ID, "error", err)
		}
		return models.ChannelResult{
			Status:    models.ChannelStatusFailed,
			Detail:    domain.ClientMessage(err),
			Timestamp: now,
		}
	}

	return models.ChannelResult{
		Status:    models.ChannelStatusSuccess,
		Detail:    filepath.Base(target),
		Timestamp: now,
	}
}

func (c *LocalChannel) deliver(schedule *models.ExportSchedule, exp *models.Export, cfg *models.LocalChannelConfig) (string, error) {
	source, err := export.SafeJoin(c.root, exp.Filename)
	if err != nil {
		return "", err
	}

	dir, err := c.targetDir(cfg)
	if err != nil {
		return "", err
	}

	name := renderPattern(cfg.FilenamePattern, schedule, exp)
	target, err := c.containedPath(dir, name)
	if err != nil {
		return "", err
	}

	if !cfg.Overwrite {
		target, err = c.uniquePath(dir, target)
		if err != nil {
			return "", err
		}
	}

	if err := copyFile(source, target); err != nil {
		return "", domain.NewDistributionChannelError(models.ChannelLocal, err)
	}
	return target, nil
}

// targetDir resolves and creates the delivery directory, verifying it sits
// under the export root even after symlink resolution.
func (c *LocalChannel) targetDir(cfg *models.LocalChannelConfig) (string, error) {
	absRoot, err := filepath.Abs(c.root)
	if err != nil {
		return "", domain.NewInternalError(err)
	}

	dir := absRoot
	if cfg.Directory != "" {
		dir = filepath.Join(absRoot, cfg.Directory)
	}
	if cfg.DatePartition {
		now := time.Now().UTC()
		dir = filepath.Join(dir, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()))
	}

	if err := assertUnder(absRoot, dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", domain.NewDistributionChannelError(models.ChannelLocal, err)
	}

	// re-check after creation with symlinks collapsed
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", domain.NewInternalError(err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", domain.NewInternalError(err)
	}
	if err := assertUnder(resolvedRoot, resolved); err != nil {
		return "", err
	}
	return dir, nil
}

// containedPath joins name onto dir and verifies the result stays inside
func (c *LocalChannel) containedPath(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	if err := assertUnder(dir, target); err != nil {
		return "", err
	}
	return target, nil
}

// uniquePath appends -1, -2… until the name is unused
func (c *LocalChannel) uniquePath(dir, target string) (string, error) {
	candidate := target
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)

	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		if err := assertUnder(dir, candidate); err != nil {
			return "", err
		}
	}
}

// assertUnder rejects any path outside root once cleaned
func assertUnder(root, path string) error {
	if path == root {
		return nil
	}
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return domain.NewPathTraversalError(path)
	}
	return nil
}

// renderPattern expands the filename pattern tokens. An empty pattern
// keeps the generated filename.
func renderPattern(pattern string, schedule *models.ExportSchedule, exp *models.Export) string {
	if pattern == "" {
		return exp.Filename
	}
	replacer := strings.NewReplacer(
		"{name}", slugify(schedule.Name),
		"{date}", time.Now().UTC().Format("2006-01-02"),
		"{filename}", exp.Filename,
		"{ext}", strings.TrimPrefix(filepath.Ext(exp.Filename), "."),
	)
	return replacer.Replace(pattern)
}

// slugify makes a schedule name safe for use inside a filename
func slugify(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			sb.WriteRune('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return out.Close()
}
