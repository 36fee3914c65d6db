package prompt

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// OverridesFile is the file name watched under $GHOST_HOME. Keys map to
// prompt slots: system, dba, coding, planner, critic, smart_memory,
// post_mortem, perfect_it, dream, self_play, judge, playbook_compression,
// fact_check.
const OverridesFile = "prompts.yaml"

// LoadOverrides reads the override file. A missing file is not an
// error, it clears any previously loaded overrides.
func (p *Provider) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.setOverrides(nil)
			return nil
		}
		return err
	}

	overrides := map[string]string{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return err
	}
	p.setOverrides(overrides)
	return nil
}

func (p *Provider) setOverrides(overrides map[string]string) {
	p.mu.Lock()
	p.overrides = overrides
	p.mu.Unlock()
}

// WatchOverrides hot-reloads the override file until ctx is done. The
// parent directory is watched because editors replace files on save.
func (p *Provider) WatchOverrides(ctx context.Context, path string, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	log := logger.With(zap.String("component", "prompt-watcher"))
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := p.LoadOverrides(path); err != nil {
					log.Warn("Failed to reload prompt overrides", zap.Error(err))
					continue
				}
				log.Info("Prompt overrides reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Prompt watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
