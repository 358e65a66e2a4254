package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file and invokes onChange with the freshly loaded
// config whenever it is rewritten. Falls back to mtime polling when fsnotify
// is unavailable (some container filesystems).
func Watch(ctx context.Context, path string, onChange func(*Config)) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("Config Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else {
		if err := watcher.Add(path); err != nil {
			log.Printf("Config Watcher: failed to watch %s (%v), falling back to polling", path, err)
			usePolling = true
			watcher.Close()
		}
	}

	go func() {
		if !usePolling {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
						// Editors write in bursts; let the file settle.
						time.Sleep(100 * time.Millisecond)
						reload(path, onChange)
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("Config Watcher Error: %v", err)
				}
			}
		}

		// Polling fallback
		var lastMod time.Time
		if fi, err := os.Stat(path); err == nil {
			lastMod = fi.ModTime()
		}
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fi, err := os.Stat(path)
				if err != nil {
					continue
				}
				if fi.ModTime().After(lastMod) {
					lastMod = fi.ModTime()
					reload(path, onChange)
				}
			}
		}
	}()
}

func reload(path string, onChange func(*Config)) {
	cfg, err := Load(path)
	if err != nil {
		log.Printf("[ERROR] Config Watcher: reload failed, keeping previous config: %v", err)
		return
	}
	log.Printf("Config Watcher: %s changed, reloaded", path)
	onChange(cfg)
}
