/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cleaner

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/argoplatform/argonaut/internal/config"
)

// BoundsWatcher is the only runtime-mutable ambient configuration in
// the system: every other process-wide table (schema prompt,
// geography gazetteer) is loaded once at startup and never touched
// again. Bounds is safe for concurrent readers while a reload is in
// flight.
type BoundsWatcher struct {
	path    string
	current atomic.Pointer[BoundsTable]
	watcher *fsnotify.Watcher
	log     *zap.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBoundsWatcher seeds the table with defaults, then with path's
// content if it already exists. path may be empty, in which case the
// watcher only ever serves the defaults.
func NewBoundsWatcher(path string, defaults config.OutlierBounds, log *zap.Logger) (*BoundsWatcher, error) {
	bw := &BoundsWatcher{path: path, log: log}
	bw.current.Store(FromConfig(defaults))

	if path == "" {
		return bw, nil
	}

	if loaded, err := loadBoundsFile(path); err == nil {
		bw.current.Store(loaded)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load outlier bounds file: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	bw.watcher = w
	return bw, nil
}

// Bounds returns the table in effect right now.
func (bw *BoundsWatcher) Bounds() *BoundsTable {
	return bw.current.Load()
}

// Start begins watching path for changes in the background. It is a
// no-op when the watcher was built with an empty path. Start returns
// once the initial watch is registered; Stop must be called to release
// the underlying inotify handle.
func (bw *BoundsWatcher) Start(ctx context.Context) error {
	if bw.watcher == nil {
		return nil
	}
	if err := bw.watcher.Add(bw.path); err != nil {
		bw.log.Warn("outlier bounds file not watchable yet, using current bounds", zap.String("path", bw.path), zap.Error(err))
	}

	bw.stopCh = make(chan struct{})
	bw.doneCh = make(chan struct{})
	go bw.run(ctx)
	return nil
}

// Stop releases the fsnotify handle. Safe to call on a watcher that
// was never started.
func (bw *BoundsWatcher) Stop() {
	if bw.watcher == nil {
		return
	}
	if bw.stopCh != nil {
		close(bw.stopCh)
		<-bw.doneCh
	}
	bw.watcher.Close()
}

func (bw *BoundsWatcher) run(ctx context.Context) {
	defer close(bw.doneCh)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case <-bw.stopCh:
			return
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, bw.reload)
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.log.Warn("outlier bounds watcher error", zap.Error(err))
		}
	}
}

func (bw *BoundsWatcher) reload() {
	loaded, err := loadBoundsFile(bw.path)
	if err != nil {
		bw.log.Warn("failed to reload outlier bounds file, keeping current table", zap.String("path", bw.path), zap.Error(err))
		return
	}
	bw.current.Store(loaded)
	bw.log.Info("outlier bounds reloaded", zap.String("path", bw.path))
}

func loadBoundsFile(path string) (*BoundsTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b config.OutlierBounds
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse outlier bounds yaml: %w", err)
	}
	return FromConfig(b), nil
}
