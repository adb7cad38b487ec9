package wal

import "os"

// SetSyncFunc 讓測試替換 fsync
func SetSyncFunc(w *WAL, fn func(*os.File) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sync = fn
}
