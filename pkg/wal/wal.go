package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rwxr-xr-x (擁有者全開，其他人可讀可執行) - 適用於目錄
	FileModeExecutable fs.FileMode = 0755

	// rw------- (只有擁有者可讀寫) - 適用於帳務資料
	FileModePrivate fs.FileMode = 0600
)

// ErrClosed WAL 已關閉
var ErrClosed = errors.New("wal: closed")

// WAL 是 append-only 的 JSON Lines 檔案，每筆紀錄寫入後立即 fsync
// 寫入或 fsync 失敗的紀錄會被截掉，重啟時不會重放被拒絕的異動
type WAL struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
	// broken 截斷失敗後 WAL 已不可信，之後的寫入一律回傳此錯誤
	broken error
	sync   func(*os.File) error
}

// NewWAL 開啟或建立一個 WAL 檔案，上層目錄不存在時一併建立
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, FileModeExecutable); err != nil {
			return nil, fmt.Errorf("wal: create dir %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{file: file, path: path, sync: (*os.File).Sync}, nil
}

// Path 回傳 WAL 檔案路徑
func (w *WAL) Path() string {
	return w.path
}

// Write 寫入一筆資料並刷入硬碟
// 一筆紀錄只呼叫一次 write，避免與其他紀錄交錯
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal: encode record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.broken != nil {
		return w.broken
	}

	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("wal: stat: %w", err)
	}
	offset := info.Size()
	if _, err := w.file.Write(line); err != nil {
		return w.rollback(offset, fmt.Errorf("wal: write: %w", err))
	}
	if err := w.sync(w.file); err != nil {
		return w.rollback(offset, fmt.Errorf("wal: sync: %w", err))
	}
	return nil
}

// rollback 將檔案截回寫入前的長度
// 截斷本身失敗時無法確定檔案內容，WAL 進入 broken 狀態
func (w *WAL) rollback(offset int64, cause error) error {
	err := w.file.Truncate(offset)
	if err == nil {
		err = w.sync(w.file)
	}
	if err != nil {
		w.broken = fmt.Errorf("wal: unusable after failed write: %w", errors.Join(cause, err))
		return w.broken
	}
	return cause
}

// Sync 強制刷入硬碟 (關鍵！)
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.sync(w.file)
}

// Close 關閉檔案，重複呼叫不會出錯
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// ReadAll 由頭依序讀取所有紀錄
//
// callback 每次接收一行 JSON，這樣可以避免一次將所有資料載入記憶體
// 最後一行沒有換行符號代表寫到一半就中斷 (torn write)，該筆從未被確認過，
// 會被截斷丟棄，之後的寫入接在最後一筆完整紀錄後面
//
// 參數:
//
//	callback: 處理單筆紀錄，回傳錯誤會中止讀取
//
// 回傳:
//
//	error: 讀檔錯誤、callback 錯誤或中間紀錄損毀
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(w.file)
	var offset int64
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				return w.file.Truncate(offset)
			}
			return nil
		}
		if err != nil {
			return err
		}
		offset += int64(len(line))

		raw := bytes.TrimSpace(line)
		if len(raw) == 0 {
			continue
		}
		if !json.Valid(raw) {
			return fmt.Errorf("wal: corrupt record at line %d", lineNo)
		}
		if err := callback(raw); err != nil {
			return err
		}
	}
}
