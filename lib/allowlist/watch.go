// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package allowlist

import (
	"encoding/binary"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Watch loads the rules file and starts an inotify watcher that reloads
// it on every edit. The cleanup function stops the watcher and closes
// the inotify fd.
//
// The watcher monitors the parent directory for IN_CLOSE_WRITE and
// IN_MOVED_TO events on the target filename. Watching the directory
// rather than the file catches atomic replaces: editors that write a
// temp file and rename it create a new inode, and a file-level watch on
// the old inode would miss the swap.
func Watch(path string, logger *slog.Logger) (*List, func(), error) {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}

	list, err := Load(absolutePath)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, err
	}
	_, err = unix.InotifyAddWatch(fd, filepath.Dir(absolutePath), unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	stop := make(chan struct{})
	go watchLoop(fd, absolutePath, list, logger, stop)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { close(stop) })
	}
	return list, cleanup, nil
}

// watchLoop polls the inotify fd and reloads the rules when the target
// file changes. Uses poll(2) with a 100ms timeout so the stop channel
// is checked promptly. After a matching event it waits 50ms and drains
// the queue, coalescing the write bursts editors produce into a single
// re-read.
func watchLoop(fd int, path string, list *List, logger *slog.Logger, stop <-chan struct{}) {
	defer unix.Close(fd)

	filename := filepath.Base(path)
	buffer := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		ready, err := unix.Poll([]unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// Fatal poll error. The daemon keeps running with the
			// rules it has; edits stop taking effect until restart.
			logger.Error("allowlist watcher stopped", "path", path, "error", err)
			return
		}
		if ready == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			logger.Error("allowlist watcher stopped", "path", path, "error", err)
			return
		}

		if !eventsName(buffer[:bytesRead], filename) {
			continue
		}

		time.Sleep(50 * time.Millisecond)
		drainPending(fd, buffer)

		if err := list.reload(path); err != nil {
			// Mid-write, briefly absent during an atomic replace, or a
			// genuine syntax error. Previous rules stay active either
			// way; a completed good write triggers its own event.
			logger.Warn("allowlist reload failed, keeping previous rules", "path", path, "error", err)
			continue
		}
		logger.Info("allowlist reloaded", "path", path, "rules", list.Len())
	}
}

// eventsName reports whether any inotify event in the buffer names the
// target file. Event layout per inotify(7): a fixed header (wd, mask,
// cookie, len) followed by len bytes of null-padded name.
func eventsName(buffer []byte, filename string) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}
		name := buffer[offset+unix.SizeofInotifyEvent : offset+eventSize]
		if nullTerminated(name) == filename {
			return true
		}
		offset += eventSize
	}
	return false
}

func nullTerminated(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// drainPending reads and discards queued inotify events after the
// debounce window.
func drainPending(fd int, buffer []byte) {
	for {
		if _, err := unix.Read(fd, buffer); err != nil {
			return
		}
	}
}
