package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/sftp"
)

// transferChannelLocked returns the cached SFTP sub-channel if it still
// answers a trivial probe, otherwise discards it and opens a new one on the
// live transport. Caller must hold c.mu.
func (c *Conn) transferChannelLocked() (*sftp.Client, error) {
	if c.sftp != nil {
		if _, err := c.sftp.Getwd(); err == nil {
			return c.sftp, nil
		}
		_ = c.sftp.Close()
		c.sftp = nil
	}

	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	client, err := sftp.NewClient(c.ssh)
	if err != nil {
		return nil, &TransportFault{Op: "sftp", Err: fmt.Errorf("failed to open file transfer channel: %v", err)}
	}
	c.sftp = client
	return c.sftp, nil
}

// dropTransferChannelLocked discards the cached sub-channel so the next use
// recreates it. Caller must hold c.mu.
func (c *Conn) dropTransferChannelLocked() {
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
}

// Put uploads a regular local file to remotePath, reporting progress as
// data moves. A transport fault triggers one reconnect-and-full-reupload
// cycle; a remote I/O error is reported directly without retry.
func (c *Conn) Put(localPath, remotePath string, onProgress ProgressFunc) TransferResult {
	info, err := os.Stat(localPath)
	if err != nil {
		return TransferResult{Err: fmt.Errorf("%w: %s", ErrNotFound, localPath)}
	}
	if !info.Mode().IsRegular() {
		return TransferResult{Err: fmt.Errorf("%w: %s", ErrNotRegularFile, localPath)}
	}
	total := info.Size()

	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.uploadFileLocked(localPath, remotePath, total, onProgress)
	if err != nil && isTransportFault(err) {
		log.Printf("Upload of %s failed (%v), retrying after reconnect", localPath, err)
		if rerr := c.retryChannelLocked(); rerr != nil {
			return TransferResult{Err: rerr}
		}
		err = c.uploadFileLocked(localPath, remotePath, total, onProgress)
	}
	if err != nil {
		return transferFailure("write", remotePath, err)
	}
	return TransferResult{Success: true, BytesTransferred: total}
}

// Get downloads a remote file to localPath, creating missing local parent
// directories first. A missing remote file is a direct failure with no
// retry and no local artifact; the transport-fault retry split matches Put.
func (c *Conn) Get(remotePath, localPath string, onProgress ProgressFunc) TransferResult {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return TransferResult{Err: fmt.Errorf("failed to create local directory: %w", err)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.downloadFileLocked(remotePath, localPath, onProgress)
	if err != nil && isTransportFault(err) {
		log.Printf("Download of %s failed (%v), retrying after reconnect", remotePath, err)
		if rerr := c.retryChannelLocked(); rerr != nil {
			return TransferResult{Err: rerr}
		}
		n, err = c.downloadFileLocked(remotePath, localPath, onProgress)
	}
	if err != nil {
		return transferFailure("read", remotePath, err)
	}
	return TransferResult{Success: true, BytesTransferred: n}
}

// PutDir mirrors a local directory tree onto the remote host. The walk is
// pre-order, directories before their files, driven by an explicit stack so
// pathological depth cannot overflow the goroutine stack. Per-file failures
// are collected; the walk always completes.
func (c *Conn) PutDir(localDir, remoteDir string, onProgress DirProgressFunc) BulkTransferResult {
	info, err := os.Stat(localDir)
	if err != nil {
		return BulkTransferResult{Err: fmt.Errorf("%w: %s", ErrNotFound, localDir)}
	}
	if !info.IsDir() {
		return BulkTransferResult{Err: fmt.Errorf("%w: %s", ErrNotADirectory, localDir)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	remoteDir = filepath.ToSlash(remoteDir)

	sc, err := c.transferChannelLocked()
	if err != nil {
		return BulkTransferResult{Err: err}
	}
	if err := sc.MkdirAll(remoteDir); err != nil {
		return BulkTransferResult{Err: transferFailure("mkdir", remoteDir, err).Err}
	}

	var result BulkTransferResult

	type dirPair struct{ local, remote string }
	stack := []dirPair{{localDir, remoteDir}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(cur.local)
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, FileFailure{Path: cur.local, Err: err})
			continue
		}

		var subdirs []dirPair
		for _, entry := range entries {
			localPath := filepath.Join(cur.local, entry.Name())
			remotePath := path.Join(cur.remote, entry.Name())

			if entry.IsDir() {
				// Best effort; a failed mkdir surfaces through the file
				// uploads into that directory.
				if sc, err := c.transferChannelLocked(); err == nil {
					_ = sc.MkdirAll(remotePath)
				}
				subdirs = append(subdirs, dirPair{localPath, remotePath})
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				result.FailedFiles = append(result.FailedFiles, FileFailure{Path: localPath, Err: err})
				continue
			}

			if err := c.transferDirFileLocked(localPath, func() error {
				return c.uploadFileLocked(localPath, remotePath, info.Size(), fileProgress(onProgress, localPath))
			}); err != nil {
				result.FailedFiles = append(result.FailedFiles, FileFailure{Path: localPath, Err: err})
				continue
			}
			result.FilesTransferred++
			result.TotalBytes += info.Size()
		}

		// Reverse push keeps pop order identical to the sorted ReadDir
		// order, so fixtures see a deterministic traversal.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	result.finalize()
	return result
}

// GetDir mirrors a remote directory tree into localDir, symmetric to
// PutDir. A missing or non-directory remote path fails immediately.
func (c *Conn) GetDir(remoteDir, localDir string, onProgress DirProgressFunc) BulkTransferResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	remoteDir = filepath.ToSlash(remoteDir)

	sc, err := c.transferChannelLocked()
	if err != nil {
		return BulkTransferResult{Err: err}
	}
	info, err := sc.Stat(remoteDir)
	if err != nil {
		return BulkTransferResult{Err: transferFailure("stat", remoteDir, err).Err}
	}
	if !info.IsDir() {
		return BulkTransferResult{Err: fmt.Errorf("%w: %s", ErrNotADirectory, remoteDir)}
	}

	if err := os.MkdirAll(localDir, 0755); err != nil {
		return BulkTransferResult{Err: fmt.Errorf("failed to create local directory: %w", err)}
	}

	var result BulkTransferResult

	type dirPair struct{ remote, local string }
	stack := []dirPair{{remoteDir, localDir}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sc, err := c.transferChannelLocked()
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, FileFailure{Path: cur.remote, Err: err})
			continue
		}
		entries, err := sc.ReadDir(cur.remote)
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, FileFailure{Path: cur.remote, Err: err})
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		var subdirs []dirPair
		for _, entry := range entries {
			remotePath := path.Join(cur.remote, entry.Name())
			localPath := filepath.Join(cur.local, entry.Name())

			if entry.IsDir() {
				if err := os.MkdirAll(localPath, 0755); err != nil {
					result.FailedFiles = append(result.FailedFiles, FileFailure{Path: remotePath, Err: err})
					continue
				}
				subdirs = append(subdirs, dirPair{remotePath, localPath})
				continue
			}
			if !entry.Mode().IsRegular() {
				continue
			}

			if err := c.transferDirFileLocked(remotePath, func() error {
				_, err := c.downloadFileLocked(remotePath, localPath, fileProgress(onProgress, remotePath))
				return err
			}); err != nil {
				result.FailedFiles = append(result.FailedFiles, FileFailure{Path: remotePath, Err: err})
				continue
			}
			result.FilesTransferred++
			result.TotalBytes += entry.Size()
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	result.finalize()
	return result
}

// transferDirFileLocked runs one per-file transfer attempt inside a
// directory walk, granting it the same single reconnect-and-retry cycle a
// standalone transfer gets. The walk itself is never restarted.
func (c *Conn) transferDirFileLocked(displayPath string, attempt func() error) error {
	err := attempt()
	if err == nil || !isTransportFault(err) {
		return err
	}
	log.Printf("Transfer of %s failed (%v), retrying after reconnect", displayPath, err)
	if rerr := c.retryChannelLocked(); rerr != nil {
		return rerr
	}
	return attempt()
}

// retryChannelLocked performs the transport-fault recovery sequence: drop
// the cached sub-channel, reconnect, and let the next transferChannelLocked
// call reopen it.
func (c *Conn) retryChannelLocked() error {
	c.dropTransferChannelLocked()
	return c.reconnectLocked()
}

// uploadFileLocked streams one file to the remote host. total is the local
// size computed up front; the final progress event always reports it.
func (c *Conn) uploadFileLocked(localPath, remotePath string, total int64, onProgress ProgressFunc) error {
	sc, err := c.transferChannelLocked()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := sc.Create(filepath.ToSlash(remotePath))
	if err != nil {
		return err
	}

	pw := &progressWriter{cb: onProgress, total: total, lastPercent: -1}
	if _, err := io.Copy(io.MultiWriter(dst, pw), src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	pw.finish()
	return nil
}

// downloadFileLocked streams one remote file to localPath. The remote stat
// happens first so the size is known before any local file exists; on any
// failure after creation the partial local file is removed.
func (c *Conn) downloadFileLocked(remotePath, localPath string, onProgress ProgressFunc) (int64, error) {
	sc, err := c.transferChannelLocked()
	if err != nil {
		return 0, err
	}

	remotePath = filepath.ToSlash(remotePath)
	info, err := sc.Stat(remotePath)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrNotRegularFile, remotePath)
	}
	total := info.Size()

	src, err := sc.Open(remotePath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}

	pw := &progressWriter{cb: onProgress, total: total, lastPercent: -1}
	n, err := io.Copy(io.MultiWriter(dst, pw), src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return n, err
	}

	pw.finish()
	return n, nil
}

// transferFailure classifies a terminal transfer error into the fault
// taxonomy: transport faults keep their identity (the retry budget is
// already spent by the time this runs), everything else is remote I/O.
func transferFailure(op, p string, err error) TransferResult {
	if isTransportFault(err) {
		return TransferResult{Err: &TransportFault{Op: op, Err: err}}
	}
	var connErr *ConnectError
	if errors.As(err, &connErr) {
		return TransferResult{Err: err}
	}
	return TransferResult{Err: &RemoteIOFault{Op: op, Path: p, Err: err}}
}

// fileProgress adapts a directory-level progress callback to the per-file
// callback shape used by the single-file primitives.
func fileProgress(cb DirProgressFunc, p string) ProgressFunc {
	if cb == nil {
		return nil
	}
	return func(transferred, total int64) {
		cb(p, transferred, total)
	}
}

// progressWriter counts bytes as they move and fires the progress callback
// synchronously on the transferring goroutine. Intermediate events are
// throttled to whole-percent changes; finish delivers the guaranteed final
// event.
type progressWriter struct {
	cb          ProgressFunc
	total       int64
	transferred int64
	lastPercent int
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.transferred += int64(len(p))
	if w.cb != nil && w.total > 0 {
		percent := int(w.transferred * 100 / w.total)
		if percent != w.lastPercent {
			w.lastPercent = percent
			w.cb(w.transferred, w.total)
		}
	}
	return len(p), nil
}

func (w *progressWriter) finish() {
	if w.cb != nil {
		w.cb(w.total, w.total)
	}
}

// Stat looks up a remote path. Callers use it to decide between the
// single-file and directory forms of a transfer.
func (c *Conn) Stat(remotePath string) (os.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sc, err := c.transferChannelLocked()
	if err != nil {
		return nil, err
	}
	info, err := sc.Stat(filepath.ToSlash(remotePath))
	if err != nil {
		return nil, transferFailure("stat", remotePath, err).Err
	}
	return info, nil
}
