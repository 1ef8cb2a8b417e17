package client

import "fmt"

// CommandResult holds the fully drained output of one remote command.
// Output is buffered in memory, which makes Execute unsuitable for commands
// with unbounded output.
type CommandResult struct {
	Output     string
	Error      string
	ExitStatus int
}

// TransferResult is the outcome of a single-file transfer.
type TransferResult struct {
	Success          bool
	Err              error
	BytesTransferred int64
}

// FileFailure records one file that could not be transferred during a
// directory operation.
type FileFailure struct {
	Path string
	Err  error
}

// BulkTransferResult is the outcome of a directory transfer. Success is
// true iff no file failed; the walk itself always completes.
type BulkTransferResult struct {
	Success          bool
	Err              error
	FilesTransferred int
	TotalBytes       int64
	FailedFiles      []FileFailure
}

// finalize derives the summary fields once the walk is complete.
func (r *BulkTransferResult) finalize() {
	r.Success = len(r.FailedFiles) == 0
	if !r.Success {
		r.Err = fmt.Errorf("%d of %d files failed to transfer", len(r.FailedFiles), r.FilesTransferred+len(r.FailedFiles))
	}
}

// ProgressFunc receives cumulative progress for a single-file transfer. It
// is called synchronously on the caller's goroutine while the connection
// lock is held, and always receives a final call with transferred == total.
type ProgressFunc func(transferred, total int64)

// DirProgressFunc receives per-file progress during a directory transfer.
// total is the size of the file currently moving.
type DirProgressFunc func(path string, transferred, total int64)
