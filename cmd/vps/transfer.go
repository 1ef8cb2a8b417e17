package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabiopauli/ssh-wrapper/internal/client"
	"github.com/fabiopauli/ssh-wrapper/internal/progress"
)

var quiet bool

var putCmd = &cobra.Command{
	Use:   "put <local> <remote>",
	Short: "Upload a file or directory to the remote host",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <remote> <local>",
	Short: "Download a file or directory from the remote host",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	putCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	getCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath, remotePath := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn := client.New(cfg)
	defer conn.Close()

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("local path not found: %s", localPath)
	}

	if info.IsDir() {
		fmt.Printf("Uploading directory: %s -> %s\n", localPath, remotePath)
		result := conn.PutDir(localPath, remotePath, dirProgress())
		return reportBulk("uploaded", result)
	}

	fmt.Printf("Uploading file: %s -> %s\n", localPath, remotePath)
	result := conn.Put(localPath, remotePath, fileProgress("Uploading"))
	if !result.Success {
		return fmt.Errorf("upload failed: %v", result.Err)
	}
	fmt.Printf("Successfully uploaded %d bytes\n", result.BytesTransferred)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath, localPath := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn := client.New(cfg)
	defer conn.Close()

	info, err := conn.Stat(remotePath)
	if err != nil {
		var remoteErr *client.RemoteIOFault
		if errors.As(err, &remoteErr) {
			return fmt.Errorf("remote path not found: %s", remotePath)
		}
		return err
	}

	if info.IsDir() {
		fmt.Printf("Downloading directory: %s -> %s\n", remotePath, localPath)
		result := conn.GetDir(remotePath, localPath, dirProgress())
		return reportBulk("downloaded", result)
	}

	fmt.Printf("Downloading file: %s -> %s\n", remotePath, localPath)
	result := conn.Get(remotePath, localPath, fileProgress("Downloading"))
	if !result.Success {
		return fmt.Errorf("download failed: %v", result.Err)
	}
	fmt.Printf("Successfully downloaded %d bytes\n", result.BytesTransferred)
	return nil
}

// fileProgress returns a progress bar callback, or nil when --quiet.
func fileProgress(action string) client.ProgressFunc {
	if quiet {
		return nil
	}
	return progress.NewBar(os.Stdout, action).Update
}

func dirProgress() client.DirProgressFunc {
	if quiet {
		return nil
	}
	return progress.NewDirBar(os.Stdout).Update
}

// reportBulk prints the outcome of a directory transfer, itemizing every
// per-file failure, and returns an error iff any file failed.
func reportBulk(action string, result client.BulkTransferResult) error {
	if result.Success {
		fmt.Printf("Successfully %s %d files (%d bytes)\n", action, result.FilesTransferred, result.TotalBytes)
		return nil
	}
	if len(result.FailedFiles) > 0 {
		fmt.Fprintf(os.Stderr, "Transfer completed with errors: %v\n", result.Err)
		for _, f := range result.FailedFiles {
			fmt.Fprintf(os.Stderr, "  Failed: %s - %v\n", f.Path, f.Err)
		}
		return fmt.Errorf("%d files failed", len(result.FailedFiles))
	}
	return result.Err
}
