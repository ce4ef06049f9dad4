package ssh

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// UploadFile copies a local file to the remote host via SFTP, creating parent
// directories as needed.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	client := c.client
	c.mu.Unlock()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create sftp client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	return uploadOne(sftpClient, localPath, remotePath, mode)
}

// UploadDirectory recursively copies a local directory tree to the remote
// host via SFTP, preserving the relative layout. Regular files only.
func (c *Client) UploadDirectory(ctx context.Context, localDir, remoteDir string) error {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	client := c.client
	c.mu.Unlock()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create sftp client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	return filepath.WalkDir(localDir, func(localPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, localPath)
		if err != nil {
			return err
		}
		remotePath := path.Join(remoteDir, filepath.ToSlash(rel))
		return uploadOne(sftpClient, localPath, remotePath, 0o644)
	})
}

func uploadOne(sftpClient *sftp.Client, localPath, remotePath string, mode os.FileMode) error {
	src, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	defer src.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("mkdir %s: %w", dir, err)}
		}
	}

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("create %s: %w", remotePath, err)}
	}

	written, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("copy to %s: %w", remotePath, err)}
	}

	if err := sftpClient.Chmod(remotePath, mode); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("chmod %s: %w", remotePath, err)}
	}

	log.Debug().Str("local", localPath).Str("remote", remotePath).Int64("bytes", written).Msg("uploaded file")
	return nil
}
