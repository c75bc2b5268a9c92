package ssh

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/control/pkg/transports"
)

// sftpSession returns the shared SFTP client, starting the subsystem on
// first use.
func (c *Client) sftpSession() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, transports.Errorf("sftp-init", transports.ConnectionError, "not connected")
	}
	if c.sftpClient != nil {
		return c.sftpClient, nil
	}

	sftpClient, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, transports.NewError("sftp-init", transports.Other, fmt.Errorf("failed to create SFTP client: %w", err))
	}
	c.sftpClient = sftpClient
	return sftpClient, nil
}

// ReadTextFile downloads a remote file and decodes it as text.
func (c *Client) ReadTextFile(ctx context.Context, remotePath string) (string, error) {
	sftpClient, err := c.sftpSession()
	if err != nil {
		return "", err
	}

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", transports.NewError("read-file", transports.Other, fmt.Errorf("failed to open remote file %s: %w", remotePath, err))
	}
	defer remoteFile.Close()

	var buf bytes.Buffer
	if _, err := transports.CopyChunked(ctx, &buf, remoteFile); err != nil {
		return "", transports.NewError("read-file", transports.Other, fmt.Errorf("failed to read %s: %w", remotePath, err))
	}

	log.Debug().Str("remote", remotePath).Int("bytes", buf.Len()).Msg("read remote file")
	return transports.ToValidText(buf.Bytes()), nil
}

// WriteTextFile replaces a remote file with contents and sets its mode.
func (c *Client) WriteTextFile(ctx context.Context, remotePath string, mode uint32, contents string) error {
	sftpClient, err := c.sftpSession()
	if err != nil {
		return err
	}

	remoteFile, err := sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return transports.NewError("write-file", transports.Other, fmt.Errorf("failed to create remote file %s: %w", remotePath, err))
	}

	written, err := transports.CopyChunked(ctx, remoteFile, strings.NewReader(contents))
	closeErr := remoteFile.Close()
	if err != nil {
		return transports.NewError("write-file", transports.Other, fmt.Errorf("failed to write %s: %w", remotePath, err))
	}
	if closeErr != nil {
		return transports.NewError("write-file", transports.Other, fmt.Errorf("failed to close %s: %w", remotePath, closeErr))
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return transports.NewError("write-file", transports.Other, fmt.Errorf("failed to set mode on %s: %w", remotePath, err))
	}

	log.Debug().
		Str("remote", remotePath).
		Str("mode", transports.FormatMode(mode)).
		Int64("bytes", written).
		Msg("wrote remote file")
	return nil
}

// SendFile uploads a local file via SFTP.
func (c *Client) SendFile(ctx context.Context, localPath string, remotePath string, mode uint32) error {
	startTime := time.Now()

	localFile, err := os.Open(localPath)
	if err != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to open local file: %w", err))
	}
	defer localFile.Close()

	sftpClient, err := c.sftpSession()
	if err != nil {
		return err
	}

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to create remote directory: %w", err))
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to create remote file: %w", err))
	}

	bytesWritten, err := transports.CopyChunked(ctx, remoteFile, localFile)
	closeErr := remoteFile.Close()
	if err != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to copy file: %w", err))
	}
	if closeErr != nil {
		return transports.NewError("upload", transports.Other, fmt.Errorf("failed to close remote file: %w", closeErr))
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			return transports.NewError("upload", transports.Other, fmt.Errorf("failed to set file permissions: %w", err))
		}
	}

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", bytesWritten).
		Dur("duration", time.Since(startTime)).
		Msg("file uploaded successfully")

	return nil
}

// ReceiveFile downloads a remote file via SFTP.
func (c *Client) ReceiveFile(ctx context.Context, remotePath string, localPath string) error {
	startTime := time.Now()

	sftpClient, err := c.sftpSession()
	if err != nil {
		return err
	}

	remoteFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to open remote file: %w", err))
	}
	defer remoteFile.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to create local directory: %w", err))
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to create local file: %w", err))
	}

	bytesWritten, err := transports.CopyChunked(ctx, localFile, remoteFile)
	closeErr := localFile.Close()
	if err != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to copy file: %w", err))
	}
	if closeErr != nil {
		return transports.NewError("download", transports.Other, fmt.Errorf("failed to close local file: %w", closeErr))
	}

	log.Info().
		Str("remote", remotePath).
		Str("local", localPath).
		Int64("bytes", bytesWritten).
		Dur("duration", time.Since(startTime)).
		Msg("file downloaded successfully")

	return nil
}
