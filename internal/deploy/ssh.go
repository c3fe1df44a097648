// Copyright (c) 2026 apideploy Authors
// apideploy - service deployment over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"invent.kde.org/websites/apideploy/internal/logging"
)

// Hooks for tests.
var (
	sshDial        = ssh.Dial
	sshAgentGetter = getSSHAgent
	newSftpClient  = func(c *ssh.Client) (*sftp.Client, error) { return sftp.NewClient(c) }
)

// Client is a Session over a single SSH connection. Commands run in their
// own SSH sessions and uploads share one SFTP subsystem.
type Client struct {
	conn     *ssh.Client
	sftp     *sftp.Client
	stdout   io.Writer
	stderr   io.Writer
	progress io.Writer
}

// Dial opens an authenticated, host-key-verified connection to the target.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	host, port, err := ResolveEndpoint(opts.Target.Host, opts.Port)
	if err != nil {
		return nil, err
	}
	addr := JoinHostPort(host, strconv.Itoa(port), "22")

	verifier, err := newHostKeyVerifier(opts.KnownHosts)
	if err != nil {
		return nil, err
	}
	auth, closeAgent, err := authMethods(opts)
	if err != nil {
		return nil, err
	}
	if closeAgent != nil {
		defer closeAgent()
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	config := &ssh.ClientConfig{
		User:              opts.Target.User,
		Auth:              []ssh.AuthMethod{auth},
		HostKeyCallback:   verifier.Check,
		HostKeyAlgorithms: verifier.Algorithms(addr),
		Timeout:           timeout,
	}

	conn, err := sshDial("tcp", addr, config)
	if err != nil {
		return nil, ClassifyConnectionError(addr, err)
	}
	sftpClient, err := newSftpClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	c := &Client{
		conn:     conn,
		sftp:     sftpClient,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		progress: opts.Progress,
	}
	if c.stdout == nil {
		c.stdout = io.Discard
	}
	if c.stderr == nil {
		c.stderr = io.Discard
	}
	return c, nil
}

// Run executes command in a fresh session, streaming its output.
func (c *Client) Run(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer session.Close()
	session.Stdout = c.stdout
	session.Stderr = c.stderr

	logging.Debugf("remote: %s", command)
	err = session.Run(command)
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &RemoteCommandError{Command: command, ExitStatus: exitErr.ExitStatus()}
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return &RemoteCommandError{Command: command, ExitStatus: -1}
	}
	return fmt.Errorf("failed to run %q: %w", command, err)
}

// Upload copies each source into remoteDir. Directories are copied
// recursively as remoteDir/<base>. Existing files are replaced atomically.
func (c *Client) Upload(ctx context.Context, remoteDir string, sources ...string) error {
	if err := c.sftp.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w", remoteDir, err)
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", src, err)
		}
		dst := path.Join(remoteDir, filepath.Base(filepath.Clean(src)))
		if info.IsDir() {
			err = c.uploadTree(ctx, src, dst)
		} else {
			err = c.uploadFile(src, dst, info)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := path.Join(dst, filepath.ToSlash(rel))

		switch {
		case d.IsDir():
			if err := c.sftp.MkdirAll(target); err != nil {
				return fmt.Errorf("failed to create remote directory %s: %w", target, err)
			}
			if info, err := d.Info(); err == nil {
				_ = c.sftp.Chmod(target, info.Mode().Perm())
			}
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("failed to read link %s: %w", p, err)
			}
			_ = c.sftp.Remove(target)
			if err := c.sftp.Symlink(link, target); err != nil {
				return fmt.Errorf("failed to create remote link %s: %w", target, err)
			}
			return nil
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return c.uploadFile(p, target, info)
		default:
			logging.Debugf("skipping special file %s", p)
			return nil
		}
	})
}

// uploadFile writes src to a temporary name next to dst and renames it into
// place, so a running binary is never truncated under its process.
func (c *Client) uploadFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp := fmt.Sprintf("%s.apideploy.%d", dst, time.Now().UnixNano())
	out, err := c.sftp.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary file on remote: %w", err)
	}

	var r io.Reader = in
	var prog *transferProgress
	if c.progress != nil {
		prog = newTransferProgress(c.progress, filepath.Base(src), info.Size())
		r = io.TeeReader(in, prog)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		_ = c.sftp.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = c.sftp.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if prog != nil {
		prog.Done()
	}

	if err := c.sftp.Chmod(tmp, info.Mode().Perm()); err != nil {
		_ = c.sftp.Remove(tmp)
		return fmt.Errorf("failed to chmod temporary file: %w", err)
	}
	_ = c.sftp.Chtimes(tmp, info.ModTime(), info.ModTime())

	if err := c.sftp.PosixRename(tmp, dst); err != nil {
		// Servers without the posix-rename extension refuse to overwrite.
		_ = c.sftp.Remove(dst)
		if err := c.sftp.Rename(tmp, dst); err != nil {
			_ = c.sftp.Remove(tmp)
			return fmt.Errorf("failed to move %s into place: %w", dst, err)
		}
	}
	return nil
}

// Close closes the SFTP subsystem and the SSH connection.
func (c *Client) Close() error {
	var errs []error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
