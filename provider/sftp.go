package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync/atomic"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/franksops/gobak/progress"
	"github.com/franksops/gobak/stream"
)

// ensure interface is implemented
var _ Uploader = (*SFTPUploader)(nil)

// SFTPUploader uploads files to a remote file system over an SFTP session
// authenticated with a username and password.
type SFTPUploader struct {
	target RemoteFilesystem
	log    logrus.FieldLogger
	pool   *stream.BufferPool
}

// NewSFTPUploader creates a new SFTPUploader for the target.
func NewSFTPUploader(target RemoteFilesystem, opts ...Option) *SFTPUploader {
	o := buildOptions(stream.SFTPChunkSize, opts)
	return &SFTPUploader{
		target: target,
		log:    o.log.WithField("destination", target.Name),
		pool:   stream.NewBufferPool(o.chunkSize),
	}
}

// sftpFS adapts an sftp client to RemoteFS plus file creation.
type sftpFS struct {
	*sftp.Client
}

func (f sftpFS) Create(p string) (io.WriteCloser, error) {
	return f.Client.Create(p)
}

func (u *SFTPUploader) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if u.target.KnownHosts == "" {
		u.log.Warn("No known_hosts configured, accepting any host key")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(u.target.KnownHosts)
}

// dial opens the transport connection, performs the handshake and
// authenticates. A failure after key exchange completed is an auth failure.
func (u *SFTPUploader) dial(ctx context.Context) (*ssh.Client, error) {
	if err := u.target.Validate(); err != nil {
		return nil, newError(ErrConfigInvalid, "configure", u.target.Name, "", err)
	}
	verify, err := u.hostKeyCallback()
	if err != nil {
		return nil, newError(ErrConfigInvalid, "known_hosts", u.target.Name, u.target.KnownHosts, err)
	}

	addr := net.JoinHostPort(u.target.Host, strconv.Itoa(u.target.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newError(ErrConnectFailed, "dial", u.target.Name, addr, err)
	}

	var kexDone atomic.Bool
	password := u.target.Password
	cfg := &ssh.ClientConfig{
		User: u.target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := verify(hostname, remote, key); err != nil {
				return err
			}
			kexDone.Store(true)
			return nil
		},
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if kexDone.Load() {
			return nil, newError(ErrAuthFailed, "auth", u.target.Name, u.target.Username+"@"+addr, err)
		}
		return nil, newError(ErrConnectFailed, "handshake", u.target.Name, addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Upload copies the file to its remote path, creating parent directories
// first. An existing remote file of the same name is truncated.
//
// The number of bytes sent is fixed by the local size read at the start;
// a file that changes size during the upload is not supported.
func (u *SFTPUploader) Upload(ctx context.Context, localPath, remotePrefix string, isDirectorySource bool, sink progress.Sink) error {
	if sink == nil {
		sink = progress.Discard
	}
	announce(sink, localPath)
	err := u.session(ctx, localPath, RemoteKey(localPath, remotePrefix, isDirectorySource), sink)
	sink.Finish(err)
	return err
}

func (u *SFTPUploader) session(ctx context.Context, localPath, remotePath string, sink progress.Sink) error {
	sshClient, err := u.dial(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return newError(ErrConnectFailed, "sftp", u.target.Name, "", err)
	}
	defer client.Close()

	u.log.WithFields(logrus.Fields{"remote": remotePath, "chunk": u.pool.Size()}).Debug("SFTP session open")
	return u.upload(ctx, sftpFS{client}, localPath, remotePath, sink)
}

type remoteCreator interface {
	RemoteFS
	Create(p string) (io.WriteCloser, error)
}

// upload reports chunks to sink; starting and finishing the file is left to Upload.
func (u *SFTPUploader) upload(ctx context.Context, rfs remoteCreator, localPath, remotePath string, sink progress.Sink) error {
	if err := EnsureDirectory(rfs, path.Dir(remotePath)); err != nil {
		var te *TransferError
		if errors.As(err, &te) {
			te.Destination = u.target.Name
		}
		return err
	}

	local, err := os.Open(localPath)
	if err != nil {
		return newError(ErrLocalIO, "open", u.target.Name, localPath, err)
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return newError(ErrLocalIO, "stat", u.target.Name, localPath, err)
	}
	total := info.Size()

	remote, err := rfs.Create(remotePath)
	if err != nil {
		return u.remoteError("create", remotePath, err)
	}

	buf := u.pool.Get()
	defer u.pool.Put(buf)

	chunks := stream.NewChunks(local, *buf, total, func(n int) {
		sink.Add(int64(n))
	})

	if err := u.copy(ctx, chunks, remote, remotePath); err != nil {
		remote.Close()
		return err
	}

	if err := remote.Close(); err != nil {
		return u.remoteError("close", remotePath, err)
	}

	u.log.WithFields(logrus.Fields{"file": localPath, "remote": remotePath, "bytes": chunks.Emitted()}).Info("Successfully uploaded file")
	return nil
}

func (u *SFTPUploader) copy(ctx context.Context, chunks *stream.Chunks, remote io.Writer, remotePath string) error {
	for {
		if err := ctx.Err(); err != nil {
			return newError(ErrConnectFailed, "write", u.target.Name, remotePath, err)
		}

		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return newError(ErrLocalIO, "read", u.target.Name, remotePath, err)
		}

		if _, err := remote.Write(chunk); err != nil {
			return u.remoteError("write", remotePath, err)
		}
	}
}

// remoteError separates answers from the SFTP server from lost transports.
func (u *SFTPUploader) remoteError(op, remotePath string, err error) error {
	var status *sftp.StatusError
	if errors.As(err, &status) || errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
		return newError(ErrRemoteRejected, op, u.target.Name, remotePath, err)
	}
	return newError(ErrConnectFailed, op, u.target.Name, remotePath, fmt.Errorf("transport: %w", err))
}
