package netfs

import (
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/zeebo/errs"
	ssh2 "golang.org/x/crypto/ssh"
)

// FS is the destination a Writer places artifacts on. Local targets get the
// single buffered WriteFile; network targets go through the explicit
// OpenWrite/Write/Close sequence so partial failures stay distinguishable
// from nothing written.
type FS interface {
	WriteFile(name string, data []byte, perm os.FileMode) error
	OpenWrite(name string) (io.WriteCloser, error)
	Stat(name string) (iofs.FileInfo, error)
	Remove(name string) error
}

// IsNetworkPath reports whether target is a UNC-style network path.
func IsNetworkPath(p string) bool {
	return strings.HasPrefix(p, `\\`)
}

// parentDir handles both native separators and UNC backslash paths.
func parentDir(p string) string {
	if IsNetworkPath(p) {
		i := strings.LastIndex(p, `\`)
		if i <= 1 {
			return p
		}
		return p[:i]
	}
	return path.Dir(strings.ReplaceAll(p, `\`, "/"))
}

type osFS struct{}

func (osFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (osFS) OpenWrite(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (osFS) Stat(name string) (iofs.FileInfo, error) {
	return os.Stat(name)
}

func (osFS) Remove(name string) error {
	return os.Remove(name)
}

type SftpConfig struct {
	Host     string        `help:"network file server host, empty disables the sftp backend" default:""`
	Port     int           `help:"network file server ssh port" default:"22"`
	User     string        `help:"network file server user" default:""`
	Password string        `help:"network file server password" default:""`
	Timeout  time.Duration `help:"dial timeout" default:"10s"`
}

// sftpFS reaches UNC targets over an sftp session to the file server. The
// session is dialed on first use and reused.
type sftpFS struct {
	conf SftpConfig

	mux    sync.Mutex
	client *sftp.Client
}

func newSftpFS(conf SftpConfig) *sftpFS {
	return &sftpFS{conf: conf}
}

func (s *sftpFS) get() (*sftp.Client, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	cc := &ssh2.ClientConfig{
		User:            s.conf.User,
		Auth:            []ssh2.AuthMethod{ssh2.Password(s.conf.Password)},
		HostKeyCallback: ssh2.InsecureIgnoreHostKey(),
		Timeout:         s.conf.Timeout,
	}
	conn, err := ssh2.Dial("tcp", fmt.Sprintf("%s:%d", s.conf.Host, s.conf.Port), cc)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, errs.Wrap(err)
	}
	s.client = client
	return client, nil
}

// remotePath strips the \\host prefix and flips separators, leaving the
// share-relative path the sftp server understands.
func remotePath(unc string) string {
	p := strings.TrimPrefix(unc, `\\`)
	if i := strings.Index(p, `\`); i >= 0 {
		p = p[i:]
	}
	return strings.ReplaceAll(p, `\`, "/")
}

func (s *sftpFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	wc, err := s.OpenWrite(name)
	if err != nil {
		return err
	}
	if _, err = wc.Write(data); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

func (s *sftpFS) OpenWrite(name string) (io.WriteCloser, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	return client.Create(remotePath(name))
}

func (s *sftpFS) Stat(name string) (iofs.FileInfo, error) {
	client, err := s.get()
	if err != nil {
		return nil, err
	}
	return client.Stat(remotePath(name))
}

func (s *sftpFS) Remove(name string) error {
	client, err := s.get()
	if err != nil {
		return err
	}
	return client.Remove(remotePath(name))
}
