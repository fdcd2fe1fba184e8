package transport

import (
	"errors"
	"os"
	"path"

	"github.com/kjk/bstore/atomicfile"
	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
)

// SFTPConfig describes how to connect to a server over ssh.
// Host keys are verified against ~/.ssh/known_hosts.
type SFTPConfig struct {
	User string
	// Addr is host name or ip address, port 22 is used
	Addr string
	// KeyPath is path of a private key. If empty, Password is used
	KeyPath  string
	Password string
}

// SFTP copies bundles to and from a server
type SFTP struct {
	Client *sftp.Client
	ssh    *goph.Client
}

// DialSFTP connects to a server
func DialSFTP(config *SFTPConfig) (*SFTP, error) {
	if config == nil || config.User == "" || config.Addr == "" {
		return nil, errors.New("must provide User and Addr in SFTPConfig")
	}
	var auth goph.Auth
	var err error
	if config.KeyPath != "" {
		auth, err = goph.Key(config.KeyPath, "")
		if err != nil {
			return nil, err
		}
	} else {
		auth = goph.Password(config.Password)
	}
	client, err := goph.New(config.User, config.Addr, auth)
	if err != nil {
		return nil, err
	}
	sc, err := client.NewSftp()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &SFTP{
		Client: sc,
		ssh:    client,
	}, nil
}

// NewSFTP wraps an already connected client
func NewSFTP(c *sftp.Client) *SFTP {
	return &SFTP{Client: c}
}

// Close closes sftp session and ssh connection (if we made it)
func (s *SFTP) Close() error {
	err := s.Client.Close()
	if s.ssh != nil {
		if err2 := s.ssh.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// Push uploads localPath to remotePath. Data is written to remotePath + ".tmp"
// and renamed when complete, replacing remotePath if it exists.
func (s *SFTP) Push(localPath string, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if err = s.Client.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}
	tmpPath := remotePath + ".tmp"
	dst, err := s.Client.Create(tmpPath)
	if err != nil {
		return err
	}
	_, err = dst.ReadFrom(src)
	err2 := dst.Close()
	if err == nil {
		err = err2
	}
	if err == nil {
		err = s.Client.PosixRename(tmpPath, remotePath)
	}
	if err != nil {
		_ = s.Client.Remove(tmpPath)
	}
	return err
}

// Pull downloads remotePath to localPath
func (s *SFTP) Pull(remotePath string, localPath string) error {
	src, err := s.Client.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = atomicfile.Copy(localPath, src)
	return err
}
