package export

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
)

// ftpConn is the subset of *ftp.ServerConn used for uploads.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
}

// FTPUploader stores report files on an FTP server.
type FTPUploader struct {
	addr     string
	user     string
	password string
	dir      string
	timeout  time.Duration
	dial     dialFunc
}

// NewFTPUploader returns nil when no FTP address is configured.
func NewFTPUploader(cfg config.ExportConfig) *FTPUploader {
	if cfg.FTPAddr == "" {
		return nil
	}
	addr := cfg.FTPAddr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	user := cfg.FTPUser
	pass := cfg.FTPPassword
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	return &FTPUploader{
		addr:     addr,
		user:     user,
		password: pass,
		dir:      cfg.FTPDir,
		timeout:  30 * time.Second,
		dial:     dialFTP,
	}
}

// Addr returns the host:port the uploader dials.
func (u *FTPUploader) Addr() string { return u.addr }

// UploadFile stores the local file under its base name and returns the
// remote path.
func (u *FTPUploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", eris.Wrap(err, "export: open report")
	}
	defer f.Close()
	return u.Upload(ctx, filepath.Base(localPath), f)
}

// Upload stores r as name in the configured directory.
func (u *FTPUploader) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	log := zap.L().With(zap.String("component", "export.ftp"), zap.String("host", u.addr))

	conn, err := u.dial(ctx, u.addr, u.timeout)
	if err != nil {
		return "", eris.Wrap(err, "export: ftp dial")
	}
	defer func() {
		if qerr := conn.Quit(); qerr != nil {
			log.Debug("ftp quit failed", zap.Error(qerr))
		}
	}()

	if err := conn.Login(u.user, u.password); err != nil {
		return "", eris.Wrap(err, "export: ftp login")
	}
	if u.dir != "" {
		if err := conn.ChangeDir(u.dir); err != nil {
			return "", eris.Wrapf(err, "export: ftp cwd %s", u.dir)
		}
	}
	if err := conn.Stor(name, r); err != nil {
		return "", eris.Wrapf(err, "export: ftp store %s", name)
	}

	remote := path.Join("/", u.dir, name)
	log.Info("report uploaded", zap.String("path", remote))
	return remote, nil
}
