package content

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// epoch is the zeroed modification time written into every archive
// member, so that taring the same directory twice always produces
// byte-identical output, and therefore the same digest.
var epoch = time.Unix(0, 0).UTC()

// MakeTarGz archives the contents of dir into a deterministic
// tar.gz stream at destPath: members are visited in sorted order,
// and mtime/uid/gid/uname/gname are all zeroed. This mirrors
// oras-py's utils.fileio content-addressed directory layer support.
func MakeTarGz(dir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return orerrors.Wrap(err, orerrors.FileNotFound, "MakeTarGz", "%s", destPath)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	if err := addTarTree(tw, dir); err != nil {
		tw.Close()
		gz.Close()
		return err
	}
	if err := tw.Close(); err != nil {
		gz.Close()
		return orerrors.Wrap(err, orerrors.ProtocolError, "MakeTarGz", "closing tar writer")
	}
	if err := gz.Close(); err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "MakeTarGz", "closing gzip writer")
	}
	return nil
}

func addTarTree(tw *tar.Writer, root string) error {
	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return orerrors.Wrap(err, orerrors.FileNotFound, "MakeTarGz", "walking %s", root)
	}
	sort.Strings(paths)

	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			return orerrors.Wrap(err, orerrors.FileNotFound, "MakeTarGz", "%s", p)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return orerrors.Wrap(err, orerrors.PathTraversal, "MakeTarGz", "%s", p)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(p)
			if err != nil {
				return orerrors.Wrap(err, orerrors.FileNotFound, "MakeTarGz", "reading symlink %s", p)
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return orerrors.Wrap(err, orerrors.ProtocolError, "MakeTarGz", "building header for %s", p)
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = epoch
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return orerrors.Wrap(err, orerrors.ProtocolError, "MakeTarGz", "writing header for %s", p)
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(p)
			if err != nil {
				return orerrors.Wrap(err, orerrors.FileNotFound, "MakeTarGz", "%s", p)
			}
			_, copyErr := io.Copy(tw, f)
			f.Close()
			if copyErr != nil {
				return orerrors.Wrap(copyErr, orerrors.ProtocolError, "MakeTarGz", "copying %s", p)
			}
		}
	}
	return nil
}

// ExtractTarGz extracts a tar.gz stream into destDir, rejecting any
// member whose path would escape destDir.
func ExtractTarGz(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "opening gzip stream")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "reading tar entry")
		}

		target, err := SanitizePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
			_, copyErr := io.Copy(f, tr)
			f.Close()
			if copyErr != nil {
				return orerrors.Wrap(copyErr, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return orerrors.Wrap(err, orerrors.ProtocolError, "ExtractTarGz", "%s", target)
			}
		}
	}
}
