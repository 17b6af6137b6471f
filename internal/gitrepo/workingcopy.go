package gitrepo

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// workingCopy gives file level access to the working copy directory, VCS metadata included.
type workingCopy struct {
	path string
	fs   billy.Filesystem
}

func newWorkingCopy(path string) *workingCopy {
	return &workingCopy{path: path, fs: osfs.New(path)}
}

func (wc *workingCopy) Path() string {
	return wc.path
}

func (wc *workingCopy) List() ([]string, error) {
	entries, err := wc.fs.ReadDir("")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// CopyTo copies the working copy tree into dir, which is created if needed.
func (wc *workingCopy) CopyTo(dir string) error {
	dst := osfs.New(dir)
	if err := dst.MkdirAll("", 0o755); err != nil {
		return err
	}

	return util.Walk(wc.fs, "", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == "" {
			return nil
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			return dst.MkdirAll(path, mode.Perm())
		case mode&os.ModeSymlink != 0:
			target, err := wc.fs.Readlink(path)
			if err != nil {
				return err
			}
			return dst.Symlink(target, path)
		case mode.IsRegular():
			return copyFile(wc.fs, dst, path, mode.Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst billy.Filesystem, path string, perm os.FileMode) error {
	in, err := src.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

func (wc *workingCopy) Clear(keep func(name string) bool) error {
	names, err := wc.List()
	if err != nil {
		return err
	}

	for _, name := range names {
		if keep(name) {
			continue
		}
		if err := util.RemoveAll(wc.fs, name); err != nil {
			return err
		}
	}

	return nil
}

func (wc *workingCopy) WriteFile(path string, data []byte) error {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := wc.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return util.WriteFile(wc.fs, path, data, 0o644)
}
