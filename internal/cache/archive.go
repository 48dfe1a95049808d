package cache

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Pack пишет в w tar-архив директорий dirs, сжатый zstd.
//
// Записи хранятся под абсолютным путём без ведущего "/", поэтому
// распаковка в "/" возвращает файлы на прежние места. Несуществующие
// директории пропускаются.
func Pack(w io.Writer, dirs []string) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}

	tw := tar.NewWriter(enc)

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		if _, err := os.Lstat(abs); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			return addEntry(tw, path, d)
		}); err != nil {
			enc.Close()
			return fmt.Errorf("archive %s: %w", abs, err)
		}
	}

	if err := tw.Close(); err != nil {
		enc.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = strings.TrimPrefix(filepath.ToSlash(path), "/")
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Extract распаковывает архив Pack в root.
//
// Записи, выходящие за пределы root, отклоняются с ErrUnsafePath. Это
// касается и путей через симлинки: родительская директория записи
// раскрывается через уже существующие ссылки, а цель нового симлинка
// должна лежать внутри root. Существующие файлы перезаписываются,
// симлинк на месте обычного файла заменяется, а не используется.
func Extract(r io.Reader, root string) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return err
	}

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}
		if target, err = resolveEntry(root, hdr, target); err != nil {
			return err
		}

		if err := extractEntry(tr, hdr, target); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	mode := os.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		return os.Chmod(target, mode|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if fi, err := os.Lstat(target); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			if err := os.Remove(target); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Chmod(target, mode)

	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	}

	// остальные типы (устройства, fifo) в кэше не нужны
	return nil
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// resolveEntry раскрывает симлинки в родительской директории записи и
// возвращает путь, по которому запись будет создана на самом деле.
// Для директорий раскрывается и сам путь: MkdirAll и Chmod идут по ссылке.
func resolveEntry(root string, hdr *tar.Header, target string) (string, error) {
	name := hdr.Name
	if target == root {
		return target, nil
	}

	dir, err := resolveExisting(filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if !within(root, dir) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target = filepath.Join(dir, filepath.Base(target))

	switch hdr.Typeflag {
	case tar.TypeDir:
		if target, err = resolveExisting(target); err != nil {
			return "", fmt.Errorf("resolve %s: %w", name, err)
		}
		if !within(root, target) {
			return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
		}

	case tar.TypeSymlink:
		dest := filepath.FromSlash(hdr.Linkname)
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(dir, dest)
		}
		if !within(root, filepath.Clean(dest)) {
			return "", fmt.Errorf("%w: %s -> %s", ErrUnsafePath, name, hdr.Linkname)
		}
	}

	return target, nil
}

// resolveExisting раскрывает симлинки в существующей части path,
// несуществующий хвост добавляется как есть.
func resolveExisting(path string) (string, error) {
	existing, rest := path, ""
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, rest), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
