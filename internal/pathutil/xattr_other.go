//go:build !linux

package pathutil

import (
	"fmt"
	"io"
	"os"
)

// LGetFileContext is unavailable off Linux; callers treat the error as
// "no label known" and fall back to a guessed context.
func LGetFileContext(path string) (string, error) {
	return "", fmt.Errorf("lgetfilecon: unsupported on this platform")
}

func LSetFileContext(path, context string) error {
	return nil
}

func SetOverlayOpaque(path string) error {
	return fmt.Errorf("set overlay opaque xattr: unsupported on this platform")
}

func IsOverlayOpaque(path string) bool {
	return false
}

func IsOverlayXattrSupported(path string) bool {
	return false
}

func CopyExtendedAttributes(src, dst string) error {
	return nil
}

// ReflinkOrCopy always falls back to a full byte copy off Linux.
func ReflinkOrCopy(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer dstFile.Close()

	n, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return 0, err
	}
	if info, err := srcFile.Stat(); err == nil {
		_ = dstFile.Chmod(info.Mode())
	}
	return n, nil
}

func MakeDeviceNode(path string, mode os.FileMode, rdev uint64) error {
	return fmt.Errorf("mknod: unsupported on this platform")
}

func IsWhiteout(fi os.FileInfo) bool {
	return false
}
