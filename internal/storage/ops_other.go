//go:build !linux

package storage

import "fmt"

func mountTmpfs(path string) error              { return fmt.Errorf("unsupported on this platform") }
func unmount(path string) error                 { return fmt.Errorf("unsupported on this platform") }
func xattrSupported(path string) bool           { return false }
func tmpfsXattrProbe(scratchPath string) bool    { return false }
func imageExists(path string) bool              { return false }
func createExt4Image(path string) error         { return fmt.Errorf("unsupported on this platform") }
func repairExt4Image(path string) error         { return fmt.Errorf("unsupported on this platform") }
func mountExt4Image(imagePath, mountPoint string) error {
	return fmt.Errorf("unsupported on this platform")
}
func createErofsImage(sourceDir, imagePath string) error {
	return fmt.Errorf("unsupported on this platform")
}
func mountErofsImage(imagePath, mountPoint string) error {
	return fmt.Errorf("unsupported on this platform")
}
func erofsSupported() bool { return false }
func statvfsUsage(path string) (Usage, error) {
	return Usage{}, fmt.Errorf("unsupported on this platform")
}
