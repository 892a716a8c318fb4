package main

import "os"

func writeFileMode(path string, data []byte, mode os.FileMode) error {
	return os.WriteFile(path, data, mode)
}
