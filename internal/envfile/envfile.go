// Package envfile splices linkup provided variables into a service's dotenv
// files and removes them again on stop.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/MrSnakeDoc/linkup/internal/utils"
)

// Separator frames the linkup block inside an env file.
const Separator = "##### Linkup environment - DO NOT EDIT #####"

// SourceSuffix marks the files whose content is spliced: .env.development.linkup
// is written into .env.development.
const SourceSuffix = ".linkup"

var ErrNoSources = errors.New("no linkup env files")

// Write appends the content of src to dst between two separators. A dst that
// already carries a linkup block is left alone. src must parse as dotenv.
func Write(src, dst string) error {
	current, err := os.ReadFile(dst)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", dst, err)
	}
	if strings.Contains(string(current), Separator) {
		return nil
	}

	block, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if _, err := godotenv.Unmarshal(string(block)); err != nil {
		return fmt.Errorf("parse %s: %w", src, err)
	}

	var b strings.Builder
	b.Write(current)
	b.WriteString("\n" + Separator)
	b.WriteString("\n" + strings.TrimSuffix(string(block), "\n"))
	b.WriteString("\n" + Separator + "\n")

	perm := os.FileMode(0o644)
	if fi, err := os.Stat(dst); err == nil {
		perm = fi.Mode().Perm()
	}
	return utils.AtomicWriteFile(dst, []byte(b.String()), perm)
}

// Clear removes the linkup block from path. Files without a block are not
// touched.
func Clear(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	start := strings.Index(content, Separator)
	end := strings.LastIndex(content, Separator)
	if start < 0 {
		return nil
	}
	if start > 0 && content[start-1] == '\n' {
		start--
	}
	end += len(Separator)
	if end < len(content) && content[end] == '\n' {
		end++
	}

	content = strings.TrimRight(content[:start]+content[end:], "\n") + "\n"

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(path, []byte(content), fi.Mode().Perm())
}

// Apply writes every .env.*.linkup file of dir into its sibling.
func Apply(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read service directory: %w", err)
	}

	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".env.") || !strings.HasSuffix(name, SourceSuffix) {
			continue
		}
		dst := filepath.Join(dir, strings.TrimSuffix(name, SourceSuffix))
		if err := Write(filepath.Join(dir, name), dst); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("%w in %s", ErrNoSources, dir)
	}
	return nil
}

// Restore clears the linkup block of every .env* file in dir.
func Restore(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read service directory: %w", err)
	}

	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ".env") || strings.HasSuffix(name, SourceSuffix) {
			continue
		}
		if err := Clear(filepath.Join(dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServiceDir resolves a service directory relative to the config file.
func ServiceDir(configPath, directory string) string {
	if filepath.IsAbs(directory) {
		return directory
	}
	return filepath.Join(filepath.Dir(configPath), directory)
}
