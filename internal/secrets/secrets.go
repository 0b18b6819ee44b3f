// Package secrets resolves credential values from the configuration file.
// A value may reference environment variables as ${VAR} or ${VAR:-default},
// and every credential can instead be read from a file such as a Docker or
// Kubernetes secret mount.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/logger"
)

// maxFileSize bounds secret files; tokens and passwords are small
const maxFileSize = 64 * 1024

// Resolver reads secret files from fs
type Resolver struct {
	fs afero.Fs
}

// NewResolver returns a resolver reading from fs
func NewResolver(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

// OS returns a resolver on the real filesystem
func OS() *Resolver {
	return NewResolver(afero.NewOsFs())
}

// Expand replaces ${VAR} and ${VAR:-default} references in s. Values
// without "${" are returned as is. A reference without a default to an
// unset variable is an error.
func Expand(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var missing []string
	out := os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if !hasDefault {
			missing = append(missing, name)
		}
		return def
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Category(errors.CategoryConfiguration).
			Component("secrets").
			Context("variables", missing).
			Build()
	}
	return out, nil
}

// ReadFile returns the content of a secret file without trailing newlines
func (r *Resolver) ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Category(errors.CategoryValidation).
			Component("secrets").
			Build()
	}
	path = filepath.Clean(path)
	info, err := r.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf("secret file not found: %s", path).
				Category(errors.CategoryNotFound).
				Component("secrets").
				Build()
		}
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Component("secrets").
			Context("path", path).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", path).
			Category(errors.CategoryValidation).
			Component("secrets").
			Build()
	}
	if info.Size() > maxFileSize {
		return "", errors.Newf("secret file too large (max %d bytes): %s", maxFileSize, path).
			Category(errors.CategoryLimit).
			Component("secrets").
			Build()
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		GetLogger().Warn("secret file is readable by group or others",
			logger.String("path", path),
			logger.String("mode", perm.String()))
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryFileIO).
			Component("secrets").
			Context("path", path).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", path).
			Category(errors.CategoryValidation).
			Component("secrets").
			Build()
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, else value with
// environment references expanded.
func (r *Resolver) Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return r.ReadFile(filePath)
	}
	return Expand(value)
}
