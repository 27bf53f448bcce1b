package secrets

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DotEnvLoader returns a Loader that re-reads the keys of fallback from the
// dotenv file at path on every call. A key absent from the file keeps its
// fallback value, and a missing file yields the fallback unchanged. The
// process environment is not consulted: it cannot change after start.
func DotEnvLoader(path string, fallback map[string]string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(fallback))
		for k, v := range fallback {
			vals[k] = v
		}
		file, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return vals, nil
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for k := range fallback {
			if v, ok := file[k]; ok && v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
