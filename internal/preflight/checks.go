package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"leaflens/internal/catalog"
	"leaflens/internal/config"
	"leaflens/internal/logging"
	"leaflens/internal/objectstore"
	"leaflens/internal/services"
)

// CheckEndpoint verifies that a collaborator answers HTTP at baseURL and
// accepts the bearer key. Any response other than 401/403 counts as
// reachable; the collaborators expose no common health route.
func CheckEndpoint(ctx context.Context, name, baseURL, apiKey string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCatalog loads the catalog document and reports its entry count.
func CheckCatalog(path string) Result {
	const name = "Catalog"

	snap, err := catalog.Load(path)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return Result{Name: name, Detail: fmt.Sprintf("%s (missing: every scan ends unmatched)", path)}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (invalid: %v)", path, err)}
	case snap.Len() == 0:
		return Result{Name: name, Detail: fmt.Sprintf("%s (no entries)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, snap.Len())}
}

// CheckAnalysisCredentials verifies the selected provider has what it needs
// to authenticate, without calling it.
func CheckAnalysisCredentials(cfg *config.Config) Result {
	name := "Analysis provider (" + cfg.Analysis.Provider + ")"

	switch cfg.Analysis.Provider {
	case config.ProviderGemini:
		if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
			return Result{Name: name, Detail: "gemini.api_key missing"}
		}
		return Result{Name: name, Passed: true, Detail: "API key present (model " + cfg.Gemini.Model + ")"}
	case config.ProviderVision:
		if strings.TrimSpace(cfg.Vision.APIKey) != "" {
			return Result{Name: name, Passed: true, Detail: "API key present"}
		}
		if path := strings.TrimSpace(cfg.Vision.CredentialsFile); path != "" {
			if _, err := os.Stat(path); err != nil {
				return Result{Name: name, Detail: fmt.Sprintf("credentials file unreadable (%v)", err)}
			}
			return Result{Name: name, Passed: true, Detail: "credentials file " + path}
		}
		return Result{Name: name, Passed: true, Detail: "using application default credentials"}
	case config.ProviderHTTP:
		if strings.TrimSpace(cfg.Analyzer.URL) == "" {
			return Result{Name: name, Detail: "analyzer.url missing"}
		}
		return Result{Name: name, Passed: true, Detail: cfg.Analyzer.URL}
	default:
		return Result{Name: name, Detail: "unknown provider"}
	}
}

// CheckObjectStore verifies the configured bucket is reachable.
func CheckObjectStore(ctx context.Context, cfg config.ObjectStore) Result {
	const name = "Object store"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := objectstore.New(checkCtx, cfg, logging.NewNop())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("client setup failed (%v)", err)}
	}
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("bucket %s unreachable (%s)", store.Bucket(), summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %s reachable", store.Bucket())}
}

// summarizeError produces a human-readable summary for connectivity failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
