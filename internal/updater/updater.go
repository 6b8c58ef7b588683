// Package updater checks for new devlog releases on GitHub and can
// self-update the binary in place.
//
//   - Releases come from the GitHub REST client, so the token, rate
//     limiter and base URL of the github package apply here too
//   - Atomic replace: write next to the binary, then rename over it
//   - No auto-restart: the user restarts the server after an update
package updater

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	gh "github.com/HendryAvila/devlog/internal/github"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const (
	// binaryName is the executable inside release archives.
	binaryName = "devlog"

	// checkTimeout bounds CheckVersion.
	checkTimeout = 10 * time.Second

	// maxArchiveSize caps downloaded archives.
	maxArchiveSize = 200 << 20
)

// ErrUpToDate is returned by SelfUpdate when no newer release exists.
var ErrUpToDate = errors.New("already at latest version")

// Releases is the part of the GitHub client the updater uses.
type Releases interface {
	LatestRelease(ctx context.Context, owner, repo string) (*gh.Release, error)
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// UpdateResult is returned by CheckVersion to communicate the outcome.
type UpdateResult struct {
	// CurrentVersion is the running version (e.g. "0.2.0").
	CurrentVersion string
	// LatestVersion is the newest release (e.g. "0.3.0").
	LatestVersion string
	// UpdateAvailable is true when latest > current.
	UpdateAvailable bool
	// ReleaseURL is the GitHub page for the release.
	ReleaseURL string
}

// Updater checks and installs releases of one repository.
type Updater struct {
	releases Releases
	owner    string
	repo     string
	logger   *zap.Logger

	// executable locates the binary to replace; os.Executable by default.
	executable func() (string, error)
}

// New returns an Updater for owner/repo.
func New(releases Releases, owner, repo string, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		releases:   releases,
		owner:      owner,
		repo:       repo,
		logger:     logger.Named("updater"),
		executable: os.Executable,
	}
}

// CheckVersion queries GitHub for the latest release and compares it
// against the current version. It never fails: network errors leave
// UpdateAvailable false.
func (u *Updater) CheckVersion(ctx context.Context, currentVersion string) *UpdateResult {
	result := &UpdateResult{CurrentVersion: normalizeVersion(currentVersion)}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	release, err := u.releases.LatestRelease(ctx, u.owner, u.repo)
	if err != nil {
		u.logger.Debug("version check failed", zap.Error(err))
		return result
	}

	result.LatestVersion = normalizeVersion(release.TagName)
	result.ReleaseURL = release.HTMLURL
	result.UpdateAvailable = isNewer(result.CurrentVersion, result.LatestVersion)
	return result
}

// SelfUpdate downloads the archive for the current OS/arch and replaces
// the running executable atomically.
func (u *Updater) SelfUpdate(ctx context.Context, currentVersion string) (*UpdateResult, error) {
	// 1. Fetch latest release info
	release, err := u.releases.LatestRelease(ctx, u.owner, u.repo)
	if err != nil {
		return nil, fmt.Errorf("checking latest release: %w", err)
	}
	result := &UpdateResult{
		CurrentVersion: normalizeVersion(currentVersion),
		LatestVersion:  normalizeVersion(release.TagName),
		ReleaseURL:     release.HTMLURL,
	}
	if !isNewer(result.CurrentVersion, result.LatestVersion) {
		return result, fmt.Errorf("%w (%s)", ErrUpToDate, currentVersion)
	}
	result.UpdateAvailable = true

	// 2. Find the right asset for this OS/arch
	assetName := buildAssetName(result.LatestVersion, runtime.GOOS, runtime.GOARCH)
	var downloadURL string
	for _, asset := range release.Assets {
		if asset.Name == assetName {
			downloadURL = asset.BrowserDownloadURL
			break
		}
	}
	if downloadURL == "" {
		return result, fmt.Errorf("no release asset found for %s/%s (looking for %s)", runtime.GOOS, runtime.GOARCH, assetName)
	}

	// 3. Download and extract the binary
	body, err := u.releases.Download(ctx, downloadURL)
	if err != nil {
		return result, fmt.Errorf("downloading release: %w", err)
	}
	defer func() { _ = body.Close() }()

	binaryData, err := extractBinary(io.LimitReader(body, maxArchiveSize), assetName)
	if err != nil {
		return result, fmt.Errorf("extracting binary: %w", err)
	}

	// 4. Atomic replace
	execPath, err := u.executable()
	if err != nil {
		return result, fmt.Errorf("finding current executable: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return result, fmt.Errorf("resolving symlinks: %w", err)
	}
	if err := replaceBinary(execPath, binaryData); err != nil {
		return result, err
	}

	u.logger.Info("binary updated",
		zap.String("from", result.CurrentVersion),
		zap.String("to", result.LatestVersion),
		zap.String("path", execPath))
	return result, nil
}

func replaceBinary(execPath string, data []byte) error {
	tmpPath := execPath + ".new"
	if err := os.WriteFile(tmpPath, data, 0o755); err != nil {
		return fmt.Errorf("writing new binary: %w", err)
	}

	// Windows cannot overwrite a running binary; move it aside first.
	if runtime.GOOS == "windows" {
		oldPath := execPath + ".old"
		_ = os.Remove(oldPath)
		if err := os.Rename(execPath, oldPath); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("backing up current binary: %w", err)
		}
	}

	if err := os.Rename(tmpPath, execPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replacing binary: %w", err)
	}
	return nil
}

// extractBinary reads a .tar.gz or .zip archive and returns the raw
// bytes of the devlog binary inside it.
func extractBinary(reader io.Reader, assetName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return extractFromZip(reader)
	}
	return extractFromTarGz(reader)
}

func isBinary(name string) bool {
	base := filepath.Base(name)
	return base == binaryName || base == binaryName+".exe"
}

// extractFromTarGz pulls the binary out of a .tar.gz archive.
func extractFromTarGz(reader io.Reader) ([]byte, error) {
	gz, err := gzip.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !isBinary(header.Name) {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading binary from tar: %w", err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("%s binary not found in archive", binaryName)
}

// extractFromZip buffers the archive, since zip needs random access.
func extractFromZip(reader io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading zip: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isBinary(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading binary from zip: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s binary not found in archive", binaryName)
}

// buildAssetName constructs the expected archive filename, matching
// GoReleaser's name_template.
func buildAssetName(version, osName, arch string) string {
	ext := "tar.gz"
	if osName == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", binaryName, version, osName, arch, ext)
}

// normalizeVersion strips the leading "v" from version strings.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer returns true if latest is a higher version than current.
// Compares up to three numeric semver parts.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}

	currentParts := strings.Split(current, ".")
	latestParts := strings.Split(latest, ".")
	for len(currentParts) < 3 {
		currentParts = append(currentParts, "0")
	}
	for len(latestParts) < 3 {
		latestParts = append(latestParts, "0")
	}

	for i := range 3 {
		c := parseIntSafe(currentParts[i])
		l := parseIntSafe(latestParts[i])
		if l != c {
			return l > c
		}
	}
	return false
}

// parseIntSafe reads the leading digits of s, returning 0 when there
// are none.
func parseIntSafe(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			break
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
