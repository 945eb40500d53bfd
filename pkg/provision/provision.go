// Package provision makes sure model artifacts exist on local storage,
// fetching them from their remote URL the first time they are needed.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/L0G1H/deepfakery/pkg/logging"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// ErrProvision wraps every failure to make an artifact available.
var ErrProvision = errors.New("model provisioning failed")

// ErrChecksumMismatch is returned when fetched bytes don't match the configured digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrBadChecksum is returned for a checksum string that can't be parsed.
var ErrBadChecksum = errors.New("invalid checksum specification")

// Artifact is a named binary file at a local path, addressed by a remote URL.
type Artifact struct {
	URL  string
	Path string
	// Checksum is optional, "<algo>:<hex>". Empty disables verification.
	Checksum string
}

// Provisioner fetches artifacts at most once per process.
type Provisioner struct {
	client   *http.Client
	progress io.Writer

	mu       sync.Mutex
	outcomes map[string]error
}

// New creates a Provisioner. A nil client means http.DefaultClient.
func New(client *http.Client) *Provisioner {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provisioner{
		client:   client,
		outcomes: make(map[string]error),
	}
}

// SetProgress enables a download progress bar written to w.
func (p *Provisioner) SetProgress(w io.Writer) {
	p.progress = w
}

// Ensure makes sure a file exists at localPath, downloading url if it doesn't.
func (p *Provisioner) Ensure(ctx context.Context, url, localPath string) error {
	return p.EnsureArtifact(ctx, Artifact{URL: url, Path: localPath})
}

// EnsureArtifact is Ensure with optional checksum verification.
// The outcome for a path is remembered, so a second call never touches the network.
func (p *Provisioner) EnsureArtifact(ctx context.Context, a Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.outcomes[a.Path]; ok {
		return err
	}
	err := p.ensure(ctx, a)
	p.outcomes[a.Path] = err
	return err
}

func (p *Provisioner) ensure(ctx context.Context, a Artifact) error {
	log := logging.Component("provision")

	if _, err := os.Stat(a.Path); err == nil {
		log.Infof("Model already exists at %s. Using the existing model.", a.Path)
		return nil
	}

	var verifier *checksum
	if a.Checksum != "" {
		c, err := parseChecksum(a.Checksum)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProvision, err)
		}
		verifier = c
	}

	log.Infof("Model not found at %s. Downloading...", a.Path)
	if err := p.download(ctx, a.URL, a.Path, verifier); err != nil {
		log.WithError(err).Error("Failed to download the model")
		return fmt.Errorf("%w: %s: %v", ErrProvision, a.Path, err)
	}
	log.Infof("Model downloaded to %s", a.Path)
	return nil
}

// download streams url into targetPath+".part" and renames it into place once
// the body is complete (and verified, when a checksum is configured).
func (p *Provisioner) download(ctx context.Context, url, targetPath string, verifier *checksum) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if dir := filepath.Dir(targetPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create model directory: %w", err)
		}
	}

	partPath := targetPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}

	writers := []io.Writer{out}
	if verifier != nil {
		writers = append(writers, verifier.hash)
	}
	if p.progress != nil && resp.ContentLength > 0 {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription("Downloading "+filepath.Base(targetPath)),
			progressbar.OptionSetWriter(p.progress),
			progressbar.OptionShowBytes(true),
		)
		defer func() { _ = bar.Finish() }()
		writers = append(writers, bar)
	}

	_, copyErr := io.Copy(io.MultiWriter(writers...), resp.Body)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && verifier != nil {
		copyErr = verifier.verify()
	}
	if copyErr != nil {
		_ = os.Remove(partPath)
		return copyErr
	}

	return os.Rename(partPath, targetPath)
}

type checksum struct {
	algo string
	want string
	hash hash.Hash
}

func parseChecksum(spec string) (*checksum, error) {
	algo, want, ok := strings.Cut(spec, ":")
	if !ok || want == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadChecksum, spec)
	}
	if _, err := hex.DecodeString(want); err != nil {
		return nil, fmt.Errorf("%w: %q is not hex", ErrBadChecksum, want)
	}

	var h hash.Hash
	switch algo {
	case "sha256":
		h = sha256.New()
	case "blake2b-256":
		h, _ = blake2b.New256(nil)
	case "sha3-256":
		h = sha3.New256()
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrBadChecksum, algo)
	}
	return &checksum{algo: algo, want: strings.ToLower(want), hash: h}, nil
}

func (c *checksum) verify() error {
	got := hex.EncodeToString(c.hash.Sum(nil))
	if got != c.want {
		return fmt.Errorf("%w: %s want %s, got %s", ErrChecksumMismatch, c.algo, c.want, got)
	}
	return nil
}
