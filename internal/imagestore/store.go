// Package imagestore downloads article thumbnails into a year/month tree
// under the static images root.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/speps/go-hashids/v2"

	securitynet "tldrbot/internal/security/netutil"
)

const maxImageBytes = 10 << 20

// hostRetryAfter is how long a host that could not be reached is skipped.
const hostRetryAfter = 2 * time.Minute

var (
	ErrIneligible = errors.New("image format not eligible")
	ErrDownload   = errors.New("image download failed")
)

// ValidExtensions are the only suffixes that trigger a download.
var ValidExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

type Retriever struct {
	root        string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
	userAgent   string
	tokens      *hashids.HashID
	now         func() time.Time
	failedHosts sync.Map // host -> time of the last connection failure
}

// NewRetriever stores files below root and builds servable paths below baseURL.
func NewRetriever(root, baseURL string, client *http.Client, logger zerolog.Logger, userAgent string) (*Retriever, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image storage directory: %w", err)
	}
	tokens, err := hashids.NewWithData(hashids.NewData())
	if err != nil {
		return nil, fmt.Errorf("initialising token encoder: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Retriever{
		root:      root,
		baseURL:   baseURL,
		client:    client,
		logger:    logger.With().Str("component", "imagestore").Logger(),
		userAgent: userAgent,
		tokens:    tokens,
		now:       time.Now,
	}, nil
}

// Eligible reports whether imageURL ends in one of ValidExtensions.
func Eligible(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	for _, ext := range ValidExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Retrieve downloads imageURL to <root>/<YYYY>/<MM>/<token>_<basename> and
// returns the matching servable path. Ineligible URLs are never fetched.
func (r *Retriever) Retrieve(ctx context.Context, imageURL string) (string, error) {
	if !Eligible(imageURL) {
		return "", fmt.Errorf("%w: %s", ErrIneligible, imageURL)
	}

	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid image URL %q", ErrDownload, imageURL)
	}
	if r.hostFailedRecently(u.Host) {
		return "", fmt.Errorf("%w: host %s failed earlier", ErrDownload, u.Host)
	}
	if err := securitynet.CheckHost(u.Hostname()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	now := r.now()
	token, err := r.Token(now)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	filename := token + "_" + basename(imageURL)
	year, month := now.Format("2006"), now.Format("01")

	dir := filepath.Join(r.root, year, month)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrDownload, dir, err)
	}

	if err := r.download(ctx, u, filepath.Join(dir, filename)); err != nil {
		if errors.Is(err, errHost) {
			r.failedHosts.Store(u.Host, r.now())
		}
		return "", fmt.Errorf("%w: %s: %v", ErrDownload, imageURL, err)
	}

	servable := path.Join(r.baseURL, year, month, filename)
	r.logger.Debug().Str("image", imageURL).Str("path", servable).Msg("Stored image")
	return servable, nil
}

// Token is the filename prefix for an image retrieved at t.
func (r *Retriever) Token(t time.Time) (string, error) {
	return r.tokens.EncodeInt64([]int64{t.UnixMilli()})
}

func (r *Retriever) hostFailedRecently(host string) bool {
	v, ok := r.failedHosts.Load(host)
	if !ok {
		return false
	}
	if r.now().Sub(v.(time.Time)) < hostRetryAfter {
		return true
	}
	r.failedHosts.CompareAndDelete(host, v)
	return false
}

// errHost marks failures that make further requests to the host pointless.
var errHost = errors.New("host unreachable")

func (r *Retriever) download(ctx context.Context, u *url.URL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return err
		}
		return fmt.Errorf("%w: %v", errHost, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n > maxImageBytes {
		return fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return os.Rename(tmp.Name(), dest)
}

func basename(imageURL string) string {
	name := imageURL
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}
