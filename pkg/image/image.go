// Package image checks container images are available before any chunk is built.
package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	gcr "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	vio "github.com/vsdock/vsdock/pkg/io"
	"github.com/vsdock/vsdock/pkg/prompt"
	"github.com/vsdock/vsdock/pkg/utils/logger"
)

// ErrImageMissing is returned when the container image is not available.
var ErrImageMissing = errors.New("container image is missing")

// Local is a container image file, like a Singularity .sif.
type Local struct {
	Path string

	// URL is where the image can be downloaded from. Empty means no download is offered.
	URL string

	Client *http.Client

	// Progress is where the progress bar is drawn.
	Progress io.Writer

	Logger *log.Logger
}

const bar pb.ProgressBarTemplate = `{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }}`

// Ensure checks the image file exists.
//
// When it does not, confirm is asked whether to download it.
// Declining, or having no URL, is ErrImageMissing.
func (l *Local) Ensure(ctx context.Context, confirm prompt.Confirmer) error {
	s, err := os.Stat(l.Path)
	if err == nil {
		if s.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrImageMissing, l.Path)
		}
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if l.URL == "" {
		return fmt.Errorf("%w: %s", ErrImageMissing, l.Path)
	}
	ok, err := confirm.Confirm(ctx, fmt.Sprintf(
		"Container image %s is not found. Download it from %s?", l.Path, l.URL,
	))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrImageMissing, l.Path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s (download declined)", ErrImageMissing, l.Path)
	}
	return l.Download(ctx)
}

// Download fetches the image from URL into Path.
//
// Path is replaced only when the download completes.
func (l *Local) Download(ctx context.Context) error {
	lg := logger.Or(l.Logger)
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	progress := l.Progress
	if progress == nil {
		progress = io.Discard
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download %s: %s", ErrImageMissing, l.URL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(l.Path), os.FileMode(0755)); err != nil {
		return err
	}
	f, err := vio.TempBeside(l.Path)
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after rename

	b := pb.New64(resp.ContentLength).SetTemplate(bar)
	b.Set(pb.Bytes, true)
	b.SetWriter(progress)
	b.Set("prefix", "Downloading "+filepath.Base(l.Path)+":")
	b.Start()

	lg.Printf("downloading %s into %s", l.URL, l.Path)
	w := b.NewProxyWriter(f)
	if _, err := io.Copy(w, resp.Body); err != nil {
		b.Finish()
		f.Close()
		return err
	}
	b.Finish()
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.Path); err != nil {
		return err
	}
	lg.Printf("downloaded %s", l.Path)
	return nil
}

// HeadFunc looks a manifest up on a registry. remote.Head satisfies it.
type HeadFunc func(ref gcrname.Reference, options ...remote.Option) (*gcr.Descriptor, error)

// Remote is an image on a container registry, pulled by cluster nodes.
type Remote struct {
	Image string

	// Head defaults to remote.Head.
	Head HeadFunc
}

// Ensure validates the reference and checks the registry knows it.
func (r *Remote) Ensure(ctx context.Context) (gcrname.Reference, error) {
	ref, err := gcrname.ParseReference(r.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageMissing, r.Image, err)
	}
	head := r.Head
	if head == nil {
		head = remote.Head
	}
	if _, err := head(ref, remote.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageMissing, ref.Name(), err)
	}
	return ref, nil
}
