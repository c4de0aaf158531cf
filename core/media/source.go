package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"MTCPlayer/core/playerr"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// Source is an opened and decoded media source.
type Source struct {
	Stream beep.StreamSeekCloser
	Format beep.Format
	// Opaque is set when a remote source was fetched without CORS
	// clearance. It plays, but its samples must not be analysed.
	Opaque bool
}

// Opener resolves a source reference into a decoded stream. mode is the
// element's cross-origin setting at the time Play was called.
type Opener func(ctx context.Context, src string, mode CrossOrigin) (*Source, error)

// HTTPOpener returns the default Opener: file paths and file:// URLs are
// read from disk, http(s) URLs are fetched with client. Requests made in
// CrossOriginAnonymous mode carry an Origin header and are rejected unless
// the response grants access through Access-Control-Allow-Origin.
func HTTPOpener(client *http.Client, origin string) Opener {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, src string, mode CrossOrigin) (*Source, error) {
		u, err := url.Parse(src)
		if err != nil {
			return nil, playerr.PlaybackSource("open", "invalid media url", err)
		}

		switch u.Scheme {
		case "", "file":
			p := src
			if u.Scheme == "file" {
				p = u.Path
			}
			f, err := os.Open(p)
			if err != nil {
				return nil, playerr.PlaybackSource("open", "media file not readable", err)
			}
			s, err := decode(filepath.Ext(p), f)
			if err != nil {
				f.Close()
				return nil, err
			}
			return s, nil

		case "http", "https":
			return fetch(ctx, client, origin, u, mode)

		default:
			return nil, playerr.PlaybackSource("open", fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
		}
	}
}

func fetch(ctx context.Context, client *http.Client, origin string, u *url.URL, mode CrossOrigin) (*Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, playerr.PlaybackSource("fetch", "invalid request", err)
	}
	if mode == CrossOriginAnonymous {
		req.Header.Set("Origin", origin)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, playerr.Aborted("fetch", err)
		}
		return nil, playerr.PlaybackSource("fetch", "media request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, playerr.PlaybackSource("fetch", fmt.Sprintf("media server returned %d", resp.StatusCode), nil)
	}
	if mode == CrossOriginAnonymous && !corsAllowed(resp.Header.Get("Access-Control-Allow-Origin"), origin) {
		return nil, playerr.PlaybackSource("fetch", "blocked by CORS policy", nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, playerr.Aborted("fetch", err)
		}
		return nil, playerr.PlaybackSource("fetch", "media download interrupted", err)
	}

	s, err := decode(path.Ext(u.Path), memFile{bytes.NewReader(body)})
	if err != nil {
		return nil, err
	}
	s.Opaque = mode != CrossOriginAnonymous
	return s, nil
}

func corsAllowed(header, origin string) bool {
	header = strings.TrimSpace(header)
	return header == "*" || (header != "" && header == origin)
}

// memFile makes an in-memory body seekable and closable for the decoders.
type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func decode(ext string, rc io.ReadCloser) (*Source, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch strings.ToLower(ext) {
	case ".wav", ".wave":
		s, format, err = wav.Decode(rc)
	case ".mp3":
		s, format, err = mp3.Decode(rc)
	default:
		return nil, playerr.PlaybackSource("decode", fmt.Sprintf("unsupported media format %q", ext), nil)
	}
	if err != nil {
		return nil, playerr.PlaybackSource("decode", "media could not be decoded", err)
	}
	return &Source{Stream: s, Format: format}, nil
}
