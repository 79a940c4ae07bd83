// Package media stores uploaded images on disk and removes them when their
// owning record drops them.
package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"blogshop/internal/models"
)

// AvatarSize bounds both avatar dimensions.
const AvatarSize = 300

// MaxSourceSide bounds the declared dimensions of an image we agree to
// decode.
const MaxSourceSide = 8000

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

type Storage struct {
	root     string
	maxBytes int64
}

func NewStorage(root string, maxBytes int64) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Storage{root: root, maxBytes: maxBytes}, nil
}

func (s *Storage) Root() string { return s.root }

// Save writes an image under dir and returns its relative name. The type is
// sniffed from content, not taken from the client's file name.
func (s *Storage) Save(dir string, r io.Reader) (string, error) {
	br := bufio.NewReader(io.LimitReader(r, s.maxBytes+1))
	head, _ := br.Peek(512)
	ext, ok := extByType[http.DetectContentType(head)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type", models.ErrInvalid)
	}

	name, f, err := s.create(dir, ext)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, br)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = fmt.Errorf("%w: image larger than %d bytes", models.ErrInvalid, s.maxBytes)
	}
	if err != nil {
		s.Delete(name)
		return "", err
	}
	return name, nil
}

// SaveAvatar decodes an image, scales it to fit within AvatarSize square
// keeping its aspect ratio, and stores it as PNG.
func (s *Storage) SaveAvatar(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes))
	if err != nil {
		return "", err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode avatar: %v", models.ErrInvalid, err)
	}
	if cfg.Width > MaxSourceSide || cfg.Height > MaxSourceSide {
		return "", fmt.Errorf("%w: avatar is %dx%d, limit is %d per side",
			models.ErrInvalid, cfg.Width, cfg.Height, MaxSourceSide)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode avatar: %v", models.ErrInvalid, err)
	}
	img = FitWithin(img, AvatarSize)

	name, f, err := s.create("avatars", ".png")
	if err != nil {
		return "", err
	}
	err = png.Encode(f, img)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.Delete(name)
		return "", err
	}
	return name, nil
}

// Delete removes a stored file. Empty names and missing files are not errors.
func (s *Storage) Delete(name string) error {
	if name == "" {
		return nil
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Storage) create(dir, ext string) (string, *os.File, error) {
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return "", nil, err
	}
	name := filepath.ToSlash(filepath.Join(dir, uuid.NewString()+ext))
	f, err := os.OpenFile(filepath.Join(s.root, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", nil, err
	}
	return name, f, nil
}

func (s *Storage) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: bad media name %q", models.ErrInvalid, name)
	}
	return filepath.Join(s.root, clean), nil
}

// FitWithin scales img down so neither side exceeds max. Smaller images are
// returned unchanged.
func FitWithin(img image.Image, max int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return img
	}
	nw, nh := max, max
	if w > h {
		nh = h * max / w
	} else {
		nw = w * max / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
