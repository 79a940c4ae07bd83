package media

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogshop/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, ww, wh int
	}{
		{600, 300, 300, 150},
		{300, 900, 100, 300},
		{120, 80, 120, 80},
		{1000, 1000, 300, 300},
	}
	for _, c := range cases {
		got := FitWithin(image.NewRGBA(image.Rect(0, 0, c.w, c.h)), AvatarSize)
		assert.Equal(t, c.ww, got.Bounds().Dx(), "%dx%d", c.w, c.h)
		assert.Equal(t, c.wh, got.Bounds().Dy(), "%dx%d", c.w, c.h)
	}
}

func TestSaveAndDelete(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0)
	require.NoError(t, err)

	name, err := s.Save("posts", bytes.NewReader(pngBytes(t, 10, 10)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "posts/"))
	assert.True(t, strings.HasSuffix(name, ".png"))
	_, err = os.Stat(filepath.Join(s.Root(), name))
	require.NoError(t, err)

	require.NoError(t, s.Delete(name))
	_, err = os.Stat(filepath.Join(s.Root(), name))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(name))
	assert.NoError(t, s.Delete(""))
	assert.ErrorIs(t, s.Delete("../etc/passwd"), models.ErrInvalid)
}

func TestSaveRejectsNonImagesAndOversize(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 64)
	require.NoError(t, err)

	_, err = s.Save("posts", strings.NewReader("#!/bin/sh\necho hi"))
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = s.Save("posts", bytes.NewReader(pngBytes(t, 200, 200)))
	assert.ErrorIs(t, err, models.ErrInvalid)
	entries, _ := os.ReadDir(filepath.Join(s.Root(), "posts"))
	assert.Empty(t, entries)
}

func TestSaveAvatarResizes(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 0)
	require.NoError(t, err)

	name, err := s.SaveAvatar(bytes.NewReader(pngBytes(t, 900, 450)))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(s.Root(), name))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 150, cfg.Height)

	_, err = s.SaveAvatar(strings.NewReader("nope"))
	assert.ErrorIs(t, err, models.ErrInvalid)
}

// hugePNG is a valid PNG whose header claims w x h pixels.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	b := pngBytes(t, 1, 1)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestSaveAvatarRejectsHugeDimensions(t *testing.T) {
	s, err := NewStorage(t.TempDir(), 1<<20)
	require.NoError(t, err)

	data := hugePNG(t, 20000, 20000)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 20000, cfg.Width)

	_, err = s.SaveAvatar(bytes.NewReader(data))
	assert.ErrorIs(t, err, models.ErrInvalid)

	entries, _ := os.ReadDir(filepath.Join(s.Root(), "avatars"))
	assert.Empty(t, entries)
}
