package corpus

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"newsbench/internal/cache"
)

// ErrNoImage is returned when an image is requested by an empty name.
var ErrNoImage = errors.New("no image")

const (
	// BlankSize is the side of the synthesized blank image, in pixels.
	BlankSize = 672
	// CachedImages is how many read images an Images store keeps in memory.
	CachedImages = 64
)

// Image is an encoded picture ready to be attached to a prompt.
type Image struct {
	Name      string
	Data      []byte
	MediaType string
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns the image as a data URL.
func (img *Image) DataURL() string {
	return "data:" + img.MediaType + ";base64," + img.Base64()
}

// Images reads news pictures from a directory.
type Images struct {
	Dir string

	cache     *cache.LRU[string, *Image]
	blankOnce sync.Once
	blank     *Image
	blankErr  error
}

// NewImages returns an image store rooted at dir.
func NewImages(dir string) *Images {
	return &Images{Dir: dir, cache: cache.NewLRU[string, *Image](CachedImages)}
}

// Path returns the file path of an image.
func (s *Images) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Read loads an image by file name. Recently read images are served from
// memory, so the variants of a multi-run read each file once.
func (s *Images) Read(name string) (*Image, error) {
	if name == "" {
		return nil, ErrNoImage
	}
	if s.cache == nil {
		return s.read(name)
	}
	return s.cache.GetOrLoad(name, s.read)
}

func (s *Images) read(name string) (*Image, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", name, err)
	}
	return &Image{Name: name, Data: data, MediaType: mediaType(name)}, nil
}

// Blank returns a uniform black grayscale JPEG, encoded once.
func (s *Images) Blank() (*Image, error) {
	s.blankOnce.Do(func() {
		s.blank, s.blankErr = encodeBlank()
	})
	return s.blank, s.blankErr
}

func encodeBlank() (*Image, error) {
	// zero-valued pixels are black
	gray := image.NewGray(image.Rect(0, 0, BlankSize, BlankSize))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, nil); err != nil {
		return nil, fmt.Errorf("encode blank image: %w", err)
	}
	return &Image{Name: "", Data: buf.Bytes(), MediaType: "image/jpeg"}, nil
}

func mediaType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", "":
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "image/jpeg"
}
