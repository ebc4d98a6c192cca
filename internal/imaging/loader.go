package imaging

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// ImageCache provides thread-safe caching of decoded images to avoid redundant
// disk reads when several tools inspect the same file.
//
// Images are decoded with EXIF auto-orientation, so a portrait phone capture
// is stored upright. Entries are keyed by the exact path string.
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear().
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves an image from the cache or decodes it from disk if not cached.
//
// Parameters:
//   - path: File path to the image. Any format registered with the image
//     package and supported by disintegration/imaging (PNG, JPEG, GIF, TIFF,
//     BMP) is accepted.
//
// Returns an error wrapping ErrDecode when the file cannot be opened or decoded.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Len reports the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// LoadIntensity loads an image through the cache and converts it to an
// IntensityGrid using the given mode.
//
// A nil cache decodes without caching.
func LoadIntensity(cache *ImageCache, path string, mode IntensityMode) (*IntensityGrid, error) {
	var (
		img image.Image
		err error
	)
	if cache != nil {
		img, err = cache.Load(path)
	} else {
		img, err = imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
	}
	if err != nil {
		return nil, err
	}

	grid, err := FromImage(img, mode)
	if err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return grid, nil
}
