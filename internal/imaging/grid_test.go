package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/ousepachn/insta-media-sync/internal/domain"
	"github.com/ousepachn/insta-media-sync/internal/storage"
	"github.com/ousepachn/insta-media-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	objects map[string][]byte
	puts    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for path := range f.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, path)
		}
	}
	return out, nil
}

func (f *fakeStore) PutBytes(_ context.Context, path string, data []byte, _ string) error {
	f.objects[path] = data
	f.puts = append(f.puts, path)
	return nil
}

func (f *fakeStore) GetBytes(_ context.Context, path string) ([]byte, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeStore) GetSnapshot(context.Context, string) (domain.RecordSet, bool, error) {
	panic("not used")
}

func (f *fakeStore) PutSnapshot(context.Context, domain.RecordSet) error {
	panic("not used")
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newCompositor(store *fakeStore) *Compositor {
	return &Compositor{
		Storage: store,
		Logger:  logger.New(logger.Opts{}).WithComponent("CompositorTest"),
	}
}

const albumPrefix = "instagram/alice/media/post__a1__album"
const gridPrefix = "instagram/alice/grids/post__a1__album"

func TestBuildGridsChunksByFour(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.objects[fmt.Sprintf("%s/image_%d.jpg", albumPrefix, i)] = testJPEG(t, 100, 80)
	}

	paths, err := newCompositor(store).BuildGrids(context.Background(), albumPrefix, 5, gridPrefix)

	require.NoError(t, err)
	require.Equal(t, []string{gridPrefix + "/grid_0.jpg", gridPrefix + "/grid_1.jpg"}, paths)

	for _, p := range paths {
		data, err := store.GetBytes(context.Background(), p)
		require.NoError(t, err)
		img, format, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.LessOrEqual(t, img.Bounds().Dx(), 768)
	}
}

func TestBuildGridsSkipsVideoItems(t *testing.T) {
	store := newFakeStore()
	store.objects[albumPrefix+"/image_0.jpg"] = testJPEG(t, 100, 80)
	store.objects[albumPrefix+"/image_1.mp4"] = []byte("not an image")

	paths, err := newCompositor(store).BuildGrids(context.Background(), albumPrefix, 2, gridPrefix)

	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestBuildGridsDownscalesWideImages(t *testing.T) {
	store := newFakeStore()
	store.objects[albumPrefix+"/image_0.jpg"] = testJPEG(t, 2000, 1000)

	paths, err := newCompositor(store).BuildGrids(context.Background(), albumPrefix, 1, gridPrefix)

	require.NoError(t, err)
	data, err := store.GetBytes(context.Background(), paths[0])
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	// One item still occupies a full 2-column canvas at cell width.
	assert.Equal(t, 768, img.Bounds().Dx())
	assert.Equal(t, 192, img.Bounds().Dy())
}

func TestBuildGridsEmptyAlbumFails(t *testing.T) {
	store := newFakeStore()

	_, err := newCompositor(store).BuildGrids(context.Background(), albumPrefix, 0, gridPrefix)

	require.Error(t, err)
}
